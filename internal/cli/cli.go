package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/stackvity/ontaudit/internal/cli/hooks"
	"github.com/stackvity/ontaudit/internal/cli/runner"
	"github.com/stackvity/ontaudit/internal/cli/ui"
	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
	"github.com/stackvity/ontaudit/pkg/audit/ledger"
	"github.com/stackvity/ontaudit/pkg/audit/ontology"
	"github.com/stackvity/ontaudit/pkg/audit/remote"
)

// tuiSettle gives the terminal a moment before the TUI takes over.
const tuiSettle = 100 * time.Millisecond

// Wire fills in every collaborator opts leaves unset: the encoding handler,
// the format detector, the RDF loader, the reasoner runner, one remote client
// serving all three services, metrics and, when enabled, the attempt ledger.
func Wire(opts *audit.Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.NewTextHandler(io.Discard, nil)
	}
	if opts.EncodingHandler == nil {
		opts.EncodingHandler = encoding.NewGoCharsetEncodingHandler(opts.DefaultEncoding)
	}
	if opts.Detector == nil {
		opts.Detector = format.NewGoEnryDetector(nil)
	}
	if opts.Loader == nil {
		opts.Loader = ontology.NewRDFLoader(opts.EncodingHandler, opts.Detector, opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = audit.NewMetrics()
	}
	if opts.Reasoner == nil {
		command := opts.ReasonerConfig.Command
		if len(command) == 0 {
			command = audit.DefaultReasonerCommand
		}
		opts.Reasoner = runner.NewExecReasoner(command, opts.ReasonerTimeout, opts.Logger)
	}

	if opts.PitfallService == nil || opts.FairService == nil || opts.QualityService == nil {
		client, err := remote.NewClient(remote.Config{
			PitfallURL:        opts.Services.PitfallURL,
			FairURL:           opts.Services.FairURL,
			QualityURL:        opts.Services.QualityURL,
			RequestsPerMinute: opts.Services.RequestsPerMinute,
			UserAgent:         opts.Services.UserAgent,
			PitfallIDs:        opts.PitfallIDs,
			Metrics:           opts.Metrics,
			Logger:            opts.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create assessment client: %w", err)
		}
		if opts.PitfallService == nil {
			opts.PitfallService = client
		}
		if opts.FairService == nil {
			opts.FairService = client
		}
		if opts.QualityService == nil {
			opts.QualityService = client
		}
	}

	if opts.Ledger == nil && opts.LedgerConfig.Enabled && opts.LedgerConfig.Path != "" {
		opts.Ledger = ledger.New(opts.LedgerConfig.Format, opts.AppVersion, opts.Logger)
	}
	return nil
}

// Analyze runs the corpus sweep under opts.InputPath, rendering progress on
// stderr and the batch report on stdout or opts.ReportFile. It returns an
// error for a failed or cancelled run, or when any ontology failed.
func Analyze(ctx context.Context, opts audit.Options, logger *slog.Logger, stdout io.Writer) error {
	if err := Wire(&opts); err != nil {
		return err
	}

	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	var (
		report audit.Report
		runErr error
	)
	switch {
	case interactive && opts.TuiEnabled && !opts.Verbose:
		report, runErr = runWithTUI(ctx, opts, logger)
	case interactive && !opts.Verbose:
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Auditing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionThrottle(65*time.Millisecond),
		)
		opts.EventHooks = hooks.NewCLIHooks(logger, false, false, nil, bar)
		report, runErr = runEngine(ctx, opts)
	default:
		opts.EventHooks = hooks.NewCLIHooks(logger, false, opts.Verbose, nil, nil)
		report, runErr = runEngine(ctx, opts)
	}

	if runErr != nil && report.Summary.RunID == "" {
		logger.Error("Audit run failed", slog.Any("error", runErr))
		return runErr
	}
	if err := writeOutputs(opts, report, stdout); err != nil {
		return err
	}

	logger.Info("Audit run finished",
		slog.String("runId", report.Summary.RunID),
		slog.Int("ontologies", report.Summary.TotalOntologies),
		slog.Int("failed", report.Summary.FailedCount),
		slog.Int("reportsGenerated", report.Summary.ReportsGenerated),
	)
	if runErr != nil {
		return runErr
	}
	if report.Summary.FailedCount > 0 {
		return fmt.Errorf("%d of %d ontologies had failed reports", report.Summary.FailedCount, report.Summary.TotalOntologies)
	}
	return nil
}

func runEngine(ctx context.Context, opts audit.Options) (audit.Report, error) {
	engine, err := audit.NewEngine(opts)
	if err != nil {
		return audit.Report{}, err
	}
	return engine.Run(ctx)
}

type runOutcome struct {
	report audit.Report
	err    error
}

// runWithTUI drives the engine from a goroutine while the bubbletea program
// owns the terminal. Quitting the TUI cancels the run.
func runWithTUI(ctx context.Context, opts audit.Options, logger *slog.Logger) (audit.Report, error) {
	time.Sleep(tuiSettle)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(ui.NewModel(opts.AppVersion), tea.WithOutput(os.Stderr), tea.WithContext(runCtx))
	opts.EventHooks = hooks.NewCLIHooks(logger, true, false, program, nil)
	engine, err := audit.NewEngine(opts)
	if err != nil {
		return audit.Report{}, err
	}

	done := make(chan runOutcome, 1)
	go func() {
		report, err := engine.Run(runCtx)
		done <- runOutcome{report: report, err: err}
		program.Quit()
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		logger.Warn("TUI exited with an error", slog.Any("error", err))
	}
	cancel()
	out := <-done
	return out.report, out.err
}

// writeOutputs renders the batch report and, when configured, the metrics
// textfile.
func writeOutputs(opts audit.Options, report audit.Report, stdout io.Writer) error {
	if opts.ReportFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.ReportFile), 0o755); err != nil {
			return fmt.Errorf("%w: cannot create report directory: %w", audit.ErrReportWrite, err)
		}
		f, err := os.Create(opts.ReportFile)
		if err != nil {
			return fmt.Errorf("%w: cannot create report file '%s': %w", audit.ErrReportWrite, opts.ReportFile, err)
		}
		if err := audit.WriteReport(f, report, opts.OutputFormat); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("%w: %w", audit.ErrReportWrite, err)
		}
	} else if err := audit.WriteReport(stdout, report, opts.OutputFormat); err != nil {
		return err
	}

	if opts.MetricsFile != "" && opts.Metrics != nil {
		if err := opts.Metrics.WriteTextfile(opts.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}
