package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// stepPipeline tags failures that belong to no single report step.
const stepPipeline ReportKind = "pipeline"

// Engine runs the full-corpus analysis: scan, convert, then the report steps
// for every ontology over a bounded worker pool.
type Engine struct {
	opts        *Options
	logger      *slog.Logger
	generator   *Generator
	scanner     *Scanner
	hooks       Hooks
	ledger      Ledger
	metrics     *Metrics
	concurrency int
}

// NewEngine validates opts and wires the engine. The sweep uses
// opts.SweepAttempts per remote report; the standalone commands use the
// generator directly with the full retry policy.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: Logger implementation (slog.Handler) cannot be nil", ErrConfigValidation)
	}
	if opts.EventHooks == nil {
		opts.EventHooks = &NoOpHooks{}
	}
	logger := slog.New(opts.Logger).With(slog.String("component", "engine"))

	if opts.InputPath == "" {
		return nil, fmt.Errorf("%w: input path cannot be empty", ErrConfigValidation)
	}
	if opts.OutputPath == "" {
		return nil, fmt.Errorf("%w: output path cannot be empty", ErrConfigValidation)
	}
	if opts.Concurrency < 0 {
		return nil, fmt.Errorf("%w: concurrency cannot be negative", ErrConfigValidation)
	}
	if opts.SampleSize < 0 {
		return nil, fmt.Errorf("%w: sample size cannot be negative", ErrConfigValidation)
	}
	if opts.Reasoner == nil {
		return nil, fmt.Errorf("%w: Reasoner implementation cannot be nil", ErrConfigValidation)
	}
	if opts.RunRemote && (opts.PitfallService == nil || opts.FairService == nil || opts.QualityService == nil) {
		return nil, fmt.Errorf("%w: remote assessments enabled but a service client is missing", ErrConfigValidation)
	}
	if _, err := os.Stat(opts.InputPath); err != nil {
		return nil, fmt.Errorf("%w: cannot access input path '%s': %w", ErrConfigValidation, opts.InputPath, err)
	}
	if err := os.MkdirAll(opts.OutputPath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create or access output directory '%s': %w", ErrConfigValidation, opts.OutputPath, err)
	}

	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
		opts.Concurrency = concurrency
	}

	ledger := opts.Ledger
	if ledger == nil {
		ledger = &NoOpLedger{}
	} else if opts.LedgerConfig.Path != "" {
		if err := ledger.Load(opts.LedgerConfig.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Info("Ledger file not found, starting a new one", slog.String("path", opts.LedgerConfig.Path))
			} else {
				logger.Warn("Failed to load ledger, starting a new one", slog.String("path", opts.LedgerConfig.Path), slog.Any("error", err))
			}
		}
	}

	sweepAttempts := opts.SweepAttempts
	if sweepAttempts <= 0 {
		sweepAttempts = DefaultSweepAttempts
	}
	generator := NewGenerator(&opts)

	return &Engine{
		opts:        &opts,
		logger:      logger,
		generator:   generator.WithPolicy(opts.Retry.WithAttempts(sweepAttempts)),
		scanner:     NewScanner(opts.IgnorePatterns, opts.EncodingHandler, opts.Detector, opts.Logger),
		hooks:       opts.EventHooks,
		ledger:      ledger,
		metrics:     opts.Metrics,
		concurrency: concurrency,
	}, nil
}

// Run processes every ontology under the input path. Per-ontology failures
// are recorded in the report and never abort the batch; the returned error
// is non-nil only for a failed scan or a cancelled run.
func (e *Engine) Run(ctx context.Context) (report Report, err error) {
	startTime := time.Now()
	runID := uuid.NewString()
	collector := &resultCollector{}
	e.logger.Info("Starting audit run",
		slog.String("runId", runID),
		slog.String("input", e.opts.InputPath),
		slog.Int("concurrency", e.concurrency),
		slog.Bool("runRemote", e.opts.RunRemote))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered during audit run", slog.Any("panicValue", r))
			err = fmt.Errorf("panic during execution: %v", r)
		}
		if e.opts.LedgerConfig.Path != "" {
			if persistErr := e.ledger.Persist(e.opts.LedgerConfig.Path); persistErr != nil {
				e.logger.Error("Failed to persist ledger", slog.String("path", e.opts.LedgerConfig.Path), slog.Any("error", persistErr))
			}
		}
		report = collector.report(e.opts, runID, startTime, ctx.Err() != nil)
		e.logger.Info("Audit run finished",
			slog.Duration("duration", time.Since(startTime)),
			slog.Int("ontologies", report.Summary.TotalOntologies),
			slog.Int("failed", report.Summary.FailedCount),
			slog.Int("reportsGenerated", report.Summary.ReportsGenerated))
		if hookErr := e.hooks.OnRunComplete(report); hookErr != nil {
			e.logger.Warn("OnRunComplete hook returned an error", slog.Any("error", hookErr))
		}
	}()

	refs, scanErr := e.scanner.Scan(ctx, e.opts.InputPath)
	if scanErr != nil {
		return Report{}, scanErr
	}
	for _, ref := range refs {
		if hookErr := e.hooks.OnOntologyDiscovered(ref.Path); hookErr != nil {
			e.logger.Warn("OnOntologyDiscovered hook returned an error", slog.String("path", ref.Path), slog.Any("error", hookErr))
		}
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			collector.add(e.processOntology(ctx, ref))
			return nil
		})
	}
	_ = g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		e.logger.Info("Audit run cancelled", slog.String("reason", ctxErr.Error()))
		return Report{}, ctxErr
	}
	return Report{}, nil
}

// processOntology runs the pipeline steps for one ontology. Namespaces,
// statistics and pitfalls are independent of each other; the reasoner
// always runs once the ontology is available as OWL.
func (e *Engine) processOntology(ctx context.Context, ref OntologyRef) (result OntologyResult) {
	start := time.Now()
	result = OntologyResult{Path: ref.Path, Name: ref.Name, Kind: ref.Kind}
	e.notify(ref.Path, StatusProcessing, "", 0)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic recovered while processing ontology", slog.String("path", ref.Path), slog.Any("panicValue", r))
			result.add(StepResult{Kind: stepPipeline, Status: StatusFailed, Error: fmt.Sprintf("panic: %v", r)})
		}
		result.settle()
		result.DurationMs = time.Since(start).Milliseconds()
		e.metrics.RecordOntology(result.Status)
		e.notify(ref.Path, result.Status, result.FirstError(), time.Since(start))
	}()

	gen := e.generator
	owl := ref
	if ref.Kind == KindTurtle {
		converted, step := gen.Convert(ctx, ref)
		e.record(ref, step)
		result.add(step)
		if step.Failed() {
			return result
		}
		owl = converted
	}

	steps := []func() []StepResult{
		func() []StepResult { return []StepResult{gen.UsedNamespaces(ctx, ref)} },
		func() []StepResult { return gen.Statistics(ctx, owl, e.opts.SampleSize, e.opts.RunRemote) },
	}
	if e.opts.RunRemote {
		steps = append(steps, func() []StepResult { return []StepResult{gen.Pitfalls(ctx, owl)} })
	}
	steps = append(steps, func() []StepResult { return []StepResult{gen.ReasonerCheck(ctx, owl)} })

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.add(StepResult{Kind: stepPipeline, Status: StatusFailed, Err: err, Error: err.Error()})
			return result
		}
		for _, r := range step() {
			e.record(ref, r)
			result.add(r)
		}
	}
	return result
}

func (e *Engine) record(ref OntologyRef, step StepResult) {
	if step.Status == StatusSkipped {
		return
	}
	entry := LedgerEntry{
		Ontology:  ref.Path,
		Kind:      step.Kind,
		Status:    step.Status,
		Attempts:  step.Attempts,
		LastError: step.Error,
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.ledger.Record(entry); err != nil {
		e.logger.Warn("Failed to record ledger entry", slog.String("path", ref.Path), slog.Any("error", err))
	}
}

func (e *Engine) notify(path string, status Status, message string, duration time.Duration) {
	if err := e.hooks.OnOntologyStatusUpdate(path, status, message, duration); err != nil {
		e.logger.Warn("OnOntologyStatusUpdate hook returned an error", slog.String("path", path), slog.Any("error", err))
	}
}

// resultCollector gathers per-ontology results from the workers.
type resultCollector struct {
	mu      sync.Mutex
	results []OntologyResult
}

func (c *resultCollector) add(r OntologyResult) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

func (c *resultCollector) report(opts *Options, runID string, startTime time.Time, cancelled bool) Report {
	c.mu.Lock()
	results := make([]OntologyResult, len(c.results))
	copy(results, c.results)
	c.mu.Unlock()
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	summary := ReportSummary{
		RunID:           runID,
		InputPath:       opts.InputPath,
		OutputPath:      opts.OutputPath,
		ProfileUsed:     opts.ProfileName,
		ConfigFilePath:  opts.ConfigFilePath,
		TotalOntologies: len(results),
		Cancelled:       cancelled,
		DurationSeconds: time.Since(startTime).Seconds(),
		Concurrency:     opts.Concurrency,
		Timestamp:       time.Now().UTC(),
		SchemaVersion:   ReportSchemaVersion,
	}
	for _, r := range results {
		switch r.Status {
		case StatusFailed:
			summary.FailedCount++
		case StatusSkipped:
			summary.SkippedCount++
		default:
			summary.SucceededCount++
		}
		for _, s := range r.Steps {
			switch s.Status {
			case StatusGenerated:
				summary.ReportsGenerated++
			case StatusSkipped:
				summary.ReportsSkipped++
			case StatusFailed:
				summary.ReportsFailed++
			}
		}
	}
	return Report{Summary: summary, Ontologies: results}
}
