package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/stackvity/ontaudit/pkg/audit/reasoner"
)

const (
	// maxLogOutputBytes limits the reasoner output kept in logs and errors.
	maxLogOutputBytes = 4096
	// maxReadBytes caps stdout/stderr capture so a chatty reasoner cannot exhaust memory.
	maxReadBytes = 10 * 1024 * 1024
)

// execReasoner implements reasoner.Reasoner by running an external command,
// e.g. ROBOT with HermiT. A zero exit status means consistent.
type execReasoner struct {
	command []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecReasoner creates a reasoner running command. Every "{input}" argument
// is replaced by the ontology path; if none is present the path is appended.
func NewExecReasoner(command []string, timeout time.Duration, loggerHandler slog.Handler) reasoner.Reasoner {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "reasoner"))
	return &execReasoner{command: command, timeout: timeout, logger: logger}
}

// BuildArgs substitutes path into command.
func BuildArgs(command []string, path string) []string {
	args := make([]string, 0, len(command)+1)
	replaced := false
	for _, arg := range command {
		if strings.Contains(arg, reasoner.InputPlaceholder) {
			arg = strings.ReplaceAll(arg, reasoner.InputPlaceholder, path)
			replaced = true
		}
		args = append(args, arg)
	}
	if !replaced {
		args = append(args, path)
	}
	return args
}

// Check implements reasoner.Reasoner.
func (r *execReasoner) Check(ctx context.Context, path string) error {
	logArgs := []any{slog.String("path", path)}

	if len(r.command) == 0 {
		err := errors.New("reasoner command cannot be empty")
		r.logger.Error("Reasoner configuration error", append(logArgs, slog.Any("error", err))...)
		return reasoner.Errorf("%w", err)
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := BuildArgs(r.command, path)
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return reasoner.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return reasoner.Errorf("failed to create stderr pipe: %w", err)
	}

	start := time.Now()
	if startErr := cmd.Start(); startErr != nil {
		r.logger.Error("Failed to start reasoner process", append(logArgs, slog.String("command", strings.Join(args, " ")), slog.Any("error", startErr))...)
		return reasoner.Errorf("failed to start reasoner command '%s': %w", args[0], startErr)
	}
	r.logger.Debug("Reasoner process started", logArgs...)

	var wg sync.WaitGroup
	var stdoutData, stderrData []byte
	capture := func(src io.Reader, dst *[]byte) {
		defer wg.Done()
		var buf bytes.Buffer
		n, _ := io.Copy(&buf, io.LimitReader(src, maxReadBytes))
		if n >= maxReadBytes {
			_, _ = io.Copy(io.Discard, src)
		}
		*dst = buf.Bytes()
	}
	wg.Add(2)
	go capture(stdoutPipe, &stdoutData)
	go capture(stderrPipe, &stderrData)
	wg.Wait()
	waitErr := cmd.Wait()

	output := tail(strings.TrimSpace(string(stderrData)))
	if output == "" {
		output = tail(strings.TrimSpace(string(stdoutData)))
	}
	logArgs = append(logArgs, slog.Duration("duration", time.Since(start)))

	if runCtx.Err() != nil {
		r.logger.Error("Reasoner cancelled or timed out", append(logArgs, slog.Any("error", runCtx.Err()))...)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return reasoner.WrapReasonerError(reasoner.ErrReasonerTimeout, "reasoner exceeded %s on '%s'", r.timeout, path)
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.logger.Warn("Reasoner reported failure", append(logArgs, slog.Int("exitCode", exitCode), slog.String("output", output))...)
		if output == "" {
			output = waitErr.Error()
		}
		return reasoner.WrapReasonerError(reasoner.ErrReasonerNonZeroExit, "exit code %d: %s", exitCode, output)
	}

	r.logger.Debug("Reasoner finished successfully", logArgs...)
	return nil
}

func tail(s string) string {
	if len(s) <= maxLogOutputBytes {
		return s
	}
	return "... (truncated) " + s[len(s)-maxLogOutputBytes:]
}

// ensure interface compliance
var _ reasoner.Reasoner = (*execReasoner)(nil)

// String describes the configured command, used in logs.
func (r *execReasoner) String() string {
	return fmt.Sprintf("exec %q", r.command)
}
