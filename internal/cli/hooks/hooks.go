package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stackvity/ontaudit/pkg/audit"
)

// --- TUI Message Structs ---

// OntologyDiscoveredMsg signals that the scanner found an ontology.
type OntologyDiscoveredMsg struct{ Path string }

// OntologyStatusUpdateMsg signals a change in an ontology's processing status.
type OntologyStatusUpdateMsg struct {
	Path     string
	Status   audit.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg signals the completion of the audit run.
type RunCompleteMsg struct{ Report audit.Report }

// CLIHooks implements audit.Hooks, bridging engine events to the TUI, a
// progress bar or the logger.
type CLIHooks struct {
	logger         *slog.Logger
	tuiEnabled     bool
	verboseEnabled bool
	tuiProgram     TUIProgram
	progressBar    ProgressBar
	hasProgressBar bool
	out            io.Writer
	mu             sync.Mutex // guards progressBar
}

// TUIProgram is the part of tea.Program the hooks use.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// ProgressBar is the part of progressbar.ProgressBar the hooks use.
type ProgressBar interface {
	Add(num int) error
	Describe(description string)
	Close() error
}

// NoOpTUIProgram provides a default null implementation.
type NoOpTUIProgram struct{}

// Send implements TUIProgram.
func (n *NoOpTUIProgram) Send(msg tea.Msg) {}

// NoOpProgressBar provides a default null implementation.
type NoOpProgressBar struct{}

// Add implements ProgressBar.
func (n *NoOpProgressBar) Add(num int) error { return nil }

// Describe implements ProgressBar.
func (n *NoOpProgressBar) Describe(description string) {}

// Close implements ProgressBar.
func (n *NoOpProgressBar) Close() error { return nil }

// NewCLIHooks creates hooks. tuiProg and progBar may be nil.
func NewCLIHooks(logger *slog.Logger, tuiEnabled, verboseEnabled bool, tuiProg TUIProgram, progBar ProgressBar) *CLIHooks {
	hasBar := progBar != nil
	if tuiProg == nil {
		tuiProg = &NoOpTUIProgram{}
	}
	if progBar == nil {
		progBar = &NoOpProgressBar{}
	}
	return &CLIHooks{
		logger:         logger,
		tuiEnabled:     tuiEnabled,
		verboseEnabled: verboseEnabled,
		tuiProgram:     tuiProg,
		progressBar:    progBar,
		hasProgressBar: hasBar,
		out:            os.Stderr,
	}
}

// OnOntologyDiscovered implements audit.Hooks.
func (h *CLIHooks) OnOntologyDiscovered(path string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(OntologyDiscoveredMsg{Path: path})
	} else if h.verboseEnabled {
		h.logger.Debug("Ontology discovered", slog.String("path", path))
	}
	return nil
}

// OnOntologyStatusUpdate implements audit.Hooks. Safe for concurrent use.
func (h *CLIHooks) OnOntologyStatusUpdate(path string, status audit.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(OntologyStatusUpdateMsg{
			Path:     path,
			Status:   status,
			Message:  message,
			Duration: duration,
		})
		return nil
	}

	if h.verboseEnabled {
		level := slog.LevelDebug
		msg := "Ontology status updated"
		attrs := []any{
			slog.String("path", path),
			slog.String("status", string(status)),
		}
		if duration > 0 {
			attrs = append(attrs, slog.Duration("duration", duration))
		}
		if message != "" {
			key := "message"
			if status == audit.StatusFailed {
				key = "error"
			}
			attrs = append(attrs, slog.String(key, message))
		}
		switch status {
		case audit.StatusSuccess, audit.StatusSkipped:
			level = slog.LevelInfo
		case audit.StatusFailed:
			level = slog.LevelError
			msg = "Ontology processing failed"
		}
		h.logger.Log(context.Background(), level, msg, attrs...)
		return nil
	}

	if h.hasProgressBar {
		h.mu.Lock()
		if status == audit.StatusProcessing {
			h.progressBar.Describe(filepath.Base(path))
		} else if status.IsFinal() {
			_ = h.progressBar.Add(1)
		}
		h.mu.Unlock()
	}
	if status == audit.StatusFailed {
		h.logger.Error("Ontology processing failed", slog.String("path", path), slog.String("error", message))
	}
	return nil
}

// OnRunComplete implements audit.Hooks.
func (h *CLIHooks) OnRunComplete(report audit.Report) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Report: report})
		return nil
	}
	if h.hasProgressBar {
		h.mu.Lock()
		_ = h.progressBar.Close()
		h.mu.Unlock()
		_, _ = fmt.Fprintln(h.out)
	}
	return nil
}

var _ audit.Hooks = (*CLIHooks)(nil)
