package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ReportSchemaVersion versions the batch report layout.
const ReportSchemaVersion = "1"

// Report summarizes a single audit run.
type Report struct {
	Summary    ReportSummary    `json:"summary" yaml:"summary" toml:"summary"`
	Ontologies []OntologyResult `json:"ontologies" yaml:"ontologies" toml:"ontologies"`
}

// ReportSummary contains aggregated counts for a run.
type ReportSummary struct {
	RunID            string    `json:"runId" yaml:"runId" toml:"runId"`
	InputPath        string    `json:"inputPath" yaml:"inputPath" toml:"inputPath"`
	OutputPath       string    `json:"outputPath" yaml:"outputPath" toml:"outputPath"`
	ProfileUsed      string    `json:"profileUsed,omitempty" yaml:"profileUsed,omitempty" toml:"profileUsed,omitempty"`
	ConfigFilePath   string    `json:"configFilePath,omitempty" yaml:"configFilePath,omitempty" toml:"configFilePath,omitempty"`
	TotalOntologies  int       `json:"totalOntologies" yaml:"totalOntologies" toml:"totalOntologies"`
	SucceededCount   int       `json:"succeededCount" yaml:"succeededCount" toml:"succeededCount"`
	SkippedCount     int       `json:"skippedCount" yaml:"skippedCount" toml:"skippedCount"`
	FailedCount      int       `json:"failedCount" yaml:"failedCount" toml:"failedCount"`
	ReportsGenerated int       `json:"reportsGenerated" yaml:"reportsGenerated" toml:"reportsGenerated"`
	ReportsSkipped   int       `json:"reportsSkipped" yaml:"reportsSkipped" toml:"reportsSkipped"`
	ReportsFailed    int       `json:"reportsFailed" yaml:"reportsFailed" toml:"reportsFailed"`
	Cancelled        bool      `json:"cancelled" yaml:"cancelled" toml:"cancelled"`
	DurationSeconds  float64   `json:"durationSeconds" yaml:"durationSeconds" toml:"durationSeconds"`
	Concurrency      int       `json:"concurrency" yaml:"concurrency" toml:"concurrency"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp" toml:"timestamp"`
	SchemaVersion    string    `json:"schemaVersion" yaml:"schemaVersion" toml:"schemaVersion"`
}

// OntologyResult collects the steps run for one ontology.
type OntologyResult struct {
	Path       string       `json:"path" yaml:"path" toml:"path"`
	Name       string       `json:"name" yaml:"name" toml:"name"`
	Kind       OntologyKind `json:"kind" yaml:"kind" toml:"kind"`
	Status     Status       `json:"status" yaml:"status" toml:"status"`
	DurationMs int64        `json:"durationMs" yaml:"durationMs" toml:"durationMs"`
	Steps      []StepResult `json:"steps" yaml:"steps" toml:"steps"`
}

func (r *OntologyResult) add(steps ...StepResult) {
	r.Steps = append(r.Steps, steps...)
}

// settle derives the ontology status from its steps: failed when any step
// failed, skipped when every step was skipped, success otherwise.
func (r *OntologyResult) settle() {
	if len(r.Steps) == 0 {
		r.Status = StatusSkipped
		return
	}
	allSkipped := true
	for _, s := range r.Steps {
		if s.Failed() {
			r.Status = StatusFailed
			return
		}
		if s.Status != StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		r.Status = StatusSkipped
		return
	}
	r.Status = StatusSuccess
}

// FirstError returns the first failed step error message, or "".
func (r OntologyResult) FirstError() string {
	for _, s := range r.Steps {
		if s.Failed() {
			return fmt.Sprintf("%s: %s", s.Kind, s.Error)
		}
	}
	return ""
}

// WriteReport renders report in outputFormat (text, json, yaml or toml).
func WriteReport(w io.Writer, report Report, outputFormat string) error {
	switch outputFormat {
	case OutputFormatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report to JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to marshal report to YAML: %w", err)
		}
		return enc.Close()
	case OutputFormatTOML:
		if err := toml.NewEncoder(w).Encode(report); err != nil {
			return fmt.Errorf("failed to marshal report to TOML: %w", err)
		}
		return nil
	case OutputFormatText, "":
		return writeTextReport(w, report)
	default:
		return fmt.Errorf("%w: unknown output format '%s'", ErrConfigValidation, outputFormat)
	}
}

func writeTextReport(w io.Writer, report Report) error {
	s := report.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "Audit run %s\n", s.RunID)
	fmt.Fprintf(&b, "  Input:      %s\n", s.InputPath)
	fmt.Fprintf(&b, "  Output:     %s\n", s.OutputPath)
	fmt.Fprintf(&b, "  Ontologies: %d (succeeded %d, skipped %d, failed %d)\n", s.TotalOntologies, s.SucceededCount, s.SkippedCount, s.FailedCount)
	fmt.Fprintf(&b, "  Reports:    %d generated, %d already complete, %d failed\n", s.ReportsGenerated, s.ReportsSkipped, s.ReportsFailed)
	fmt.Fprintf(&b, "  Duration:   %.2fs\n", s.DurationSeconds)
	if s.Cancelled {
		b.WriteString("  Run was cancelled before all ontologies were processed.\n")
	}
	for _, o := range report.Ontologies {
		if o.Status != StatusFailed {
			continue
		}
		fmt.Fprintf(&b, "  FAILED %s\n", o.Path)
		for _, step := range o.Steps {
			if step.Failed() {
				fmt.Fprintf(&b, "    %s: %s\n", step.Kind, step.Error)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
