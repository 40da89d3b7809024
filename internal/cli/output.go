package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/stackvity/ontaudit/pkg/audit"
)

// NewGenerator wires opts and returns a generator for the single-ontology
// commands. Those commands run the full retry policy.
func NewGenerator(opts *audit.Options) (*audit.Generator, error) {
	if err := Wire(opts); err != nil {
		return nil, err
	}
	return audit.NewGenerator(opts), nil
}

// PrintSteps writes one line per step and returns an error naming the first
// failed step, wrapping its cause.
func PrintSteps(w io.Writer, steps ...audit.StepResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var firstErr error
	for _, s := range steps {
		detail := s.Path
		if s.Failed() {
			detail = s.Error
			if firstErr == nil {
				cause := s.Err
				if cause == nil {
					cause = fmt.Errorf("%s", s.Error)
				}
				firstErr = fmt.Errorf("%s: %w", s.Kind, cause)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\n", s.Kind, s.Status, s.DurationMs, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return firstErr
}

// PrintValue renders an aggregation or reconciliation result in
// outputFormat. TOML needs a table at the root, so slices are wrapped.
func PrintValue(w io.Writer, outputFormat string, v any) error {
	switch outputFormat {
	case audit.OutputFormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result to JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case audit.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal result to YAML: %w", err)
		}
		return enc.Close()
	case audit.OutputFormatTOML:
		if reflect.ValueOf(v).Kind() == reflect.Slice {
			v = map[string]any{"items": v}
		}
		if err := toml.NewEncoder(w).Encode(v); err != nil {
			return fmt.Errorf("failed to marshal result to TOML: %w", err)
		}
		return nil
	case audit.OutputFormatText, "":
		return printText(w, v)
	default:
		return fmt.Errorf("%w: unknown output format '%s'", audit.ErrConfigValidation, outputFormat)
	}
}

func printText(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch r := v.(type) {
	case audit.StatisticsTotals:
		fmt.Fprintf(tw, "Classes\t%d\n", r.Classes)
		fmt.Fprintf(tw, "Annotation properties\t%d\n", r.AnnotationProperties)
		fmt.Fprintf(tw, "Data properties\t%d\n", r.DataProperties)
		fmt.Fprintf(tw, "Object properties\t%d\n", r.ObjectProperties)
		fmt.Fprintf(tw, "Total properties\t%d\n", r.TotalProperties)
	case []audit.NamespaceBinding:
		for _, b := range r {
			fmt.Fprintf(tw, "%s\t%s\n", b.Key, b.IRI)
		}
	case audit.PitfallHistogram:
		fmt.Fprintf(tw, "Minor\t%d\n", r.Minor)
		fmt.Fprintf(tw, "Important\t%d\n", r.Important)
	case audit.ScoreMeans:
		fmt.Fprintf(tw, "FOOPS\t%.4f\n", r.FOOPS)
		fmt.Fprintf(tw, "F\t%.4f\n", r.F)
		fmt.Fprintf(tw, "A\t%.4f\n", r.A)
		fmt.Fprintf(tw, "I\t%.4f\n", r.I)
		fmt.Fprintf(tw, "R\t%.4f\n", r.R)
	case audit.Gaps:
		fmt.Fprintf(tw, "Corpus\t%s\n", r.Root)
		fmt.Fprintf(tw, "Ontologies\t%d\n", r.Ontologies)
		fmt.Fprintf(tw, "Load exceptions\t%d\n", r.LoadExceptions)
		for _, kind := range audit.ReconciledKinds {
			fmt.Fprintf(tw, "Missing %s\t%d\n", kind, r.Count(kind))
		}
		for _, gap := range r.Items {
			kinds := make([]string, len(gap.Kinds))
			for i, k := range gap.Kinds {
				kinds[i] = string(k)
			}
			fmt.Fprintf(tw, "  %s\t%s\n", gap.Ontology.Path, strings.Join(kinds, ","))
		}
	case []audit.OntologyResult:
		for _, o := range r {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Path, o.Status, o.FirstError())
		}
	default:
		fmt.Fprintf(tw, "%+v\n", v)
	}
	return tw.Flush()
}
