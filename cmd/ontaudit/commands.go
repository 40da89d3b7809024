package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackvity/ontaudit/internal/cli"
	"github.com/stackvity/ontaudit/pkg/audit"
)

// exactArgs wraps cobra.ExactArgs so a wrong argument count is an
// argument error.
func exactArgs(n int) cobra.PositionalArgs {
	check := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", audit.ErrArgument, err)
		}
		return nil
	}
}

func existingPath(arg string, wantDir bool) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("%w: cannot resolve '%s': %w", audit.ErrArgument, arg, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: cannot access '%s': %w", audit.ErrArgument, arg, err)
	}
	if wantDir && !info.IsDir() {
		return "", fmt.Errorf("%w: '%s' is not a directory", audit.ErrArgument, arg)
	}
	if !wantDir && info.IsDir() {
		return "", fmt.Errorf("%w: '%s' is a directory, expected an ontology file", audit.ErrArgument, arg)
	}
	return abs, nil
}

func ontologyArg(arg string) (audit.OntologyRef, error) {
	path, err := existingPath(arg, false)
	if err != nil {
		return audit.OntologyRef{}, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != audit.ExtOWL && ext != audit.ExtTurtle {
		return audit.OntologyRef{}, fmt.Errorf("%w: '%s' is not an .owl or .ttl ontology", audit.ErrArgument, arg)
	}
	return audit.NewOntologyRef(path), nil
}

// ontologyStep builds the single-ontology commands, which all load options,
// wire a generator and print the resulting steps. args[refArg] is the
// ontology path.
func ontologyStep(use, short string, nargs, refArg int, step func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, args []string) ([]audit.StepResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  exactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			opts, _, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			ref, err := ontologyArg(args[refArg])
			if err != nil {
				return err
			}
			gen, err := cli.NewGenerator(&opts)
			if err != nil {
				return err
			}
			steps, err := step(ctx, gen, ref, args)
			if err != nil {
				return err
			}
			return cli.PrintSteps(cmd.OutOrStdout(), steps...)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <dir>",
		Short: "Run every report generator over a corpus",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			input, err := existingPath(args[0], true)
			if err != nil {
				return err
			}
			opts, logger, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			opts.InputPath = input
			return cli.Analyze(ctx, opts, logger, cmd.OutOrStdout())
		},
	}
}

func newSampleCmd() *cobra.Command {
	return ontologyStep("sample <n> <ontology> <remote>", "Write the statistics report, optionally with the quality and FAIR reports", 3, 1,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, args []string) ([]audit.StepResult, error) {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: sample size '%s' must be a non-negative integer", audit.ErrArgument, args[0])
			}
			runRemote, err := strconv.ParseBool(args[2])
			if err != nil {
				return nil, fmt.Errorf("%w: remote flag '%s' must be true or false", audit.ErrArgument, args[2])
			}
			return gen.Statistics(ctx, ref, n, runRemote), nil
		})
}

func newQualityCmd() *cobra.Command {
	return ontologyStep("quality <ontology> <iri>", "Fetch the quality-score report for an ontology IRI", 2, 0,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, args []string) ([]audit.StepResult, error) {
			return []audit.StepResult{gen.QualityScore(ctx, ref, args[1])}, nil
		})
}

func newFairCmd() *cobra.Command {
	return ontologyStep("fair <ontology> <iri>", "Fetch the FAIR report for an ontology IRI", 2, 0,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, args []string) ([]audit.StepResult, error) {
			return []audit.StepResult{gen.FairCheck(ctx, ref, args[1])}, nil
		})
}

func newPitfallsCmd() *cobra.Command {
	var iri string
	cmd := ontologyStep("pitfalls <ontology>", "Fetch the pitfall report for an ontology", 1, 0,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, _ []string) ([]audit.StepResult, error) {
			if iri != "" {
				return []audit.StepResult{gen.PitfallsByIRI(ctx, ref, iri)}, nil
			}
			return []audit.StepResult{gen.Pitfalls(ctx, ref)}, nil
		})
	cmd.Flags().StringVar(&iri, "iri", "", "Scan the ontology published at this IRI instead of the file content")
	return cmd
}

func newReasonerCmd() *cobra.Command {
	return ontologyStep("reasoner <ontology>", "Run the reasoner consistency check", 1, 0,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, _ []string) ([]audit.StepResult, error) {
			return []audit.StepResult{gen.ReasonerCheck(ctx, ref)}, nil
		})
}

func newNamespacesCmd() *cobra.Command {
	return ontologyStep("namespaces <ontology>", "Write the used-namespaces report", 1, 0,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, _ []string) ([]audit.StepResult, error) {
			return []audit.StepResult{gen.UsedNamespaces(ctx, ref)}, nil
		})
}

func newConvertCmd() *cobra.Command {
	return ontologyStep("convert <ttl>", "Convert a Turtle ontology to an RDF/XML sibling", 1, 0,
		func(ctx context.Context, gen *audit.Generator, ref audit.OntologyRef, _ []string) ([]audit.StepResult, error) {
			if ref.Kind != audit.KindTurtle {
				return nil, fmt.Errorf("%w: '%s' is not a Turtle file", audit.ErrArgument, ref.Path)
			}
			_, res := gen.Convert(ctx, ref)
			return []audit.StepResult{res}, nil
		})
}

// aggregateCmd builds the <dir> <name> aggregation commands.
func aggregateCmd(use, short string, run func(ctx context.Context, agg *audit.Aggregator, dir, name string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <dir> <name>",
		Short: short,
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			opts, _, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			dir, err := existingPath(args[0], true)
			if err != nil {
				return err
			}
			agg := audit.NewAggregator(audit.NewStore(opts.Logger), opts.Logger)
			result, err := run(ctx, agg, dir, args[1])
			if err != nil {
				return err
			}
			return cli.PrintValue(cmd.OutOrStdout(), opts.OutputFormat, result)
		},
	}
}

func newSumNamespacesCmd() *cobra.Command {
	return aggregateCmd("sum-namespaces", "Union the used-namespaces reports of a directory",
		func(ctx context.Context, agg *audit.Aggregator, dir, name string) (any, error) {
			return agg.SumNamespaces(ctx, dir, name)
		})
}

func newSumClassesCmd() *cobra.Command {
	return aggregateCmd("sum-classes", "Sum the class and property counts of a directory",
		func(ctx context.Context, agg *audit.Aggregator, dir, name string) (any, error) {
			return agg.SumStatistics(ctx, dir, name)
		})
}

func newSumPitfallsCmd() *cobra.Command {
	return aggregateCmd("sum-pitfalls", "Count pitfalls by importance across a directory",
		func(ctx context.Context, agg *audit.Aggregator, dir, name string) (any, error) {
			return agg.SumPitfalls(ctx, dir, name)
		})
}

func newMeanScoresCmd() *cobra.Command {
	return aggregateCmd("mean-scores", "Average the quality and FAIR scores of a directory",
		func(ctx context.Context, agg *audit.Aggregator, dir, name string) (any, error) {
			return agg.MeanScores(ctx, dir, name)
		})
}

func newReconcileCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile <dir>",
		Short: "List ontologies whose reports are missing, optionally fetching them",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			root, err := existingPath(args[0], true)
			if err != nil {
				return err
			}
			opts, _, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			gen, err := cli.NewGenerator(&opts)
			if err != nil {
				return err
			}
			tmpl, err := audit.NewTemplateStrategy(opts.IRITemplate, root, opts.GroupMarker)
			if err != nil {
				return err
			}
			strategy := audit.ChainStrategy{tmpl, audit.NewLoadedIRIStrategy(opts.Loader)}
			scanner := audit.NewScanner(opts.IgnorePatterns, opts.EncodingHandler, opts.Detector, opts.Logger)
			reconciler := audit.NewReconciler(gen, scanner, strategy, opts.Logger)

			gaps, err := reconciler.Missing(ctx, root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := cli.PrintValue(out, opts.OutputFormat, gaps); err != nil {
				return err
			}
			if !repair || len(gaps.Items) == 0 {
				return nil
			}

			results, err := reconciler.Repair(ctx, gaps)
			if printErr := cli.PrintValue(out, opts.OutputFormat, results); printErr != nil {
				return printErr
			}
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Status == audit.StatusFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d repaired ontologies still have failed reports", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "Fetch the missing reports")
	return cmd
}
