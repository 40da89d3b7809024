package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReconciledKinds are the report kinds the reconciler looks for.
var ReconciledKinds = []ReportKind{ReportPitfalls, ReportQualityScore, ReportFairCheck, ReportUsedNamespaces}

// Gap lists the report kinds one ontology is missing.
type Gap struct {
	Ontology OntologyRef  `json:"ontology" yaml:"ontology" toml:"ontology"`
	Kinds    []ReportKind `json:"kinds" yaml:"kinds" toml:"kinds"`
}

// Gaps is the result of comparing a corpus with its report tree.
type Gaps struct {
	Root           string `json:"root" yaml:"root" toml:"root"`
	Ontologies     int    `json:"ontologies" yaml:"ontologies" toml:"ontologies"`
	Items          []Gap  `json:"items" yaml:"items" toml:"items"`
	LoadExceptions int    `json:"loadExceptions" yaml:"loadExceptions" toml:"loadExceptions"`
}

// Count returns how many ontologies miss kind.
func (g Gaps) Count(kind ReportKind) int {
	n := 0
	for _, item := range g.Items {
		for _, k := range item.Kinds {
			if k == kind {
				n++
			}
		}
	}
	return n
}

// Reconciler finds ontologies whose reports are missing and re-fetches them.
type Reconciler struct {
	generator *Generator
	scanner   *Scanner
	strategy  IRIStrategy
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. It shares the generator's resolver,
// so report lookups follow the same grouping as report writes.
func NewReconciler(generator *Generator, scanner *Scanner, strategy IRIStrategy, loggerHandler slog.Handler) *Reconciler {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	return &Reconciler{
		generator: generator,
		scanner:   scanner,
		strategy:  strategy,
		logger:    slog.New(loggerHandler).With(slog.String("component", "reconciler")),
	}
}

// Missing scans the ontology set under root and reports, per ontology, the
// kinds with no complete report at their resolved path. It also counts the
// load exception reports under the output root.
func (r *Reconciler) Missing(ctx context.Context, root string) (Gaps, error) {
	refs, err := r.scanner.Scan(ctx, root)
	if err != nil {
		return Gaps{}, err
	}

	resolver := r.generator.Resolver()
	store := r.generator.Store()
	gaps := Gaps{Root: root, Ontologies: len(refs)}
	for _, ref := range refs {
		var kinds []ReportKind
		for _, kind := range ReconciledKinds {
			if store.ShouldGenerate(resolver.For(ref, kind).Path) {
				kinds = append(kinds, kind)
			}
		}
		if len(kinds) > 0 {
			gaps.Items = append(gaps.Items, Gap{Ontology: ref, Kinds: kinds})
		}
	}

	gaps.LoadExceptions, err = countLoadExceptions(ctx, resolver.OutputRoot)
	if err != nil {
		return Gaps{}, err
	}

	for _, kind := range ReconciledKinds {
		r.logger.Info("Missing reports", slog.String("kind", string(kind)), slog.Int("count", gaps.Count(kind)), slog.Int("ontologies", gaps.Ontologies))
	}
	r.logger.Info("Load exceptions", slog.Int("count", gaps.LoadExceptions))
	return gaps, nil
}

func countLoadExceptions(ctx context.Context, outputRoot string) (int, error) {
	suffix := ReportLoadException.Suffix()
	count := 0
	err := filepath.WalkDir(outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == outputRoot && errors.Is(err, os.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), suffix) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting load exceptions under '%s': %w", outputRoot, err)
	}
	return count, nil
}

// Repair re-runs the generators for exactly the missing kinds. Remote kinds
// need an IRI from the strategy; an ontology without one is recorded as
// skipped for those kinds.
func (r *Reconciler) Repair(ctx context.Context, gaps Gaps) ([]OntologyResult, error) {
	results := make([]OntologyResult, 0, len(gaps.Items))
	for _, gap := range gaps.Items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.repairOne(ctx, gap))
	}
	return results, nil
}

func (r *Reconciler) repairOne(ctx context.Context, gap Gap) OntologyResult {
	start := time.Now()
	ref := gap.Ontology
	result := OntologyResult{Path: ref.Path, Name: ref.Name, Kind: ref.Kind}
	gen := r.generator

	var iri string
	var iriOK bool
	var iriErr error
	needIRI := false
	for _, k := range gap.Kinds {
		if k != ReportUsedNamespaces {
			needIRI = true
		}
	}
	if needIRI && r.strategy != nil {
		iri, iriOK, iriErr = r.strategy.IRIFor(ctx, ref)
	}

	for _, kind := range gap.Kinds {
		if kind == ReportUsedNamespaces {
			result.add(gen.UsedNamespaces(ctx, ref))
			continue
		}
		path := gen.Resolver().For(ref, kind).Path
		switch {
		case iriErr != nil:
			result.add(StepResult{Kind: kind, Path: path, Status: StatusFailed, Err: iriErr, Error: iriErr.Error()})
			continue
		case !iriOK:
			r.logger.Info("No IRI for ontology, skipping remote report", slog.String("ontology", ref.Path), slog.String("kind", string(kind)))
			result.add(StepResult{Kind: kind, Path: path, Status: StatusSkipped, Error: "no IRI available"})
			continue
		}
		switch kind {
		case ReportPitfalls:
			result.add(gen.PitfallsByIRI(ctx, ref, iri))
		case ReportQualityScore:
			result.add(gen.QualityScore(ctx, ref, iri))
		case ReportFairCheck:
			result.add(gen.FairCheck(ctx, ref, iri))
		}
	}

	result.settle()
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
