package audit

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/ontology"
	"github.com/stackvity/ontaudit/pkg/audit/reasoner"
)

// StepResult is the outcome of one report step for one ontology.
type StepResult struct {
	Kind       ReportKind `json:"kind" yaml:"kind" toml:"kind"`
	Status     Status     `json:"status" yaml:"status" toml:"status"`
	Path       string     `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Attempts   int        `json:"attempts,omitempty" yaml:"attempts,omitempty" toml:"attempts,omitempty"`
	DurationMs int64      `json:"durationMs" yaml:"durationMs" toml:"durationMs"`
	Error      string     `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	Err        error      `json:"-" yaml:"-" toml:"-"`
}

// Failed reports whether the step ended in StatusFailed.
func (r StepResult) Failed() bool { return r.Status == StatusFailed }

// Generator produces the per-ontology reports. Every method resolves its
// location, checks the gate, does the work and writes through the Store.
// Failures are returned in the StepResult, never as panics.
type Generator struct {
	store      *Store
	resolver   Resolver
	retrier    *Retrier
	aggregator *Aggregator
	policy     RetryPolicy
	metrics    *Metrics
	logger     *slog.Logger

	loader    OntologyLoader
	nsParser  NamespaceParser
	converter FormatConverter
	pitfalls  PitfallService
	fair      FairService
	quality   QualityService
	reasoner  reasoner.Reasoner

	seed                      uint64
	fairDivisors              map[string]float64
	perOntologyPitfallSummary bool
}

// NewGenerator wires a generator from opts. Local collaborators default to
// the ontology package implementations; remote services and the reasoner
// have no default and their steps fail when they are missing.
func NewGenerator(opts *Options) *Generator {
	handler := opts.Logger
	if handler == nil {
		handler = slog.NewTextHandler(io.Discard, nil)
	}
	store := NewStore(handler)

	enc := opts.EncodingHandler
	if enc == nil {
		enc = encoding.NewGoCharsetEncodingHandler(opts.DefaultEncoding)
	}
	loader := opts.Loader
	if loader == nil {
		loader = ontology.NewRDFLoader(enc, opts.Detector, handler)
	}
	nsParser := opts.NamespaceParser
	if nsParser == nil {
		nsParser = ontology.NewNamespaceParser(enc, opts.Detector, handler)
	}
	converter := opts.Converter
	if converter == nil {
		converter = ontology.NewConverter(enc, opts.Detector, store.Write, handler)
	}

	divisors := opts.FairDivisors
	if len(divisors) == 0 {
		divisors = DefaultFairDivisors()
	}

	return &Generator{
		store:                     store,
		resolver:                  opts.Resolver(),
		retrier:                   NewRetrier(store, handler),
		aggregator:                NewAggregator(store, handler),
		policy:                    opts.Retry,
		metrics:                   opts.Metrics,
		logger:                    slog.New(handler).With(slog.String("component", "generator")),
		loader:                    loader,
		nsParser:                  nsParser,
		converter:                 converter,
		pitfalls:                  opts.PitfallService,
		fair:                      opts.FairService,
		quality:                   opts.QualityService,
		reasoner:                  opts.Reasoner,
		seed:                      opts.Seed,
		fairDivisors:              divisors,
		perOntologyPitfallSummary: opts.PerOntologyPitfallSummary,
	}
}

// WithPolicy returns a copy of g whose remote steps use policy.
func (g *Generator) WithPolicy(policy RetryPolicy) *Generator {
	c := *g
	c.policy = policy
	return &c
}

// Store exposes the report store shared by all steps.
func (g *Generator) Store() *Store { return g.store }

// Resolver exposes the path resolver shared by all steps.
func (g *Generator) Resolver() Resolver { return g.resolver }

func (g *Generator) finish(res StepResult, start time.Time) StepResult {
	res.DurationMs = time.Since(start).Milliseconds()
	if res.Err != nil && res.Error == "" {
		res.Error = res.Err.Error()
	}
	g.metrics.RecordReport(res.Kind, res.Status)
	return res
}

func (g *Generator) skipped(res StepResult, start time.Time) StepResult {
	g.logger.Debug("Report already complete, skipping", slog.String("kind", string(res.Kind)), slog.String("path", res.Path))
	res.Status = StatusSkipped
	return g.finish(res, start)
}

func (g *Generator) failed(res StepResult, start time.Time, err error) StepResult {
	res.Status = StatusFailed
	res.Err = err
	g.logger.Warn("Report step failed", slog.String("kind", string(res.Kind)), slog.String("path", res.Path), slog.Any("error", err))
	return g.finish(res, start)
}

// writeException records a load failure next to the ontology's reports.
func (g *Generator) writeException(ref OntologyRef, cause error) {
	loc := g.resolver.For(ref, ReportLoadException)
	if err := g.store.WriteException(loc, cause); err != nil {
		g.logger.Error("Failed to write load exception report", slog.String("ontology", ref.Path), slog.Any("error", err))
	}
}

// Statistics writes the class/property counts and a deterministic class
// sample. With runRemote and a declared ontology IRI, the quality and FAIR
// reports are fetched first. Results are returned in execution order, the
// statistics step last.
func (g *Generator) Statistics(ctx context.Context, ref OntologyRef, k int, runRemote bool) []StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportStatistics)
	res := StepResult{Kind: ReportStatistics, Path: loc.Path}

	needStats := g.store.ShouldGenerate(loc.Path)
	needRemote := runRemote &&
		(g.store.ShouldGenerate(g.resolver.For(ref, ReportFairCheck).Path) ||
			g.store.ShouldGenerate(g.resolver.For(ref, ReportQualityScore).Path))
	if !needStats && !needRemote {
		return []StepResult{g.skipped(res, start)}
	}

	o, err := g.loader.Load(ctx, ref.Path)
	if err != nil {
		if ctx.Err() != nil {
			return []StepResult{g.failed(res, start, ctx.Err())}
		}
		err = fmt.Errorf("%w: %s: %w", ErrLoad, ref.Path, err)
		g.writeException(ref, err)
		return []StepResult{g.failed(res, start, err)}
	}

	var results []StepResult
	if runRemote && o.BaseIRI != "" {
		ref.BaseIRI = o.BaseIRI
		results = append(results,
			g.QualityScore(ctx, ref, o.BaseIRI),
			g.FairCheck(ctx, ref, o.BaseIRI))
	} else if runRemote {
		g.logger.Info("Ontology declares no IRI, remote assessments skipped", slog.String("ontology", ref.Path))
	}

	if !needStats {
		return append(results, g.skipped(res, start))
	}
	if err := g.store.Write(loc.Path, FormatStatistics(o, SampleClasses(o.Classes, k, g.seed, ref.Name))); err != nil {
		return append(results, g.failed(res, start, err))
	}
	res.Status = StatusGenerated
	return append(results, g.finish(res, start))
}

// SampleClasses draws k classes without replacement from classes sorted by
// IRI. The draw depends only on seed and name, so worker order never changes
// it. When there are at most k classes all of them are returned.
func SampleClasses(classes []ontology.Class, k int, seed uint64, name string) []ontology.Class {
	if k <= 0 || len(classes) == 0 {
		return nil
	}
	sorted := slices.Clone(classes)
	slices.SortFunc(sorted, func(a, b ontology.Class) int { return strings.Compare(a.IRI, b.IRI) })
	if k >= len(sorted) {
		return sorted
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rng := rand.New(rand.NewPCG(seed, h.Sum64()))
	perm := rng.Perm(len(sorted))

	out := make([]ontology.Class, k)
	for i := range out {
		out[i] = sorted[perm[i]]
	}
	return out
}

// FormatStatistics renders the statistics report body.
func FormatStatistics(o *ontology.Ontology, sample []ontology.Class) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d\n", statClasses, len(o.Classes))
	fmt.Fprintf(&b, "%s:%d\n", statAnnotation, len(o.AnnotationProperties))
	fmt.Fprintf(&b, "%s:%d\n", statData, len(o.DataProperties))
	fmt.Fprintf(&b, "%s:%d\n", statObject, len(o.ObjectProperties))
	fmt.Fprintf(&b, "%s:%d\n", statTotal, o.TotalProperties)
	for _, c := range sample {
		b.WriteString(c.IRI)
		b.WriteByte('\n')
		b.WriteString(oneLine(c.FirstComment()))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// oneLine keeps a multi-line comment on the single line reserved for it.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// UsedNamespaces writes the prefix bindings declared by the ontology.
func (g *Generator) UsedNamespaces(ctx context.Context, ref OntologyRef) StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportUsedNamespaces)
	res := StepResult{Kind: ReportUsedNamespaces, Path: loc.Path}
	if !g.store.ShouldGenerate(loc.Path) {
		return g.skipped(res, start)
	}

	ns, err := g.nsParser.Namespaces(ctx, ref.Path)
	if err != nil {
		if ctx.Err() != nil {
			return g.failed(res, start, ctx.Err())
		}
		err = fmt.Errorf("%w: %s: %w", ErrLoad, ref.Path, err)
		g.writeException(ref, err)
		return g.failed(res, start, err)
	}

	if err := g.store.Write(loc.Path, FormatNamespaces(ns)); err != nil {
		return g.failed(res, start, err)
	}
	res.Status = StatusGenerated
	return g.finish(res, start)
}

// FormatNamespaces renders the used-namespaces report body.
func FormatNamespaces(ns []ontology.Namespace) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d\n", usedOntologiesKey, len(ns))
	for _, n := range ns {
		fmt.Fprintf(&b, "%s: %s\n", n.Prefix, n.IRI)
	}
	return []byte(b.String())
}

// Pitfalls submits the ontology, as RDF/XML, to the pitfall scanner.
func (g *Generator) Pitfalls(ctx context.Context, ref OntologyRef) StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportPitfalls)
	res := StepResult{Kind: ReportPitfalls, Path: loc.Path}
	if !g.store.ShouldGenerate(loc.Path) {
		return g.skipped(res, start)
	}
	if g.pitfalls == nil {
		return g.failed(res, start, fmt.Errorf("%w: no pitfall service configured", ErrConfigValidation))
	}

	content, err := g.converter.RDFXML(ctx, ref.Path)
	if err != nil {
		return g.failed(res, start, fmt.Errorf("%w: %s: %w", ErrLoad, ref.Path, err))
	}

	res = g.fetch(ctx, res, start, func(actx context.Context) ([]byte, error) {
		return g.pitfalls.ScanContent(actx, content)
	}, nil)
	g.summarizePitfalls(ctx, res, loc)
	return res
}

// PitfallsByIRI asks the pitfall scanner to fetch the ontology itself.
func (g *Generator) PitfallsByIRI(ctx context.Context, ref OntologyRef, iri string) StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportPitfalls)
	res := StepResult{Kind: ReportPitfalls, Path: loc.Path}
	if !g.store.ShouldGenerate(loc.Path) {
		return g.skipped(res, start)
	}
	if g.pitfalls == nil {
		return g.failed(res, start, fmt.Errorf("%w: no pitfall service configured", ErrConfigValidation))
	}

	res = g.fetch(ctx, res, start, func(actx context.Context) ([]byte, error) {
		return g.pitfalls.ScanIRI(actx, iri)
	}, nil)
	g.summarizePitfalls(ctx, res, loc)
	return res
}

func (g *Generator) summarizePitfalls(ctx context.Context, res StepResult, loc Location) {
	if !g.perOntologyPitfallSummary || res.Status != StatusGenerated {
		return
	}
	if _, err := g.aggregator.SumPitfalls(ctx, loc.Dir, PitfallSummaryName); err != nil {
		g.logger.Warn("Failed to write pitfall summary", slog.String("dir", loc.Dir), slog.Any("error", err))
	}
}

// FairCheck fetches and normalizes the FAIR metrics for iri.
func (g *Generator) FairCheck(ctx context.Context, ref OntologyRef, iri string) StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportFairCheck)
	res := StepResult{Kind: ReportFairCheck, Path: loc.Path}
	if !g.store.ShouldGenerate(loc.Path) {
		return g.skipped(res, start)
	}
	if g.fair == nil {
		return g.failed(res, start, fmt.Errorf("%w: no FAIR service configured", ErrConfigValidation))
	}

	return g.fetch(ctx, res, start, func(actx context.Context) ([]byte, error) {
		return g.fair.Check(actx, iri)
	}, func(body []byte) ([]byte, error) {
		return NormalizeFair(body, g.fairDivisors)
	})
}

// QualityScore fetches the quality assessment for iri.
func (g *Generator) QualityScore(ctx context.Context, ref OntologyRef, iri string) StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportQualityScore)
	res := StepResult{Kind: ReportQualityScore, Path: loc.Path}
	if !g.store.ShouldGenerate(loc.Path) {
		return g.skipped(res, start)
	}
	if g.quality == nil {
		return g.failed(res, start, fmt.Errorf("%w: no quality service configured", ErrConfigValidation))
	}

	return g.fetch(ctx, res, start, func(actx context.Context) ([]byte, error) {
		return g.quality.Assess(actx, iri)
	}, requireJSONObject)
}

// fetch runs a remote request through the retry loop and persists the
// (optionally transformed) body at res.Path.
func (g *Generator) fetch(ctx context.Context, res StepResult, start time.Time, request func(context.Context) ([]byte, error), transform func([]byte) ([]byte, error)) StepResult {
	attempts, err := g.retrier.Do(ctx, res.Path, g.policy, func(actx context.Context) error {
		body, err := request(actx)
		if err != nil {
			return err
		}
		if transform != nil {
			if body, err = transform(body); err != nil {
				return err
			}
		}
		return g.store.Write(res.Path, body)
	})
	res.Attempts = attempts
	if err != nil {
		return g.failed(res, start, err)
	}
	res.Status = StatusGenerated
	return g.finish(res, start)
}

// ReasonerCheck always runs the reasoner. A failure is written to the
// reasoner error report; success removes a stale one. Either way the step is
// not a pipeline failure, only a missing reasoner or cancellation is.
func (g *Generator) ReasonerCheck(ctx context.Context, ref OntologyRef) StepResult {
	start := time.Now()
	loc := g.resolver.For(ref, ReportReasonerError)
	res := StepResult{Kind: ReportReasonerError, Path: loc.Path}
	if g.reasoner == nil {
		return g.failed(res, start, fmt.Errorf("%w: no reasoner configured", ErrConfigValidation))
	}

	checkErr := g.reasoner.Check(ctx, ref.Path)
	if checkErr == nil {
		if err := g.store.Remove(loc.Path); err != nil {
			g.logger.Warn("Failed to remove stale reasoner error report", slog.String("path", loc.Path), slog.Any("error", err))
		}
		res.Status = StatusSuccess
		return g.finish(res, start)
	}
	if ctx.Err() != nil || errors.Is(checkErr, context.Canceled) {
		return g.failed(res, start, checkErr)
	}

	checkErr = fmt.Errorf("%w: %s: %w", ErrReasoner, ref.Path, checkErr)
	if err := g.store.Write(loc.Path, []byte(errorText(checkErr))); err != nil {
		return g.failed(res, start, err)
	}
	g.logger.Info("Reasoner reported a problem", slog.String("ontology", ref.Path), slog.Any("error", checkErr))
	res.Status = StatusGenerated
	res.Err = checkErr
	return g.finish(res, start)
}

// Convert rewrites a Turtle ontology as RDF/XML next to it and returns a
// reference to the new file. On failure the load exception report is
// written and the original ref is returned.
func (g *Generator) Convert(ctx context.Context, ref OntologyRef) (OntologyRef, StepResult) {
	start := time.Now()
	res := StepResult{Kind: ReportConversion, Path: ontology.OWLPath(ref.Path)}

	out, err := g.converter.Convert(ctx, ref.Path)
	if err != nil {
		if ctx.Err() != nil {
			return ref, g.failed(res, start, ctx.Err())
		}
		err = fmt.Errorf("%w: %s: %w", ErrConversion, ref.Path, err)
		g.writeException(ref, err)
		return ref, g.failed(res, start, err)
	}

	converted := NewOntologyRef(out)
	converted.Kind = KindOWL
	res.Path = out
	res.Status = StatusSuccess
	return converted, g.finish(res, start)
}
