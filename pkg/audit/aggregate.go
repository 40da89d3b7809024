package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	statClasses    = "Classes"
	statAnnotation = "Annotation properties"
	statData       = "Data properties"
	statObject     = "Object properties"
	statTotal      = "total properties"

	usedOntologiesKey = "Used_Ontologies"
	placeholderPrefix = "NO name"
)

var statisticsKeys = []string{statClasses, statAnnotation, statData, statObject, statTotal}

// statisticsExclusions mark .txt reports that are not statistics reports.
// Matched against the lower-cased file stem.
var statisticsExclusions = []string{"_oops", "exception", "_used_ontologies", "_reasoner_error"}

// summaryHeaders open the bodies written by the namespace and pitfall
// aggregations, which can share a directory under any summary name.
var summaryHeaders = []string{usedOntologiesKey + ":", "Minor:"}

// errOtherSummary marks a file written by a different aggregation.
var errOtherSummary = errors.New("not a statistics report")

var pitfallSeverity = regexp.MustCompile(`Importance.*?\b(Minor|Important)\b`)

const qualitySchema = `{
  "type": "object",
  "required": ["overall_score"],
  "properties": {"overall_score": {"type": "number"}}
}`

const fairSchema = `{
  "type": "array",
  "minItems": 1,
  "items": [{
    "type": "object",
    "required": ["mean"],
    "properties": {
      "mean": {
        "type": "object",
        "required": ["F", "A", "I", "R"],
        "properties": {
          "F": {"type": "number"},
          "A": {"type": "number"},
          "I": {"type": "number"},
          "R": {"type": "number"}
        }
      }
    }
  }]
}`

// StatisticsTotals is the corpus sum of the statistics reports.
type StatisticsTotals struct {
	Classes              int `json:"classes"`
	AnnotationProperties int `json:"annotationProperties"`
	DataProperties       int `json:"dataProperties"`
	ObjectProperties     int `json:"objectProperties"`
	TotalProperties      int `json:"totalProperties"`
}

// NamespaceBinding is one entry of the namespace union.
type NamespaceBinding struct {
	Key string `json:"key"`
	IRI string `json:"iri"`
}

// PitfallHistogram counts pitfall lines by severity.
type PitfallHistogram struct {
	Minor     int `json:"Minor"`
	Important int `json:"Important"`
}

// ScoreMeans is the corpus mean of the quality and FAIR scores.
type ScoreMeans struct {
	FOOPS float64 `json:"FOOPS"`
	F     float64 `json:"F"`
	A     float64 `json:"A"`
	I     float64 `json:"I"`
	R     float64 `json:"R"`
}

// Aggregator folds a directory of per-ontology reports into one corpus
// summary written at dir/name. Every run rebuilds the summary from scratch.
type Aggregator struct {
	store  *Store
	logger *slog.Logger
}

// NewAggregator creates an aggregator writing through store.
func NewAggregator(store *Store, loggerHandler slog.Handler) *Aggregator {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	if store == nil {
		store = NewStore(loggerHandler)
	}
	return &Aggregator{
		store:  store,
		logger: slog.New(loggerHandler).With(slog.String("component", "aggregator")),
	}
}

// collect walks dir in lexical order and returns regular files with
// extension ext whose stem is accepted by keep and does not contain name.
func (a *Aggregator) collect(ctx context.Context, dir, name, ext string, keep func(stem string) bool) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: summary name cannot be empty", ErrArgument)
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || filepath.Ext(path) != ext {
			return nil
		}
		base := filepath.Base(path)
		stem := strings.TrimSuffix(base, ext)
		if strings.Contains(stem, name) || !keep(stem) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Reports collected", slog.String("dir", dir), slog.String("ext", ext), slog.Int("count", len(files)))
	return files, nil
}

// SumStatistics sums the five count lines of every statistics report.
func (a *Aggregator) SumStatistics(ctx context.Context, dir, name string) (StatisticsTotals, error) {
	files, err := a.collect(ctx, dir, name, ".txt", func(stem string) bool {
		lower := strings.ToLower(stem)
		for _, ex := range statisticsExclusions {
			if strings.Contains(lower, ex) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return StatisticsTotals{}, err
	}

	var totals StatisticsTotals
	for _, file := range files {
		counts, err := parseStatistics(file)
		if errors.Is(err, errOtherSummary) {
			a.logger.Debug("Skipping summary of another aggregation", slog.String("path", file))
			continue
		}
		if err != nil {
			return StatisticsTotals{}, err
		}
		totals.Classes += counts[0]
		totals.AnnotationProperties += counts[1]
		totals.DataProperties += counts[2]
		totals.ObjectProperties += counts[3]
		totals.TotalProperties += counts[4]
	}

	var b strings.Builder
	for i, v := range []int{totals.Classes, totals.AnnotationProperties, totals.DataProperties, totals.ObjectProperties, totals.TotalProperties} {
		fmt.Fprintf(&b, "%s:%d\n", statisticsKeys[i], v)
	}
	if err := a.store.Write(filepath.Join(dir, name+".txt"), []byte(b.String())); err != nil {
		return StatisticsTotals{}, err
	}
	a.logger.Info("Statistics summed", slog.String("dir", dir), slog.Int("reports", len(files)), slog.Int("classes", totals.Classes))
	return totals, nil
}

func parseStatistics(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	counts := make([]int, 0, len(statisticsKeys))
	scanner := bufio.NewScanner(f)
	for line := 1; line <= len(statisticsKeys); line++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, &AggregationFormatError{Path: path, Line: line, Reason: fmt.Sprintf("missing %q line", statisticsKeys[line-1])}
		}
		text := strings.TrimRight(scanner.Text(), "\r")
		if line == 1 && slices.ContainsFunc(summaryHeaders, func(h string) bool { return strings.HasPrefix(text, h) }) {
			return nil, errOtherSummary
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok || key != statisticsKeys[line-1] {
			return nil, &AggregationFormatError{Path: path, Line: line, Reason: fmt.Sprintf("expected %q, got %q", statisticsKeys[line-1]+":", text)}
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, &AggregationFormatError{Path: path, Line: line, Reason: fmt.Sprintf("%q is not a non-negative integer", value)}
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// namespaceUnion merges bindings across reports. Named prefixes keep their
// first IRI and conflicting IRIs get prefix#1, prefix#2...; anonymous
// bindings become "NO name<i>" placeholders, one per distinct IRI.
type namespaceUnion struct {
	bindings     []NamespaceBinding
	byKey        map[string]string
	placeholders map[string]bool
	variants     map[string]int
	next         int
}

func newNamespaceUnion() *namespaceUnion {
	return &namespaceUnion{
		byKey:        map[string]string{},
		placeholders: map[string]bool{},
		variants:     map[string]int{},
	}
}

func (u *namespaceUnion) put(key, iri string) {
	u.byKey[key] = iri
	u.bindings = append(u.bindings, NamespaceBinding{Key: key, IRI: iri})
}

func (u *namespaceUnion) add(prefix, iri string) {
	if prefix == "" {
		if u.placeholders[iri] {
			return
		}
		u.placeholders[iri] = true
		u.put(fmt.Sprintf("%s%d", placeholderPrefix, u.next), iri)
		u.next++
		return
	}

	existing, ok := u.byKey[prefix]
	if !ok {
		u.put(prefix, iri)
		return
	}
	if existing == iri {
		return
	}
	for i := 1; i <= u.variants[prefix]; i++ {
		if u.byKey[fmt.Sprintf("%s#%d", prefix, i)] == iri {
			return
		}
	}
	u.variants[prefix]++
	u.put(fmt.Sprintf("%s#%d", prefix, u.variants[prefix]), iri)
}

// SumNamespaces merges every used-namespaces report.
func (a *Aggregator) SumNamespaces(ctx context.Context, dir, name string) ([]NamespaceBinding, error) {
	files, err := a.collect(ctx, dir, name, ".txt", func(stem string) bool {
		return strings.Contains(stem, "_used_Ontologies")
	})
	if err != nil {
		return nil, err
	}

	union := newNamespaceUnion()
	for _, file := range files {
		if err := foldNamespaces(file, union); err != nil {
			return nil, err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d\n", usedOntologiesKey, len(union.bindings))
	for _, nb := range union.bindings {
		fmt.Fprintf(&b, "%s: %s\n", nb.Key, nb.IRI)
	}
	if err := a.store.Write(filepath.Join(dir, name+".txt"), []byte(b.String())); err != nil {
		return nil, err
	}
	a.logger.Info("Namespaces merged", slog.String("dir", dir), slog.Int("reports", len(files)), slog.Int("namespaces", len(union.bindings)))
	return union.bindings, nil
}

func foldNamespaces(path string, union *namespaceUnion) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		prefix, iri, ok := strings.Cut(text, ":")
		if !ok {
			return &AggregationFormatError{Path: path, Line: line, Reason: "binding has no ':' separator"}
		}
		union.add(strings.TrimSpace(prefix), strings.TrimSpace(iri))
	}
	return scanner.Err()
}

// SumPitfalls counts Minor and Important pitfall lines across pitfall reports.
func (a *Aggregator) SumPitfalls(ctx context.Context, dir, name string) (PitfallHistogram, error) {
	files, err := a.collect(ctx, dir, name, ".txt", func(stem string) bool {
		return strings.Contains(stem, "_OOPS")
	})
	if err != nil {
		return PitfallHistogram{}, err
	}

	var hist PitfallHistogram
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return PitfallHistogram{}, err
		}
		CountPitfalls(data, &hist)
	}

	body := fmt.Sprintf("Minor:%d\nImportant:%d\n", hist.Minor, hist.Important)
	if err := a.store.Write(filepath.Join(dir, name+".txt"), []byte(body)); err != nil {
		return PitfallHistogram{}, err
	}
	a.logger.Debug("Pitfalls counted", slog.String("dir", dir), slog.Int("reports", len(files)), slog.Int("minor", hist.Minor), slog.Int("important", hist.Important))
	return hist, nil
}

// CountPitfalls adds the severity lines of one pitfall report to hist. Each
// line counts at most once.
func CountPitfalls(report []byte, hist *PitfallHistogram) {
	for _, line := range strings.Split(string(report), "\n") {
		m := pitfallSeverity.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch m[1] {
		case "Minor":
			hist.Minor++
		case "Important":
			hist.Important++
		}
	}
}

// MeanScores averages overall_score over the quality reports and the F/A/I/R
// means over the FAIR reports.
func (a *Aggregator) MeanScores(ctx context.Context, dir, name string) (ScoreMeans, error) {
	qualityFiles, err := a.collect(ctx, dir, name, ".json", func(stem string) bool {
		return strings.Contains(stem, "_FOOPS")
	})
	if err != nil {
		return ScoreMeans{}, err
	}
	fairFiles, err := a.collect(ctx, dir, name, ".json", func(stem string) bool {
		return strings.Contains(stem, "Fair_Checker")
	})
	if err != nil {
		return ScoreMeans{}, err
	}
	if len(qualityFiles) == 0 {
		return ScoreMeans{}, fmt.Errorf("%w: no quality reports under '%s'", ErrEmptyReportSet, dir)
	}
	if len(fairFiles) == 0 {
		return ScoreMeans{}, fmt.Errorf("%w: no FAIR reports under '%s'", ErrEmptyReportSet, dir)
	}

	qSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(qualitySchema))
	if err != nil {
		return ScoreMeans{}, err
	}
	fSchema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(fairSchema))
	if err != nil {
		return ScoreMeans{}, err
	}

	var means ScoreMeans
	for _, file := range qualityFiles {
		var doc struct {
			OverallScore float64 `json:"overall_score"`
		}
		if err := decodeValidated(file, qSchema, &doc); err != nil {
			return ScoreMeans{}, err
		}
		means.FOOPS += doc.OverallScore
	}
	for _, file := range fairFiles {
		var doc []struct {
			Mean *FairMean `json:"mean"`
		}
		if err := decodeValidated(file, fSchema, &doc); err != nil {
			return ScoreMeans{}, err
		}
		m := doc[0].Mean
		means.F += m.F
		means.A += m.A
		means.I += m.I
		means.R += m.R
	}
	nq, nf := float64(len(qualityFiles)), float64(len(fairFiles))
	means.FOOPS /= nq
	means.F /= nf
	means.A /= nf
	means.I /= nf
	means.R /= nf

	data, err := json.Marshal(means)
	if err != nil {
		return ScoreMeans{}, err
	}
	if err := a.store.Write(filepath.Join(dir, name+".json"), data); err != nil {
		return ScoreMeans{}, err
	}
	a.logger.Info("Scores averaged", slog.String("dir", dir), slog.Int("qualityReports", len(qualityFiles)), slog.Int("fairReports", len(fairFiles)))
	return means, nil
}

func decodeValidated(path string, schema *gojsonschema.Schema, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &AggregationFormatError{Path: path, Reason: err.Error()}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return &AggregationFormatError{Path: path, Reason: strings.Join(reasons, "; ")}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &AggregationFormatError{Path: path, Reason: err.Error()}
	}
	return nil
}
