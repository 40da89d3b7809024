package audit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stackvity/ontaudit/internal/testutil"
	"github.com/stackvity/ontaudit/pkg/audit"
	"github.com/stackvity/ontaudit/pkg/audit/ontology"
	"github.com/stackvity/ontaudit/pkg/audit/reasoner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type generatorFixture struct {
	opts     *audit.Options
	loader   *testutil.MockLoader
	ns       *testutil.MockNamespaceParser
	pitfalls *testutil.MockPitfallService
	fair     *testutil.MockFairService
	quality  *testutil.MockQualityService
	reasoner *testutil.MockReasoner
	corpus   string
	out      string
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()
	f := &generatorFixture{
		loader:   &testutil.MockLoader{},
		ns:       &testutil.MockNamespaceParser{},
		pitfalls: &testutil.MockPitfallService{},
		fair:     &testutil.MockFairService{},
		quality:  &testutil.MockQualityService{},
		reasoner: &testutil.MockReasoner{},
		corpus:   t.TempDir(),
		out:      t.TempDir(),
	}
	f.opts = &audit.Options{
		OutputPath:      f.out,
		Seed:            audit.DefaultSeed,
		Retry:           fastPolicy(2),
		Loader:          f.loader,
		NamespaceParser: f.ns,
		PitfallService:  f.pitfalls,
		FairService:     f.fair,
		QualityService:  f.quality,
		Reasoner:        f.reasoner,
	}
	return f
}

func (f *generatorFixture) ontology(t *testing.T, name, content string) audit.OntologyRef {
	t.Helper()
	path := filepath.Join(f.corpus, name)
	testutil.CreateDummyFile(t, path, content)
	return audit.NewOntologyRef(path)
}

func pizza(base string) *ontology.Ontology {
	return &ontology.Ontology{
		BaseIRI: base,
		Classes: []ontology.Class{
			{IRI: "http://example.org/pizza#Topping"},
			{IRI: "http://example.org/pizza#Pizza", Comments: []string{"A flat\nbaked dish."}},
		},
		AnnotationProperties: []string{"http://example.org/pizza#editorNote"},
		DataProperties:       []string{"http://example.org/pizza#hasCalories"},
		ObjectProperties:     []string{"http://example.org/pizza#hasTopping", "http://example.org/pizza#isToppingOf"},
		TotalProperties:      4,
	}
}

func TestGenerator_StatisticsIdempotent(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	f.loader.On("Load", mock.Anything, ref.Path).Return(pizza(""), nil).Once()

	gen := audit.NewGenerator(f.opts)
	results := gen.Statistics(context.Background(), ref, 5, false)
	require.Len(t, results, 1)
	assert.Equal(t, audit.StatusGenerated, results[0].Status)

	want := "Classes:2\nAnnotation properties:1\nData properties:1\nObject properties:2\ntotal properties:4\n" +
		"http://example.org/pizza#Pizza\nA flat baked dish.\n" +
		"http://example.org/pizza#Topping\n\n"
	assert.Equal(t, want, testutil.ReadFile(t, filepath.Join(f.out, "pizza", "pizza.txt")))

	again := gen.Statistics(context.Background(), ref, 5, false)
	require.Len(t, again, 1)
	assert.Equal(t, audit.StatusSkipped, again[0].Status)
	f.loader.AssertNumberOfCalls(t, "Load", 1)
}

func TestGenerator_StatisticsLoadFailure(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "broken.owl", "<rdf:RDF")
	f.loader.On("Load", mock.Anything, ref.Path).Return(nil, errors.New("unexpected EOF"))

	results := audit.NewGenerator(f.opts).Statistics(context.Background(), ref, 5, false)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.ErrorIs(t, results[0].Err, audit.ErrLoad)

	assert.Contains(t, testutil.ReadFile(t, filepath.Join(f.out, "broken", "brokenException_while_Loading.txt")), "unexpected EOF")
	_, err := os.Stat(filepath.Join(f.out, "broken", "broken.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerator_StatisticsWithRemote(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	iri := "http://example.org/pizza"
	f.loader.On("Load", mock.Anything, ref.Path).Return(pizza(iri), nil)
	f.quality.On("Assess", mock.Anything, iri).Return([]byte(` {"overall_score": 0.7} `), nil)
	f.fair.On("Check", mock.Anything, iri).Return([]byte(fairPayload), nil)

	results := audit.NewGenerator(f.opts).Statistics(context.Background(), ref, 1, true)
	require.Len(t, results, 3)
	assert.Equal(t, audit.ReportQualityScore, results[0].Kind)
	assert.Equal(t, audit.ReportFairCheck, results[1].Kind)
	assert.Equal(t, audit.ReportStatistics, results[2].Kind)
	for _, r := range results {
		assert.Equal(t, audit.StatusGenerated, r.Status, r.Kind)
	}

	assert.Equal(t, `{"overall_score": 0.7}`, testutil.ReadFile(t, filepath.Join(f.out, "pizza", "pizza_FOOPS.json")))
	mean, _ := decodeFair(t, []byte(testutil.ReadFile(t, filepath.Join(f.out, "pizza", "pizza_Fair_Checker.json"))))
	assert.InDelta(t, 1.5, mean.F, 1e-9)
}

func TestGenerator_StatisticsRemoteOnlyMissing(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	iri := "http://example.org/pizza"
	testutil.CreateDummyFile(t, filepath.Join(f.out, "pizza", "pizza.txt"), statisticsReport(1, 1, 1, 1, 3))
	testutil.CreateDummyFile(t, filepath.Join(f.out, "pizza", "pizza_FOOPS.json"), `{"overall_score": 0.7}`)
	f.loader.On("Load", mock.Anything, ref.Path).Return(pizza(iri), nil)
	f.fair.On("Check", mock.Anything, iri).Return(nil, errors.New("HTTP 502"))

	results := audit.NewGenerator(f.opts).Statistics(context.Background(), ref, 1, true)
	require.Len(t, results, 3)
	assert.Equal(t, audit.StatusSkipped, results[0].Status, "quality report already complete")
	assert.True(t, results[1].Failed())
	assert.ErrorIs(t, results[1].Err, audit.ErrRetryExhausted)
	assert.Equal(t, 2, results[1].Attempts)
	assert.Equal(t, audit.StatusSkipped, results[2].Status)
	f.quality.AssertNotCalled(t, "Assess", mock.Anything, mock.Anything)
	assert.FileExists(t, audit.FailurePath(filepath.Join(f.out, "pizza", "pizza_Fair_Checker.json")))
}

func TestGenerator_QualityRejectsNonObject(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	f.quality.On("Assess", mock.Anything, "http://x").Return([]byte(`<html>502</html>`), nil)

	res := audit.NewGenerator(f.opts).QualityScore(context.Background(), ref, "http://x")
	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, audit.ErrRemoteService)
	assert.NoFileExists(t, filepath.Join(f.out, "pizza", "pizza_FOOPS.json"))
}

func TestSampleClasses(t *testing.T) {
	var classes []ontology.Class
	for _, c := range []string{"E", "B", "D", "A", "G", "C", "F", "H"} {
		classes = append(classes, ontology.Class{IRI: "http://example.org/" + c})
	}
	shuffled := append([]ontology.Class(nil), classes...)
	shuffled[0], shuffled[7] = shuffled[7], shuffled[0]

	first := audit.SampleClasses(classes, 3, 357, "pizza")
	require.Len(t, first, 3)
	assert.Equal(t, first, audit.SampleClasses(shuffled, 3, 357, "pizza"), "input order does not matter")
	assert.Equal(t, first, audit.SampleClasses(classes, 3, 357, "pizza"), "same seed and name give the same sample")

	seen := map[string]bool{}
	for _, c := range first {
		assert.False(t, seen[c.IRI], "sampling is without replacement")
		seen[c.IRI] = true
	}

	all := audit.SampleClasses(classes[:2], 5, 357, "pizza")
	assert.Equal(t, []string{"http://example.org/B", "http://example.org/E"}, []string{all[0].IRI, all[1].IRI})
	assert.Nil(t, audit.SampleClasses(classes, 0, 357, "pizza"))
}

func TestGenerator_UsedNamespaces(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "geo.ttl", testutil.PizzaTurtle)
	f.ns.On("Namespaces", mock.Anything, ref.Path).Return([]ontology.Namespace{
		{Prefix: "", IRI: "http://example.org/pizza#"},
		{Prefix: "owl", IRI: "http://www.w3.org/2002/07/owl#"},
	}, nil).Once()

	gen := audit.NewGenerator(f.opts)
	res := gen.UsedNamespaces(context.Background(), ref)
	assert.Equal(t, audit.StatusGenerated, res.Status)
	assert.Equal(t, "Used_Ontologies:2\n: http://example.org/pizza#\nowl: http://www.w3.org/2002/07/owl#\n",
		testutil.ReadFile(t, filepath.Join(f.out, "geo", "geo_used_Ontologies.txt")))

	assert.Equal(t, audit.StatusSkipped, gen.UsedNamespaces(context.Background(), ref).Status)
	f.ns.AssertExpectations(t)
}

func TestGenerator_Pitfalls(t *testing.T) {
	f := newGeneratorFixture(t)
	f.opts.PerOntologyPitfallSummary = true
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	f.pitfalls.On("ScanContent", mock.Anything, mock.Anything).
		Return([]byte("P08 Importance level: Minor\nP11 Importance level: Important\n"), nil).Once()

	gen := audit.NewGenerator(f.opts)
	res := gen.Pitfalls(context.Background(), ref)
	require.Equal(t, audit.StatusGenerated, res.Status, res.Error)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "Minor:1\nImportant:1\n", testutil.ReadFile(t, filepath.Join(f.out, "pizza", audit.PitfallSummaryName+".txt")))

	assert.Equal(t, audit.StatusSkipped, gen.Pitfalls(context.Background(), ref).Status)
	f.pitfalls.AssertExpectations(t)
}

func TestGenerator_PitfallsSubmitsRDFXML(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "geo.ttl", testutil.PizzaTurtle)
	var sent []byte
	f.pitfalls.On("ScanContent", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]byte) }).
		Return([]byte("P08 Importance level: Minor\n"), nil).Once()

	res := audit.NewGenerator(f.opts).Pitfalls(context.Background(), ref)
	require.Equal(t, audit.StatusGenerated, res.Status, res.Error)

	body := string(sent)
	assert.Contains(t, body, "<rdf:RDF")
	assert.Contains(t, body, `rdf:about="http://example.org/pizza#Pizza"`)
	assert.NotContains(t, body, "@prefix", "Turtle is never sent as is")
	f.pitfalls.AssertExpectations(t)
}

func TestGenerator_PitfallsUnparsableOntology(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "broken.ttl", "@prefix ex: <http://example.org/> .\nex:a ex:b ")

	res := audit.NewGenerator(f.opts).Pitfalls(context.Background(), ref)
	assert.Equal(t, audit.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, audit.ErrLoad)
	f.pitfalls.AssertNotCalled(t, "ScanContent", mock.Anything, mock.Anything)
}

func TestGenerator_PitfallsByIRI(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := audit.NewOntologyRef(filepath.Join(f.corpus, "gone.owl"))
	f.pitfalls.On("ScanIRI", mock.Anything, "http://example.org/gone").Return([]byte("no pitfalls"), nil)

	res := audit.NewGenerator(f.opts).PitfallsByIRI(context.Background(), ref, "http://example.org/gone")
	assert.Equal(t, audit.StatusGenerated, res.Status)
	assert.Equal(t, "no pitfalls", testutil.ReadFile(t, filepath.Join(f.out, "gone", "gone_OOPS.txt")))
}

func TestGenerator_MissingService(t *testing.T) {
	f := newGeneratorFixture(t)
	f.opts.FairService = nil
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)

	res := audit.NewGenerator(f.opts).FairCheck(context.Background(), ref, "http://x")
	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, audit.ErrConfigValidation)
}

func TestGenerator_ReasonerCheck(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	reportPath := filepath.Join(f.out, "pizza", "pizza_reasoner_error.txt")
	gen := audit.NewGenerator(f.opts)

	inconsistent := reasoner.WrapReasonerError(reasoner.ErrReasonerNonZeroExit, "exit code 1: ontology is inconsistent")
	f.reasoner.On("Check", mock.Anything, ref.Path).Return(inconsistent).Once()
	res := gen.ReasonerCheck(context.Background(), ref)
	assert.Equal(t, audit.StatusGenerated, res.Status)
	assert.False(t, res.Failed(), "a reasoner finding is reported, not a pipeline failure")
	assert.ErrorIs(t, res.Err, audit.ErrReasoner)
	assert.Contains(t, testutil.ReadFile(t, reportPath), "ontology is inconsistent")

	f.reasoner.On("Check", mock.Anything, ref.Path).Return(nil).Once()
	res = gen.ReasonerCheck(context.Background(), ref)
	assert.Equal(t, audit.StatusSuccess, res.Status)
	assert.NoFileExists(t, reportPath, "a passing check removes the stale report")
	f.reasoner.AssertExpectations(t)
}

func TestGenerator_ReasonerCancelled(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.owl", testutil.PizzaRDFXML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.reasoner.On("Check", mock.Anything, ref.Path).Return(context.Canceled)

	res := audit.NewGenerator(f.opts).ReasonerCheck(ctx, ref)
	assert.True(t, res.Failed())
	assert.NoFileExists(t, filepath.Join(f.out, "pizza", "pizza_reasoner_error.txt"))
}

func TestGenerator_Convert(t *testing.T) {
	f := newGeneratorFixture(t)
	ref := f.ontology(t, "pizza.ttl", testutil.PizzaTurtle)

	converted, res := audit.NewGenerator(f.opts).Convert(context.Background(), ref)
	require.Equal(t, audit.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, filepath.Join(f.corpus, "pizza.owl"), converted.Path)
	assert.Equal(t, audit.KindOWL, converted.Kind)
	assert.Equal(t, "pizza", converted.Name)

	o, err := ontology.NewRDFLoader(nil, nil, nil).Load(context.Background(), converted.Path)
	require.NoError(t, err)
	assert.Len(t, o.Classes, 3)
	assert.Equal(t, 4, o.TotalProperties)
}

func TestGenerator_ConvertFailure(t *testing.T) {
	f := newGeneratorFixture(t)
	conv := &testutil.MockConverter{}
	f.opts.Converter = conv
	ref := f.ontology(t, "bad.ttl", "@prefix : <")
	conv.On("Convert", mock.Anything, ref.Path).Return("", errors.New("syntax error"))

	out, res := audit.NewGenerator(f.opts).Convert(context.Background(), ref)
	assert.Equal(t, ref, out)
	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.Err, audit.ErrConversion)
	assert.FileExists(t, filepath.Join(f.out, "bad", "badException_while_Loading.txt"))
}
