package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackvity/ontaudit/pkg/audit/encoding"
	"github.com/stackvity/ontaudit/pkg/audit/format"
	"github.com/stackvity/ontaudit/pkg/audit/ontology"
	"github.com/stackvity/ontaudit/pkg/audit/reasoner"
)

// RetryConfig is the raw retry section; durations are parsed by the config layer.
type RetryConfig struct {
	MaxAttempts     int    `mapstructure:"maxAttempts"`
	SweepAttempts   int    `mapstructure:"sweepAttempts"`
	InitialInterval string `mapstructure:"initialInterval"`
	MaxInterval     string `mapstructure:"maxInterval"`
	AttemptTimeout  string `mapstructure:"attemptTimeout"`
}

// ServicesConfig holds the remote assessment endpoints.
type ServicesConfig struct {
	PitfallURL        string `mapstructure:"pitfallURL"`
	FairURL           string `mapstructure:"fairURL"`
	QualityURL        string `mapstructure:"qualityURL"`
	RequestsPerMinute int    `mapstructure:"requestsPerMinute"`
	UserAgent         string `mapstructure:"userAgent"`
}

// ReasonerConfig holds the external reasoner command. "{input}" in Command is
// replaced by the ontology path.
type ReasonerConfig struct {
	Command []string `mapstructure:"command"`
	Timeout string   `mapstructure:"timeout"`
}

// LedgerConfig holds settings for the attempt ledger.
type LedgerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Format  string `mapstructure:"format"`
}

// Hooks receives progress callbacks from the engine.
// Implementations MUST be thread-safe as methods may be called concurrently.
type Hooks interface {
	OnOntologyDiscovered(path string) error
	OnOntologyStatusUpdate(path string, status Status, message string, duration time.Duration) error
	OnRunComplete(report Report) error
}

// NoOpHooks provides a default, do-nothing implementation of the Hooks interface.
type NoOpHooks struct{}

// OnOntologyDiscovered implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnOntologyDiscovered(path string) error { return nil }

// OnOntologyStatusUpdate implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnOntologyStatusUpdate(path string, status Status, message string, duration time.Duration) error {
	return nil
}

// OnRunComplete implements the Hooks interface. It performs no action.
func (h *NoOpHooks) OnRunComplete(report Report) error { return nil }

// OntologyLoader loads an ontology and summarizes it.
type OntologyLoader interface {
	Load(ctx context.Context, path string) (*ontology.Ontology, error)
}

// NamespaceParser lists the prefix bindings of an ontology file.
type NamespaceParser interface {
	Namespaces(ctx context.Context, path string) ([]ontology.Namespace, error)
}

// FormatConverter rewrites a Turtle file as RDF/XML and returns the new
// path. RDFXML returns any supported file as RDF/XML without writing it.
type FormatConverter interface {
	Convert(ctx context.Context, ttlPath string) (string, error)
	RDFXML(ctx context.Context, path string) ([]byte, error)
}

// PitfallService submits an ontology to the pitfall scanner, either inline
// or by IRI, and returns the raw response.
type PitfallService interface {
	ScanContent(ctx context.Context, content []byte) ([]byte, error)
	ScanIRI(ctx context.Context, iri string) ([]byte, error)
}

// FairService returns the raw FAIR metric array for an IRI.
type FairService interface {
	Check(ctx context.Context, iri string) ([]byte, error)
}

// QualityService returns the raw quality assessment document for an IRI.
type QualityService interface {
	Assess(ctx context.Context, iri string) ([]byte, error)
}

// LedgerEntry is the last known outcome of one report kind for one ontology.
type LedgerEntry struct {
	Ontology  string     `json:"ontology"`
	Kind      ReportKind `json:"kind"`
	Status    Status     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"lastError,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Ledger keeps attempt history across runs. The report files stay the
// completeness signal; the ledger only explains them.
type Ledger interface {
	Load(path string) error
	Record(entry LedgerEntry) error
	Get(ontology string, kind ReportKind) (LedgerEntry, bool)
	Entries() []LedgerEntry
	Persist(path string) error
}

// NoOpLedger is used when the ledger is disabled.
type NoOpLedger struct{}

// Load implements Ledger, performs no action.
func (l *NoOpLedger) Load(path string) error { return nil }

// Record implements Ledger, performs no action.
func (l *NoOpLedger) Record(entry LedgerEntry) error { return nil }

// Get implements Ledger, always a miss.
func (l *NoOpLedger) Get(ontology string, kind ReportKind) (LedgerEntry, bool) {
	return LedgerEntry{}, false
}

// Entries implements Ledger.
func (l *NoOpLedger) Entries() []LedgerEntry { return nil }

// Persist implements Ledger, performs no action.
func (l *NoOpLedger) Persist(path string) error { return nil }

// Options holds all configuration for an audit run.
type Options struct {
	// --- Core Paths ---
	InputPath   string `mapstructure:"-"`      // Ontology file or corpus root, set per command
	OutputPath  string `mapstructure:"output"` // Report root
	GroupMarker string `mapstructure:"groupMarker"`
	GroupDir    string `mapstructure:"groupDir"`

	// --- Application Info ---
	AppVersion     string `mapstructure:"-"`
	ConfigFilePath string `mapstructure:"-"`
	ProfileName    string `mapstructure:"-"`

	// --- Behavior & Control ---
	Verbose     bool `mapstructure:"verbose"`
	TuiEnabled  bool `mapstructure:"tuiEnabled"`
	Concurrency int  `mapstructure:"concurrency"`
	RunRemote   bool `mapstructure:"runRemote"`

	// --- Statistics ---
	SampleSize int    `mapstructure:"sampleSize"`
	Seed       uint64 `mapstructure:"seed"`

	// --- File Handling ---
	IgnorePatterns  []string `mapstructure:"ignore"`
	DefaultEncoding string   `mapstructure:"defaultEncoding"`

	// --- Remote Assessments ---
	PitfallIDs                []int              `mapstructure:"pitfalls"`
	PerOntologyPitfallSummary bool               `mapstructure:"perOntologyPitfallSummary"`
	FairDivisors              map[string]float64 `mapstructure:"fairDivisors"`
	Services                  ServicesConfig     `mapstructure:"services"`
	RetryConfig               RetryConfig        `mapstructure:"retry"`
	Retry                     RetryPolicy        `mapstructure:"-"` // Derived from RetryConfig
	SweepAttempts             int                `mapstructure:"-"` // Derived from RetryConfig

	// --- Reasoner ---
	ReasonerConfig  ReasonerConfig `mapstructure:"reasoner"`
	ReasonerTimeout time.Duration  `mapstructure:"-"` // Derived from ReasonerConfig.Timeout

	// --- Reconciliation ---
	IRITemplate string `mapstructure:"iriTemplate"`

	// --- Output & Reporting ---
	OutputFormat string       `mapstructure:"outputFormat"`
	ReportFile   string       `mapstructure:"reportFile"`
	MetricsFile  string       `mapstructure:"metricsFile"`
	LedgerConfig LedgerConfig `mapstructure:"ledger"`

	// --- Injected Dependencies ---
	EventHooks      Hooks                    `mapstructure:"-"`
	Logger          slog.Handler             `mapstructure:"-"`
	Loader          OntologyLoader           `mapstructure:"-"`
	NamespaceParser NamespaceParser          `mapstructure:"-"`
	Converter       FormatConverter          `mapstructure:"-"`
	PitfallService  PitfallService           `mapstructure:"-"`
	FairService     FairService              `mapstructure:"-"`
	QualityService  QualityService           `mapstructure:"-"`
	Reasoner        reasoner.Reasoner        `mapstructure:"-"`
	EncodingHandler encoding.EncodingHandler `mapstructure:"-"`
	Detector        format.Detector          `mapstructure:"-"`
	Ledger          Ledger                   `mapstructure:"-"`
	Metrics         *Metrics                 `mapstructure:"-"`
}

// Resolver builds the path resolver described by these options.
func (o *Options) Resolver() Resolver {
	return NewResolver(o.OutputPath, o.GroupMarker, o.GroupDir)
}
