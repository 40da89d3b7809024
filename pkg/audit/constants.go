package audit

import "time"

const (
	ExtOWL    = ".owl"
	ExtTurtle = ".ttl"

	DefaultOutputPath  = "./analysis/"
	DefaultGroupMarker = "DABGEO"
	DefaultGroupDir    = "dabgeo"

	DefaultSampleSize  = 5
	DefaultSeed        = 357
	DefaultConcurrency = 1

	DefaultMaxAttempts     = 5
	DefaultSweepAttempts   = 1
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = time.Minute
	DefaultAttemptTimeout  = 2 * time.Minute
	DefaultReasonerTimeout = 5 * time.Minute

	DefaultPitfallURL        = "https://oops.linkeddata.es/rest"
	DefaultFairURL           = "https://fair-checker.france-bioinformatique.fr/api/check/metrics_all"
	DefaultQualityURL        = "https://foops.linkeddata.es/assessOntology"
	DefaultRequestsPerMinute = 30

	// PitfallSummaryName is the per-directory histogram written after each pitfall fetch.
	PitfallSummaryName = "Sum_OOPS_Pitfalls"
	// FailureArtifactExt marks the terminal failure file next to a report that
	// exhausted its retries. No aggregator reads this extension.
	FailureArtifactExt = ".failed"
	// LedgerFileName is the attempt ledger file inside the output root.
	LedgerFileName = ".ontaudit-ledger"

	// DefaultFairDivisorA averages the Accessibility bucket over its two metrics.
	DefaultFairDivisorA = 2.0
	// FairDivisorAUnaveraged leaves the Accessibility sum untouched.
	FairDivisorAUnaveraged = 1.0

	DefaultIRITemplate = "http://www.purl.org/dabgeo/{{.Seg -3}}/{{.Seg -2}}/{{.Name}}"

	OutputFormatText = "text"
	OutputFormatJSON = "json"
	OutputFormatYAML = "yaml"
	OutputFormatTOML = "toml"
)

// DefaultPitfallIDs is the pitfall catalogue subset submitted to the pitfall scanner.
var DefaultPitfallIDs = []int{2, 3, 4, 5, 6, 7, 8, 10, 11, 12, 13, 19, 20, 21, 22, 24, 25, 26, 27, 28, 29}

// DefaultReasonerCommand runs HermiT through ROBOT; {input} is replaced by the ontology path.
var DefaultReasonerCommand = []string{"robot", "reason", "--reasoner", "HermiT", "--input", "{input}"}

// FairGroups are the metric buckets, in output order.
var FairGroups = []string{"F", "A", "I", "R"}

// DefaultFairDivisors returns a fresh copy of the per-bucket metric cardinalities.
func DefaultFairDivisors() map[string]float64 {
	return map[string]float64{"F": 4, "A": DefaultFairDivisorA, "I": 3, "R": 3}
}

// ValidOutputFormats lists accepted batch report formats.
var ValidOutputFormats = []string{OutputFormatText, OutputFormatJSON, OutputFormatYAML, OutputFormatTOML}
