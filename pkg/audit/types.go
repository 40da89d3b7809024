package audit

import (
	"path/filepath"
	"strings"
)

// OntologyKind is the serialization family of an ontology file.
type OntologyKind string

const (
	KindOWL    OntologyKind = "owl"
	KindTurtle OntologyKind = "turtle"
)

// OntologyRef identifies one ontology under audit. Name is derived from the
// path only, never from file content.
type OntologyRef struct {
	Path    string       `json:"path" yaml:"path" toml:"path"`
	Name    string       `json:"name" yaml:"name" toml:"name"`
	Kind    OntologyKind `json:"kind" yaml:"kind" toml:"kind"`
	BaseIRI string       `json:"baseIri,omitempty" yaml:"baseIri,omitempty" toml:"baseIri,omitempty"`
}

// NewOntologyRef builds a reference for path, taking the kind from its extension.
func NewOntologyRef(path string) OntologyRef {
	kind := KindOWL
	if strings.EqualFold(filepath.Ext(path), ExtTurtle) {
		kind = KindTurtle
	}
	return OntologyRef{Path: path, Name: ShortName(path), Kind: kind}
}

// ShortName returns the base file name up to its first dot.
func ShortName(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// ReportKind tags one artifact type produced per ontology.
type ReportKind string

const (
	ReportStatistics     ReportKind = "statistics"
	ReportUsedNamespaces ReportKind = "used_namespaces"
	ReportPitfalls       ReportKind = "pitfalls"
	ReportFairCheck      ReportKind = "fair_check"
	ReportQualityScore   ReportKind = "quality_score"
	ReportReasonerError  ReportKind = "reasoner_error"
	ReportLoadException  ReportKind = "load_exception"
	// ReportConversion is a pipeline step, it has no report file of its own.
	ReportConversion ReportKind = "conversion"
)

var reportSuffixes = map[ReportKind]string{
	ReportStatistics:     ".txt",
	ReportUsedNamespaces: "_used_Ontologies.txt",
	ReportPitfalls:       "_OOPS.txt",
	ReportFairCheck:      "_Fair_Checker.json",
	ReportQualityScore:   "_FOOPS.json",
	ReportReasonerError:  "_reasoner_error.txt",
	ReportLoadException:  "Exception_while_Loading.txt",
}

// Suffix is the fixed file-name suffix appended to the ontology short name.
func (k ReportKind) Suffix() string {
	return reportSuffixes[k]
}

// Status defines the states reported for ontologies and their pipeline steps.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	// StatusSuccess: the step ran and left nothing to report (reasoner passed,
	// conversion done) or, for an ontology, every step completed.
	StatusSuccess Status = "success"
	// StatusGenerated: a report was written during this run.
	StatusGenerated Status = "generated"
	// StatusSkipped: the report was already complete, no work performed.
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// IsFinal reports whether status is a terminal state.
func (s Status) IsFinal() bool {
	switch s {
	case StatusSuccess, StatusGenerated, StatusSkipped, StatusFailed:
		return true
	}
	return false
}
