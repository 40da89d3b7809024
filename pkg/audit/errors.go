package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigValidation indicates invalid or missing configuration.
	ErrConfigValidation = errors.New("configuration validation failed")
	// ErrArgument indicates a bad command-line argument combination.
	ErrArgument = errors.New("invalid arguments")
	// ErrLoad indicates an ontology could not be read or parsed.
	ErrLoad = errors.New("ontology failed to load")
	// ErrConversion indicates a Turtle file could not be re-serialized.
	ErrConversion = errors.New("turtle conversion failed")
	// ErrReasoner indicates an inconsistency or a reasoner crash.
	ErrReasoner = errors.New("reasoner check failed")
	// ErrRemoteService indicates a network, HTTP or payload failure from an assessment service.
	ErrRemoteService = errors.New("remote assessment service failed")
	// ErrRetryExhausted indicates the retry loop gave up on a report.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrAggregationFormat indicates a report that does not match its schema.
	ErrAggregationFormat = errors.New("report does not match its expected format")
	// ErrEmptyReportSet indicates a mean was requested over zero reports.
	ErrEmptyReportSet = errors.New("no reports to aggregate")
	// ErrEmptyReport is returned when asked to persist zero bytes as a report.
	ErrEmptyReport = errors.New("refusing to write empty report")
	// ErrReportWrite wraps I/O failures while persisting a report.
	ErrReportWrite = errors.New("failed to write report")
)

// AggregationFormatError pinpoints the offending file and line.
type AggregationFormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *AggregationFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s line %d: %s", ErrAggregationFormat, e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrAggregationFormat, e.Path, e.Reason)
}

func (e *AggregationFormatError) Unwrap() error { return ErrAggregationFormat }
