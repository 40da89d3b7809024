package reasoner

import (
	"context"
	"errors"
	"fmt"
)

// InputPlaceholder is replaced by the ontology path in a reasoner command.
const InputPlaceholder = "{input}"

// ErrReasonerExecution indicates the reasoner could not check the ontology:
// it crashed, found an inconsistency or could not load the file.
var ErrReasonerExecution = errors.New("reasoner execution failed")

// ErrReasonerTimeout indicates the reasoner process exceeded its timeout.
// errors.Is(err, ErrReasonerExecution) is also true for this error.
var ErrReasonerTimeout = errors.New("reasoner timed out")

// ErrReasonerNonZeroExit indicates the reasoner exited with a non-zero status,
// which is how an inconsistent ontology is reported.
// errors.Is(err, ErrReasonerExecution) is also true for this error.
var ErrReasonerNonZeroExit = errors.New("reasoner exited non-zero")

// Reasoner runs consistency checking on an ontology file. A nil error means
// the ontology is consistent.
type Reasoner interface {
	Check(ctx context.Context, path string) error
}

// Errorf returns a formatted error that wraps ErrReasonerExecution.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrReasonerExecution}, args...)...)
}

// WrapReasonerError wraps a specific failure (timeout, exit status) with ErrReasonerExecution.
func WrapReasonerError(specificError error, format string, args ...interface{}) error {
	baseMsg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s: %w", ErrReasonerExecution, baseMsg, specificError)
}
