package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/roach88/hyperlore/internal/encode"
	"github.com/roach88/hyperlore/internal/hdc"
)

// LearnErrorCode categorises a failed Learn.
type LearnErrorCode string

const (
	// ErrCodeUnboundReference: a $name argument names no earlier destination.
	ErrCodeUnboundReference LearnErrorCode = "UNBOUND_REFERENCE"

	// ErrCodeArity: more arguments than there are position markers.
	ErrCodeArity LearnErrorCode = "ARITY_EXCEEDED"

	// ErrCodeCapacity: the exact strategy's index table is full.
	ErrCodeCapacity LearnErrorCode = "CAPACITY_EXHAUSTED"

	// ErrCodeMismatch: vectors from different strategies met.
	ErrCodeMismatch LearnErrorCode = "STRATEGY_MISMATCH"

	// ErrCodeMalformed: anything else wrong with the statement, such as a
	// reserved operator with the wrong shape.
	ErrCodeMalformed LearnErrorCode = "MALFORMED_STATEMENT"
)

// LearnError reports a statement that could not be learned. The session is
// unchanged when Learn fails.
type LearnError struct {
	Code      LearnErrorCode
	Statement string
	Err       error
}

func (e *LearnError) Error() string {
	return fmt.Sprintf("%s: learn %q: %v", e.Code, e.Statement, e.Err)
}

func (e *LearnError) Unwrap() error { return e.Err }

// IsLearnError reports whether err is a LearnError.
func IsLearnError(err error) bool {
	var le *LearnError
	return errors.As(err, &le)
}

func newLearnError(statement string, err error) *LearnError {
	return &LearnError{Code: classify(err), Statement: statement, Err: err}
}

func classify(err error) LearnErrorCode {
	var arity *encode.ArityError
	switch {
	case hdc.IsUnboundReferenceError(err):
		return ErrCodeUnboundReference
	case errors.As(err, &arity):
		return ErrCodeArity
	case hdc.IsCapacityError(err):
		return ErrCodeCapacity
	case hdc.IsMismatchError(err):
		return ErrCodeMismatch
	}
	return ErrCodeMalformed
}
