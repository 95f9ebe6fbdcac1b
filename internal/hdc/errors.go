package hdc

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ConfigError reports an invalid strategy id or sizing parameter. It is
// raised at construction and is fatal for the session being built.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// MismatchError reports a vector handed to a strategy that did not produce
// it, or one of the wrong dimension.
type MismatchError struct {
	Want StrategyID
	Got  StrategyID
	// Detail describes a dimension or ownership mismatch when the ids agree.
	Detail string
}

func (e *MismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("vector mismatch: %s strategy: %s", e.Want, e.Detail)
	}
	return fmt.Sprintf("vector mismatch: %s strategy cannot operate on %s vector", e.Want, e.Got)
}

// UnboundReferenceError reports an operation on an atom that was never
// created: a nil vector, an exact index the session never allocated, or an
// unknown name in a lookup.
type UnboundReferenceError struct {
	Name string
}

func (e *UnboundReferenceError) Error() string {
	if e.Name == "" {
		return "unbound reference: vector was never created"
	}
	return fmt.Sprintf("unbound reference: %q was never created", e.Name)
}

// CapacityError reports that the exact strategy's atom table is full.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("exact atom table full: %d atoms allocated", e.Limit)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsMismatchError reports whether err wraps a MismatchError.
func IsMismatchError(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// IsUnboundReferenceError reports whether err wraps an UnboundReferenceError.
func IsUnboundReferenceError(err error) bool {
	var ue *UnboundReferenceError
	return errors.As(err, &ue)
}

// IsCapacityError reports whether err wraps a CapacityError.
func IsCapacityError(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

func mismatch(want StrategyID, got Vector) error {
	if got == nil {
		return errors.WithStack(&UnboundReferenceError{})
	}
	return errors.WithStack(&MismatchError{Want: want, Got: got.Strategy()})
}

func dimMismatch(want StrategyID, format string, args ...any) error {
	return errors.WithStack(&MismatchError{Want: want, Got: want, Detail: fmt.Sprintf(format, args...)})
}
