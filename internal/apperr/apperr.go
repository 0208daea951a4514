// Package apperr classifies errors into the five kinds the spec's error
// handling design names (§7): Validation, Transient, Permanent, Invariant,
// Backpressure.
// These are KINDS, not hierarchies of custom types — a caller wraps any
// underlying error with the kind that describes how it should be handled,
// then branches with errors.Is/errors.As rather than string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the five error kinds from §7.
type Kind string

const (
	// KindValidation: malformed input at a boundary. Reject: 400 for HTTP,
	// drop+counter for bus.
	KindValidation Kind = "validation"
	// KindTransient: timeout/5xx/connection reset. Bounded retry with
	// jitter; after budget, DLQ or degraded-mode defaults.
	KindTransient Kind = "transient"
	// KindPermanent: schema mismatch/auth error. Stop consuming, mark
	// unready, surface via /health.
	KindPermanent Kind = "permanent"
	// KindInvariant: a violated internal invariant (e.g. negative score).
	// Drop + structured ERROR log + counter; never crash the process.
	KindInvariant Kind = "invariant"
	// KindBackpressure: queue overflow. Drop-oldest + counter; never
	// block producers.
	KindBackpressure Kind = "backpressure"
)

// Error wraps an underlying cause with a Kind and the component that
// classified it.
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%s]: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New classifies err as kind, attributed to component. Passing a nil err
// returns nil, so callers can wrap the result of a fallible call directly.
func New(kind Kind, component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Err: err}
}

// Validation, Transient, Permanent, Invariant, Backpressure are shorthand
// constructors for the five kinds above.
func Validation(component string, err error) error   { return New(KindValidation, component, err) }
func Transient(component string, err error) error     { return New(KindTransient, component, err) }
func Permanent(component string, err error) error     { return New(KindPermanent, component, err) }
func Invariant(component string, err error) error     { return New(KindInvariant, component, err) }
func Backpressure(component string, err error) error  { return New(KindBackpressure, component, err) }

// Is reports whether the first *Error in err's chain was classified as
// kind; an outer classification hides any inner one.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
