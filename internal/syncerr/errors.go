// Package syncerr defines the error taxonomy shared across the sync
// engine. Callers classify failures with errors.As against Error and
// branch on Kind rather than matching error strings.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers (scheduler retry logic, history
// recording, CLI exit codes) can branch without string matching.
type Kind string

const (
	KindConfig         Kind = "config"
	KindAuth           Kind = "auth"
	KindTransport      Kind = "transport"
	KindRateLimit      Kind = "rate_limit"
	KindNotFound       Kind = "not_found"
	KindAmbiguousMatch Kind = "ambiguous_match"
	KindValidation     Kind = "validation"
	KindInternal       Kind = "internal"
)

// Error wraps an underlying error with a Kind and the component that
// raised it.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Component, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-classified error.
func New(kind Kind, component, op string, err error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Err: err}
}

// Is reports whether err carries the given Kind, anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var se *Error
		if !errors.As(err, &se) {
			return false
		}
		if se.Kind == kind {
			return true
		}
		err = se.Err
	}
	return false
}

// KindOf extracts the Kind of err, or KindInternal if err does not
// carry one.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// Retryable reports whether the scheduler should retry an operation
// that failed with err. Rate limiting and transport errors are
// transient; everything else needs operator or config attention.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTransport:
		return true
	default:
		return false
	}
}
