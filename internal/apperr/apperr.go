// Package apperr implements the error taxonomy from spec.md §7: a closed
// set of kinds that propagation policy and the HTTP API both switch on,
// expressed as idiomatic Go error wrapping rather than exception classes
// (see the original source's data_pipeline/error_handling.py, which this
// package re-architects per the DESIGN NOTES).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy's closed set of error categories.
type Kind string

const (
	Validation      Kind = "Validation"
	RateLimited     Kind = "RateLimited"
	Transient       Kind = "Transient"
	Unavailable     Kind = "Unavailable"
	SchemaMismatch  Kind = "SchemaMismatch"
	DeadlineExceeded Kind = "DeadlineExceeded"
	Corruption      Kind = "Corruption"
	Internal        Kind = "Internal"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind.
func New(k Kind, message string) *Error {
	return &Error{Kind: k, Message: message}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(k Kind, message string, cause error) *Error {
	return &Error{Kind: k, Message: message, Cause: cause}
}

// Is reports whether err (or any error it wraps) has the given kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, or Internal if err doesn't wrap an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the status code spec.md §6/§7 prescribes.
func HTTPStatus(k Kind) int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	case Unavailable, DeadlineExceeded:
		return http.StatusServiceUnavailable
	case Corruption, Internal:
		return http.StatusInternalServerError
	case SchemaMismatch:
		return http.StatusUnprocessableEntity
	case Transient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps a process-fatal Kind to the exit code spec.md §6 names.
// Returns 0 for kinds that are never process-fatal.
func ExitCode(k Kind) int {
	switch k {
	case Corruption:
		return 2
	default:
		return 0
	}
}
