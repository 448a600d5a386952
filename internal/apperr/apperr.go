// Package apperr defines the error kinds shared by every flowdesk manager.
//
// Managers return *Error values; the HTTP layer maps their Kind to a status
// code. Callers test for a kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apperr.ErrConflict) { ... }
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindUnknown         Kind = "UNKNOWN"
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindForbidden       Kind = "FORBIDDEN"
	KindExpired         Kind = "EXPIRED"
	KindStorage         Kind = "STORAGE"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
)

// Sentinels for errors.Is. They carry no message and are never returned directly.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrExpired         = &Error{Kind: KindExpired}
	ErrStorage         = &Error{Kind: KindStorage}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
)

// Error is the domain error type.
type Error struct {
	Kind    Kind   // Category used for retry and transport decisions
	Message string // Human readable, safe to return to clients
	Latest  any    // Latest known state, set on version conflicts
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func Expired(message string) *Error { return New(KindExpired, message) }

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }

// Conflict creates a conflict error. latest may be nil for uniqueness
// conflicts where there is no single "latest" record to hand back.
func Conflict(message string, latest any) *Error {
	return &Error{Kind: KindConflict, Message: message, Latest: latest}
}

// Storage wraps a gateway failure.
func Storage(message string, cause error) *Error {
	return Wrap(KindStorage, message, cause)
}

// KindOf extracts the kind from any error. Errors that are not *Error
// report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// LatestOf returns the latest state attached to a conflict, if any.
func LatestOf(err error) any {
	var e *Error
	if errors.As(err, &e) {
		return e.Latest
	}
	return nil
}

// HTTPStatus maps a kind to the status code the transport layer responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindExpired:
		return http.StatusGone
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry the operation unchanged or
// after re-fetching. Validation and authorization failures are never retryable.
func (k Kind) Retryable() bool {
	return k == KindConflict || k == KindStorage
}
