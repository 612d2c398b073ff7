// Package apperrors classifies service errors so the HTTP layer can map them
// to status codes without importing every domain package.
//
// Domain packages declare sentinels with the constructors here:
//
//	var ErrRoleNotFound = apperrors.NotFound("role not found")
//
// and wrap them freely with fmt.Errorf("...: %w", err). KindOf and Message
// find the innermost classified error in the chain.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the category of a service error
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a classified error with a client-safe message
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates a classified error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Invalid creates a validation error
func Invalid(message string) *Error { return New(KindInvalid, message) }

// Invalidf creates a formatted validation error
func Invalidf(format string, args ...interface{}) *Error {
	return New(KindInvalid, fmt.Sprintf(format, args...))
}

// NotFound creates a not-found error
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Forbidden creates a forbidden error
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Unauthorized creates an authentication error
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Conflict creates a conflict error
func Conflict(message string) *Error { return New(KindConflict, message) }

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err. Unclassified errors
// never leak their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
