package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the failure classes the HTTP layer
// knows how to surface. The set is closed: unknown errors map to Internal.
type Kind int

const (
	// Internal is the zero value on purpose so that wrapping an unclassified
	// error yields a 500 rather than leaking a misleading client error.
	Internal Kind = iota
	Unauthenticated
	Forbidden
	// NotFoundOrForbidden deliberately conflates absence and denial so that
	// callers probing for other tenants' resources cannot distinguish the two.
	NotFoundOrForbidden
	NotFound
	InvalidInput
	Conflict
	PaymentFailed
	RateLimited
)

// Error carries a kind, a stable machine-readable code, and a human-readable
// message. The wrapped cause, if any, is kept for logs and never rendered to
// clients outside debug configuration.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no underlying cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil err returns nil so call sites
// can wrap unconditionally.
func Wrap(err error, kind Kind, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf extracts the stable machine code from an error chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// MessageOf returns the client-safe message for an error chain. Unclassified
// errors get a generic message so internal detail stays in the logs.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTPStatus maps an error chain onto the HTTP status code for its kind.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound, NotFoundOrForbidden:
		return http.StatusNotFound
	case InvalidInput:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case PaymentFailed:
		return http.StatusPaymentRequired
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
