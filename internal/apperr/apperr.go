// Package apperr defines the user-facing error taxonomy shared by the auth
// services and its mapping onto HTTP statuses.
package apperr

import (
	"errors"
	"net/http"
	"time"
)

// Kind is a stable, machine-checkable error class.
type Kind string

const (
	KindLocked           Kind = "locked"
	KindRateLimited      Kind = "rate_limited"
	KindExpired          Kind = "otp_expired"
	KindInvalidCode      Kind = "invalid_code"
	KindTooManyAttempts  Kind = "too_many_attempts"
	KindInvalidTokenType Kind = "invalid_token_type"
	KindUsernameTaken    Kind = "username_taken"
	KindInvalidReference Kind = "invalid_reference"
	KindUnauthenticated  Kind = "unauthenticated"
	KindForbidden        Kind = "forbidden"
	KindInvalid          Kind = "invalid_request"
	KindAccountExists    Kind = "account_exists"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal"
)

var statuses = map[Kind]int{
	KindLocked:           http.StatusLocked,
	KindRateLimited:      http.StatusTooManyRequests,
	KindExpired:          http.StatusGone,
	KindInvalidCode:      http.StatusBadRequest,
	KindTooManyAttempts:  http.StatusTooManyRequests,
	KindInvalidTokenType: http.StatusUnauthorized,
	KindUsernameTaken:    http.StatusConflict,
	KindInvalidReference: http.StatusUnprocessableEntity,
	KindUnauthenticated:  http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindInvalid:          http.StatusBadRequest,
	KindAccountExists:    http.StatusConflict,
	KindNotFound:         http.StatusNotFound,
	KindInternal:         http.StatusInternalServerError,
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	if s, ok := statuses[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a taxonomy error carrying a stable kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is how long the client should wait, when known.
	RetryAfter time.Duration
}

// New builds a taxonomy error. Packages keep the returned value as a sentinel.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches copies of the same sentinel so errors.Is survives WithRetry.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

// WithRetry returns a copy of e carrying a retry hint.
func (e *Error) WithRetry(d time.Duration) *Error {
	cp := *e
	cp.RetryAfter = d
	return &cp
}

// RetryAfterOf returns the retry hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Invalid is shorthand for a request validation failure.
func Invalid(message string) *Error {
	return New(KindInvalid, message)
}
