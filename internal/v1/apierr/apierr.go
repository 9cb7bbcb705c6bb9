// Package apierr defines the typed error kinds surfaced by the command
// surface and the single mapping from kind to HTTP status.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the central error formatter.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindStateConflict
	KindLocked
	KindFull
	KindExpired
	KindRateLimited
)

// Error is the one error type handlers return. Detail is user-facing;
// wrapped errors stay server-side.
type Error struct {
	Kind       Kind
	Detail     string
	RetryAfter int // seconds; only meaningful for KindRateLimited
	wrapped    error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.wrapped)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.wrapped }

// Code returns the short machine-readable code for the error kind.
func (e *Error) Code() string {
	switch e.Kind {
	case KindValidation:
		return "VALIDATION"
	case KindAuth:
		return "AUTH"
	case KindNotFound:
		return "NOT_FOUND"
	case KindStateConflict:
		return "STATE_CONFLICT"
	case KindLocked:
		return "ROOM_LOCKED"
	case KindFull:
		return "ROOM_FULL"
	case KindExpired:
		return "EXPIRED"
	case KindRateLimited:
		return "RATE_LIMITED"
	default:
		return "INTERNAL"
	}
}

// Status maps the kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth, KindLocked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict, KindFull:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Validation(detail string) *Error    { return &Error{Kind: KindValidation, Detail: detail} }
func Auth(detail string) *Error          { return &Error{Kind: KindAuth, Detail: detail} }
func NotFound(detail string) *Error      { return &Error{Kind: KindNotFound, Detail: detail} }
func StateConflict(detail string) *Error { return &Error{Kind: KindStateConflict, Detail: detail} }
func Locked(detail string) *Error        { return &Error{Kind: KindLocked, Detail: detail} }
func Full(detail string) *Error          { return &Error{Kind: KindFull, Detail: detail} }
func Expired(detail string) *Error       { return &Error{Kind: KindExpired, Detail: detail} }

// RateLimited carries a retry-after hint in seconds.
func RateLimited(detail string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Detail: detail, RetryAfter: retryAfter}
}

// Internal wraps an unexpected error. The wrapped cause is logged, never
// returned to the client.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Detail: "Something went wrong. Please try again.", wrapped: err}
}

// From extracts an *Error from err, or wraps it as internal.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
