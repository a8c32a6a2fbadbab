// Package apperror defines the error categories surfaced to callers of the
// call-session API.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream_error"
	KindPersistence Kind = "persistence_error"
	KindInternal    Kind = "internal_error"
)

// Error is a categorized failure. Reason is a short human-readable message safe
// to return to clients; Err carries the underlying cause for logs.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Validation(reason string) *Error { return New(KindValidation, reason, nil) }

func NotFound(reason string, err error) *Error { return New(KindNotFound, reason, err) }

func Upstream(reason string, err error) *Error { return New(KindUpstream, reason, err) }

func Persistence(reason string, err error) *Error { return New(KindPersistence, reason, err) }

func Internal(reason string, err error) *Error { return New(KindInternal, reason, err) }

// KindOf reports the category of err, defaulting to KindInternal for
// uncategorized errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ReasonOf returns the client-facing message for err.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Reason != "" {
		return appErr.Reason
	}
	return "internal error"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
