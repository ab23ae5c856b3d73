// Package apperr defines the error kinds surfaced by the lifecycle engines.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "invalid_input"
	KindUnauthorized      Kind = "unauthorized"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal_error"
)

// Error is a classified, human-readable error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is lets errors.Is match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrConflict          = &Error{Kind: KindConflict}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing project, phase, sub-step, question or attachment.
func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

// Forbidden reports a failed permission gate.
func Forbidden(format string, args ...any) error { return newf(KindForbidden, format, args...) }

// InvalidTransition reports an unmet status precondition.
func InvalidTransition(format string, args ...any) error {
	return newf(KindInvalidTransition, format, args...)
}

// Validation reports bad or missing input.
func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }

// Unauthorized reports a missing or rejected credential.
func Unauthorized(format string, args ...any) error { return newf(KindUnauthorized, format, args...) }

// Conflict reports a write that lost a race and could not be retried.
func Conflict(format string, args ...any) error { return newf(KindConflict, format, args...) }

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
