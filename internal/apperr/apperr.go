// Package apperr defines the error kinds surfaced by lifecycle operations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindUnavailable       Kind = "unavailable"
	KindInvalidTransition Kind = "invalid_transition"
	KindDispatch          Kind = "dispatch_failure"
	KindInternal          Kind = "internal"
)

// Error carries a kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden) works on constructed errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrDispatch          = &Error{Kind: KindDispatch}
)

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(KindForbidden, format, args...)
}

func Unavailable(format string, args ...interface{}) error {
	return newf(KindUnavailable, format, args...)
}

func InvalidTransition(format string, args ...interface{}) error {
	return newf(KindInvalidTransition, format, args...)
}

// Dispatch wraps a notification delivery failure.
func Dispatch(err error, format string, args ...interface{}) error {
	e := newf(KindDispatch, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the kind of err, KindInternal when it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
