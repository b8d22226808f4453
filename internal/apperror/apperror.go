// ABOUTME: Typed error taxonomy shared across the analysis pipeline, store, and engine
// ABOUTME: Maps each error code to its HTTP status so handlers never string-match errors

// Package apperror implements the closed error-code taxonomy the core uses to
// signal failure across component boundaries instead of ad-hoc error strings.
package apperror

import (
	"errors"
	"fmt"
)

// Code is one of the closed set of error classes the core can surface.
type Code string

const (
	InvalidArgument   Code = "invalid_argument"
	NotFound          Code = "not_found"
	Conflict          Code = "conflict"
	Busy              Code = "busy"
	UnsupportedFormat Code = "unsupported_format"
	CorruptFile       Code = "corrupt_file"
	Timeout           Code = "timeout"
	IOError           Code = "io_error"
	Internal          Code = "internal"
)

// Error is the typed error carried across component boundaries. It wraps an
// optional underlying cause without losing the classification a caller needs
// to pick an HTTP status or a retry policy.
type Error struct {
	Code    Code
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

// HTTPStatus returns the status code §7 of the spec assigns to this code.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case InvalidArgument:
		return 400
	case NotFound:
		return 404
	case Conflict:
		return 409
	case Busy:
		return 429
	case UnsupportedFormat:
		return 415
	case CorruptFile:
		return 422
	case Timeout:
		return 504
	case IOError, Internal:
		return 500
	default:
		return 500
	}
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapf(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidArgumentf(format string, args ...any) *Error {
	return newf(InvalidArgument, format, args...)
}
func NotFoundf(format string, args ...any) *Error { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error { return newf(Conflict, format, args...) }
func Busyf(format string, args ...any) *Error     { return newf(Busy, format, args...) }

func Wrap(code Code, err error, format string, args ...any) *Error {
	return wrapf(code, err, format, args...)
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, returning Internal otherwise. Useful at a transport boundary that
// needs a status code but was handed an arbitrary error.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	return Internal
}

// Is reports whether err (or something it wraps) carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
