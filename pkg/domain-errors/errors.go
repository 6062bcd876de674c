// Package domainerrors provides coded domain errors shared across services and
// transports. Services translate infrastructure sentinels (pkg/platform/sentinel)
// into these; transports translate codes into HTTP statuses without inspecting
// error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. The string value doubles as the wire-level
// error identifier in JSON envelopes, so values are stable snake_case.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeContention         Code = "contention"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Message is safe to show to API callers for
// non-internal codes; wrapped causes stay server-side.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a domain error with the same code and message,
// so coded errors compare by value under errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code && e.Message == other.Message
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode, used in tests and guards.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in err's chain, or CodeInternal when err
// carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the error indicates a transient condition the
// caller may retry (bounded lock contention, timeouts).
func Retryable(err error) bool {
	return HasCode(err, CodeContention) || HasCode(err, CodeTimeout)
}
