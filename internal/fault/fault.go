// Package fault defines the closed error taxonomy of the fingerprint pipeline.
//
// Only CodeUnsupportedEnvironment is ever returned to a caller of the
// aggregator. Every other code describes a condition that was recovered
// locally and is surfaced through result diagnostics and metrics instead.
package fault

import (
	stderrors "errors"
	"fmt"
)

// Code identifies one class of pipeline failure.
type Code string

const (
	CodeUnsupportedEnvironment Code = "UNSUPPORTED_ENVIRONMENT"
	CodeSourceUnavailable      Code = "SOURCE_UNAVAILABLE"
	CodeSourceTimeout          Code = "SOURCE_TIMEOUT"
	CodeDigestUnavailable      Code = "DIGEST_UNAVAILABLE"
	CodeMalformedCustomData    Code = "MALFORMED_CUSTOM_DATA"
)

var messages = map[Code]string{
	CodeUnsupportedEnvironment: "unsupported environment",
	CodeSourceUnavailable:      "signal source unavailable",
	CodeSourceTimeout:          "signal source timed out",
	CodeDigestUnavailable:      "digest primitive unavailable",
	CodeMalformedCustomData:    "malformed custom data",
}

// Fatal reports whether errors with this code abort a generation call.
func (c Code) Fatal() bool { return c == CodeUnsupportedEnvironment }

// Error is the pipeline error type.
type Error struct {
	code    Code
	message string
	cause   error
}

// ErrUnsupportedEnvironment matches any error carrying CodeUnsupportedEnvironment
// when used with errors.Is.
var ErrUnsupportedEnvironment = New(CodeUnsupportedEnvironment, "")

// New creates an error with the given code. An empty message falls back to
// the code's default text.
func New(code Code, message string) *Error {
	if message == "" {
		message = messages[code]
	}
	return &Error{code: code, message: message}
}

// Wrap attaches a cause to a new error with the given code.
func Wrap(code Code, cause error, message string) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches on code so that errors.Is(err, ErrUnsupportedEnvironment) works
// for any wrapped instance.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the error code.
func (e *Error) Code() Code {
	if e == nil {
		return ""
	}
	return e.code
}

// CodeOf extracts the code from err, or "" when err is not a pipeline error.
func CodeOf(err error) Code {
	var target *Error
	if stderrors.As(err, &target) {
		return target.Code()
	}
	return ""
}
