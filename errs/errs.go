// Package errs provides structured error types and helpers for the eventloop
// runtime and its supporting packages.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies a category of eventloop failure.
type Code string

const (
	// CodeInvalid indicates invalid input supplied by the caller.
	CodeInvalid Code = "invalid"
	// CodeMisuse indicates the API was used in a way its contract forbids
	// (e.g. concurrent Run, or Run after StopLoop).
	CodeMisuse Code = "misuse"
	// CodeNotFound indicates an unknown subscription or task id.
	CodeNotFound Code = "not_found"
	// CodeCapacity indicates an operation could not proceed because a
	// bounded resource (queue, pool) was exhausted.
	CodeCapacity Code = "capacity"
	// CodeClosed indicates the loop or a dependent resource has shut down.
	CodeClosed Code = "closed"
)

// E captures structured error information produced across the eventloop stack.
type E struct {
	Op      string
	Code    Code
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given operation and code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:      strings.TrimSpace(op),
		Code:    code,
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := strings.TrimSpace(e.Op)
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether target carries the same Code, supporting errors.Is
// comparisons against a sentinel built with New(op, code).
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// IsCode reports whether err is an *E with the given code.
func IsCode(err error, code Code) bool {
	e, ok := err.(*E)
	if !ok {
		return false
	}
	return e.Code == code
}
