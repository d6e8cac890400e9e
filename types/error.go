package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	// ErrValidation indicates a malformed or referentially inconsistent
	// configuration document. Recoverable by fixing the document.
	ErrValidation ErrorCode = "VALIDATION"
	// ErrBuild indicates a tool resolution or graph construction failure
	// after validation passed.
	ErrBuild ErrorCode = "BUILD"
	// ErrExecution indicates a crew or flow method action failure.
	ErrExecution ErrorCode = "EXECUTION"
	// ErrNotFound indicates an unknown execution id or workflow reference.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrToolNotFound indicates a tool reference absent from the catalogue
	// or the provider's discovery result.
	ErrToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	// ErrProviderUnavailable indicates a tool provider discovery failure.
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// ErrCancelled indicates a caller-requested cancellation.
	ErrCancelled ErrorCode = "CANCELLED"
	// ErrInternal indicates a validator/builder contract violation.
	// Surfacing this code is a defect in the engine, not a user error.
	ErrInternal ErrorCode = "INTERNAL"
)

// Error is a structured error with a code, a message, and the component
// (method, task, or tool name) it originated from.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Component != "" {
		fmt.Fprintf(&b, " %s:", e.Component)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithComponent records which method, task, or tool the error belongs to.
func (e *Error) WithComponent(name string) *Error {
	e.Component = name
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	for unwrapped := err; unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		if e, ok := unwrapped.(*Error); ok && e.Code == code {
			return true
		}
	}
	return false
}

// ValidationError aggregates every problem found in one configuration
// document, so callers see the full list rather than only the first.
type ValidationError struct {
	Problems []string `json:"problems"`
}

// NewValidationError builds a ValidationError from the collected problems.
func NewValidationError(problems []error) *ValidationError {
	msgs := make([]string, 0, len(problems))
	for _, p := range problems {
		msgs = append(msgs, p.Error())
	}
	return &ValidationError{Problems: msgs}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration invalid: %d problem(s): %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// AsValidationError extracts a ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var e *ValidationError
	ok := errors.As(err, &e)
	return e, ok
}
