// Package toolerrors provides a structured error chain for tool invocation
// failures. ToolError preserves message and causal context while supporting
// errors.Is/As through Unwrap.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure. Tool errors may be nested
// via Cause to retain diagnostics across dispatch and validation stages.
type ToolError struct {
	Message string
	Cause   *ToolError
}

// New constructs a ToolError with the provided message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error to support errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
