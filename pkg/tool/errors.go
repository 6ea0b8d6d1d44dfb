package tool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode is a stable identifier for each error kind.
type ErrorCode string

const (
	CodeNotFound           ErrorCode = "TOOL_NOT_FOUND"
	CodeToolkitNotFound    ErrorCode = "TOOLKIT_NOT_FOUND"
	CodeInvalidInput       ErrorCode = "TOOL_INVALID_INPUT"
	CodeInvalidOutput      ErrorCode = "TOOL_INVALID_OUTPUT"
	CodeExecutionFailed    ErrorCode = "TOOL_EXECUTION_FAILED"
	CodeRegistrationClash  ErrorCode = "TOOL_REGISTRATION_CONFLICT"
	CodeUnclassifiedFailed ErrorCode = "TOOL_ERROR"
)

// ErrUnsupportedImplementation is the cause of an ExecutionError raised for an
// implementation outside the NativeFunction/HTTPEndpoint/RemoteProcedure set.
var ErrUnsupportedImplementation = errors.New("unsupported implementation")

// NotFoundError is returned when a fully qualified name is absent from the registry.
type NotFoundError struct {
	ToolName string
	// Hint carries an optional correction, such as the canonical separator.
	Hint string
}

func (e *NotFoundError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("tool not found: %s (%s)", e.ToolName, e.Hint)
	}
	return fmt.Sprintf("tool not found: %s", e.ToolName)
}

func (e *NotFoundError) Code() ErrorCode { return CodeNotFound }

// ToolkitNotFoundError is returned when a namespace has no tools.
type ToolkitNotFoundError struct {
	Namespace string
}

func (e *ToolkitNotFoundError) Error() string {
	return fmt.Sprintf("toolkit not found: %s", e.Namespace)
}

func (e *ToolkitNotFoundError) Code() ErrorCode { return CodeToolkitNotFound }

// InputValidationError means the raw input failed the declared input schema.
// The implementation was not invoked.
type InputValidationError struct {
	ToolName string
	Cause    error
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("tool %s: input validation failed: %v", e.ToolName, e.Cause)
}

func (e *InputValidationError) Unwrap() error   { return e.Cause }
func (e *InputValidationError) Code() ErrorCode { return CodeInvalidInput }

// OutputValidationError means execution returned a value that fails the
// declared output schema.
type OutputValidationError struct {
	ToolName string
	Cause    error
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("tool %s: output validation failed: %v", e.ToolName, e.Cause)
}

func (e *OutputValidationError) Unwrap() error   { return e.Cause }
func (e *OutputValidationError) Code() ErrorCode { return CodeInvalidOutput }

// ExecutionError wraps any failure of the implementation itself.
type ExecutionError struct {
	ToolName string
	Input    interface{}
	Cause    error
	// StatusCode is the HTTP status for HTTPEndpoint failures, zero otherwise.
	StatusCode int
}

func (e *ExecutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tool %s: execution failed (status %d): %v", e.ToolName, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("tool %s: execution failed: %v", e.ToolName, e.Cause)
}

func (e *ExecutionError) Unwrap() error   { return e.Cause }
func (e *ExecutionError) Code() ErrorCode { return CodeExecutionFailed }

// RegistrationConflictError is returned at build time when a name is registered
// twice and overriding was disabled.
type RegistrationConflictError struct {
	FullName string
	Existing string // tier or namespace that registered it first
	Incoming string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("tool %s already registered by %s; %s may not override it", e.FullName, e.Existing, e.Incoming)
}

func (e *RegistrationConflictError) Code() ErrorCode { return CodeRegistrationClash }

// CodeOf returns the error code for any error in the taxonomy.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeUnclassifiedFailed
}

// IsRetryable reports whether retrying the same call might succeed. Only
// execution errors caused by transport failures, timeouts, 429 or 5xx qualify.
// Validation and lookup errors never do. Callers must still only retry tools
// known to be idempotent.
func IsRetryable(err error) bool {
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		return false
	}

	if execErr.StatusCode != 0 {
		return execErr.StatusCode == http.StatusTooManyRequests || execErr.StatusCode >= 500
	}

	if errors.Is(execErr.Cause, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(execErr.Cause, &netErr)
}
