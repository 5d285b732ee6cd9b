// Package errors provides the core's standardized error type: an
// AppError carrying component/operation/severity/cause plus one of the
// seven error kinds this domain needs: Configuration, Generation, Output,
// Resource, Validation, Network, Internal.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// Kind is one of the seven error kinds, each with a default recoverability policy.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindGeneration    Kind = "generation"
	KindOutput        Kind = "output"
	KindResource      Kind = "resource"
	KindValidation    Kind = "validation"
	KindNetwork       Kind = "network"
	KindInternal      Kind = "internal"
)

// Recoverable reports the default policy for a kind; callers may override
// per instance via WithRecoverable.
func (k Kind) Recoverable() bool {
	switch k {
	case KindGeneration, KindNetwork:
		return true
	default:
		return false
	}
}

// AppError is the core's standard error type.
type AppError struct {
	Kind        Kind                   `json:"kind"`
	Component   string                 `json:"component"`
	Operation   string                 `json:"operation"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"cause,omitempty"`
	StackTrace  string                 `json:"stack_trace,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	recoverable bool
}

// New creates a standard error of the given kind with the kind's default
// recoverability.
func New(kind Kind, component, operation, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	return &AppError{
		Kind:        kind,
		Component:   component,
		Operation:   operation,
		Message:     message,
		StackTrace:  fmt.Sprintf("%s:%d", file, line),
		Metadata:    make(map[string]interface{}),
		Timestamp:   time.Now(),
		recoverable: kind.Recoverable(),
	}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *AppError) Unwrap() error { return e.Cause }

// Wrap attaches a cause.
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithMetadata attaches a structured-logging key/value.
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithRecoverable overrides the kind's default recoverability.
func (e *AppError) WithRecoverable(recoverable bool) *AppError {
	e.recoverable = recoverable
	return e
}

// IsRecoverable reports whether the pipeline may continue after this error.
func (e *AppError) IsRecoverable() bool { return e.recoverable }

// ToMap renders the error for structured logging.
func (e *AppError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_kind":        string(e.Kind),
		"error_component":   e.Component,
		"error_operation":   e.Operation,
		"error_message":     e.Message,
		"error_recoverable": e.recoverable,
		"error_timestamp":   e.Timestamp,
	}
	if e.StackTrace != "" {
		result["error_stack_trace"] = e.StackTrace
	}
	if e.Cause != nil {
		result["error_cause"] = e.Cause.Error()
	}
	for k, v := range e.Metadata {
		result[fmt.Sprintf("error_meta_%s", k)] = v
	}
	return result
}

// Convenience constructors, one per kind.

func ConfigurationError(operation, message string) *AppError {
	return New(KindConfiguration, "config", operation, message)
}

func GenerationError(operation, message string) *AppError {
	return New(KindGeneration, "generator", operation, message)
}

func OutputError(operation, message string) *AppError {
	return New(KindOutput, "sink", operation, message)
}

func ResourceError(operation, message string) *AppError {
	return New(KindResource, "runtime", operation, message)
}

func ValidationError(operation, message string) *AppError {
	return New(KindValidation, "fingerprint", operation, message)
}

func NetworkError(operation, message string) *AppError {
	return New(KindNetwork, "sink", operation, message)
}

func InternalError(operation, message string) *AppError {
	return New(KindInternal, "core", operation, message)
}

// AsAppError converts an error to *AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}
