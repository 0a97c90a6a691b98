package upstream

import (
	"context"
	"errors"
	"fmt"
)

// Error types for classifying upstream service failures.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// SchemaError indicates an upstream response that fails structural validation.
// Schema violations are fatal for the current turn: the service answered, but
// with a body the pipeline cannot act on, so retrying the same call is useless.
type SchemaError struct {
	Service string
	Detail  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s returned malformed response: %s", e.Service, e.Detail)
}

// NewSchemaError creates a schema violation error for a service.
func NewSchemaError(service, detail string) error {
	return &SchemaError{Service: service, Detail: detail}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
// Schema violations count as fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return true
	}
	var schema *SchemaError
	return errors.As(err, &schema)
}

// IsSchema returns true if the error is an upstream schema violation.
func IsSchema(err error) bool {
	var schema *SchemaError
	return errors.As(err, &schema)
}

// IsTimeout returns true if the error was caused by an expired deadline,
// either the per-stage timeout or the caller's request context.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
