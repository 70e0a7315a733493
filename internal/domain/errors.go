package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSinkUnavailable indicates that the event store sink could not be reached.
	ErrSinkUnavailable = errors.New("sink unavailable")

	// ErrRelayFailed indicates that a relay run failed after claiming records.
	ErrRelayFailed = errors.New("relay failed")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a record that could not be found.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError creates a NotFoundError for the given entity and identifier.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RelayError wraps the failure of a relay run with the ids that were claimed
// when the failure occurred. The relay marks these ids failed before
// returning, so callers observe a consistent store alongside the error.
type RelayError struct {
	Step       string
	ClaimedIDs []int64
	Err        error
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	return fmt.Sprintf("relay %s failed (%d records claimed): %v", e.Step, len(e.ClaimedIDs), e.Err)
}

// Unwrap returns the underlying cause error.
func (e *RelayError) Unwrap() error {
	return e.Err
}

// Is reports whether target matches ErrRelayFailed.
func (e *RelayError) Is(target error) bool {
	return target == ErrRelayFailed
}
