package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an insert would violate the dedupe
	// constraint on (source_identifier, title) or on external_ref.
	ErrDuplicate = errors.New("entity already exists")

	// ErrNotSelectable is returned by the conditional select transition
	// when an item is not currently pending and unexpired. Exactly one
	// of two concurrent selectors can win an item; the loser sees this.
	ErrNotSelectable = errors.New("item is not selectable")

	// ErrInvalidTransition is returned when a status change other than
	// select is attempted from a state that does not permit it, e.g.
	// resetting an item that is not selected.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidEntity is returned when an entity fails validation
	// before being stored.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrCandidateNotFound indicates the requested candidate item does
	// not exist in the store.
	ErrCandidateNotFound = fmt.Errorf("%w: candidate item", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError carries the entity and operation that failed alongside the
// underlying cause, for callers that need more than a sentinel.
type StoreError struct {
	Entity    string
	Operation string
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s operation on %s failed: %v", e.Operation, e.Entity, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError for the given entity and operation.
func NewStoreError(entity, operation string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Err: err}
}
