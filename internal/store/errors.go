package store

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (spec.md §7). Wrap with fmt.Errorf("...: %w", ErrX)
// and test with errors.Is/errors.As.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConstraint  = errors.New("constraint error")
	ErrStorage     = errors.New("storage error")
)

// ValidationError wraps ErrValidation with a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError wraps ErrNotFound with the entity kind and id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConstraintError wraps ErrConstraint with the underlying driver error.
type ConstraintError struct {
	Op  string
	Err error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation during %s: %v", e.Op, e.Err)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraint }

// StorageError wraps ErrStorage with the underlying I/O or driver error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return ErrStorage }
