package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use with errors.Is(); structured variants below carry
// context and unwrap to these.
var (
	// ErrValidation is returned for bad or missing input. User-correctable.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a generated id collides after the
	// maximum number of probe attempts.
	ErrConflict = errors.New("conflict")

	// ErrConsistency is returned when a reversal is computed against stored
	// orders that no longer resolve. Indicates data corruption; the
	// operation is aborted and the error is never silently patched.
	ErrConsistency = errors.New("ledger consistency error")
)

// ValidationError describes a user-correctable input failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies the missing entity by kind and id.
type NotFoundError struct {
	Kind string // "account", "fixing transaction", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConsistencyError records which transaction's stored state failed to
// recompute during reversal.
type ConsistencyError struct {
	TransactionID string
	Reason        string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("transaction %s: %s", e.TransactionID, e.Reason)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }

// IsClientError reports whether the error is due to invalid client input
// (4xx-equivalent).
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict)
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
