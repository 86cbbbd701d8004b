package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when an intake or insert hits a
	// uniqueness boundary, e.g. a redelivered alert for the same
	// (tenant_id, alert_id).
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrConcurrentModification is returned when another writer resolved
	// the same record first.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// ValidationError carries the field that failed input validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
