package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates an illegal post status transition.
	// The scheduled post state machine only moves forward.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownPlatform indicates that a platform name has no registered
	// adapter. This is a programmer error and fails fast at call time.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
