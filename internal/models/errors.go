package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrURLRequired indicates a required URL field is empty.
	ErrURLRequired = errors.New("url is required")

	// ErrInvalidURL indicates a malformed URL.
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrInvalidStatus indicates a stream status outside the known set.
	ErrInvalidStatus = errors.New("invalid status: must be 'online', 'offline', 'error' or 'stale'")

	// ErrStreamIDRequired indicates a required stream ID field is zero.
	ErrStreamIDRequired = errors.New("stream_id is required")
)
