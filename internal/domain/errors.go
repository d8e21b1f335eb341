package domain

import "errors"

// Error taxonomy shared by services and mapped to HTTP statuses at the edge.
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidation       = errors.New("validation failed")
	ErrUpstreamProvider = errors.New("upstream provider error")
	ErrPersistence      = errors.New("persistence error")
	ErrNotImplemented   = errors.New("not implemented")
	ErrNotFound         = errors.New("not found")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Required builds the error for a missing required body field.
func Required(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}
