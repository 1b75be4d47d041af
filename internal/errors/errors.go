// Package errors holds the sentinel errors shared by every logbook package,
// the category predicates used by the HTTP layer, and small wrapping helpers.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Request parameter errors
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidTimeRange  = errors.New("invalid time range")
	ErrInvalidDatetime   = errors.New("invalid datetime")
	ErrInvalidPath       = errors.New("invalid path")
	ErrInvalidContext    = errors.New("invalid context")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrMissingField      = errors.New("missing required field")
	ErrTooManyPaths      = errors.New("too many paths")
	ErrInvalidConfig     = errors.New("invalid configuration")

	// Unit conversion errors
	ErrInvalidFormula      = errors.New("invalid formula")
	ErrProviderUnavailable = errors.New("conversion provider unavailable")

	// Store errors
	ErrNotFound     = errors.New("not found")
	ErrEngineClosed = errors.New("query engine closed")
	ErrInternal     = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// IsValidation returns true if err was caused by bad request input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrInvalidDatetime) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrInvalidContext) ||
		errors.Is(err, ErrInvalidResolution) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrTooManyPaths)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCanceled returns true if err stems from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// StatusClientClosedRequest is the non-standard status logged when the client
// went away before the response was written.
const StatusClientClosedRequest = 499

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Constructors
// ============================================================================

// NewValidation creates a configuration error, e.g. ("ttl", "must be positive").
func NewValidation(field, reason string) error {
	return fmt.Errorf("%s %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
