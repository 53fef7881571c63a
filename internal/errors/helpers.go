package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewJobNotFoundError creates a not-found error for a dispatch job
func NewJobNotFoundError(jobID string, err error) *AppError {
	return Wrap(err, ErrCodeJobNotFound, "dispatch job not found").
		WithContext("job_id", jobID).
		WithUserMessage("Job not found")
}

// NewInvalidStateError reports a lifecycle operation applied to a job
// in the wrong status.
func NewInvalidStateError(jobID, operation string, err error) *AppError {
	return Wrap(err, ErrCodeInvalidJobState, fmt.Sprintf("cannot %s job", operation)).
		WithContext("job_id", jobID).
		WithContext("operation", operation).
		WithUserMessage(fmt.Sprintf("Job cannot be %sd in its current status", operation))
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewProviderError creates an error for a failed provider API call.
// 5xx, 429 and 408 responses are marked retryable.
func NewProviderError(endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeProviderAPI, "provider API call failed").
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	if statusCode >= 500 || statusCode == 429 || statusCode == 408 {
		appErr.Retryable = true
	}
	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}
