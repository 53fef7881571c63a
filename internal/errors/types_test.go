package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorMessage(t *testing.T) {
	err := New(ErrCodeJobNotFound, "dispatch job not found")
	assert.Equal(t, "JOB_NOT_FOUND: dispatch job not found", err.Error())

	cause := errors.New("sql: no rows in result set")
	wrapped := Wrap(cause, ErrCodeDatabaseQuery, "lookup failed")
	assert.Contains(t, wrapped.Error(), "DATABASE_QUERY")
	assert.Contains(t, wrapped.Error(), "no rows")
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestAppErrorContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "bad input").
		WithContext("field", "phone_number").
		WithUserMessage("Invalid phone number")

	assert.Equal(t, "phone_number", err.Context["field"])
	assert.Equal(t, "Invalid phone number", err.UserMessage)
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeJobNotFound, http.StatusNotFound},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeInvalidJobState, http.StatusConflict},
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeEmptyAudience, http.StatusBadRequest},
		{ErrCodeAuthentication, http.StatusUnauthorized},
		{ErrCodeRateLimit, http.StatusTooManyRequests},
		{ErrCodeProviderAPI, http.StatusBadGateway},
		{ErrCodeChannelInactive, http.StatusBadGateway},
		{ErrCodeInternalError, http.StatusInternalServerError},
		{ErrCodeDatabaseQuery, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, New(tt.code, "x").HTTPStatus(), string(tt.code))
	}
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeJobNotFound, GetCode(New(ErrCodeJobNotFound, "x")))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
}

func TestGetUserMessage(t *testing.T) {
	err := New(ErrCodeValidationFailed, "internal detail").WithUserMessage("Check your input")
	assert.Equal(t, "Check your input", GetUserMessage(err))
	assert.Equal(t, "An internal error occurred", GetUserMessage(errors.New("plain")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeInternalError, "x")))
}

func TestProviderErrorRetryable(t *testing.T) {
	retryable := []int{500, 502, 503, 429, 408}
	for _, code := range retryable {
		err := NewProviderError("/message/sendText", code, fmt.Errorf("status %d", code))
		assert.True(t, err.Retryable, code)
	}

	for _, code := range []int{400, 401, 404} {
		err := NewProviderError("/message/sendText", code, fmt.Errorf("status %d", code))
		assert.False(t, err.Retryable, code)
	}
}

func TestValidationErrorShape(t *testing.T) {
	err := NewValidationError("channel_id", "cannot be empty")
	assert.Equal(t, ErrCodeValidationFailed, err.Code)
	assert.Equal(t, "channel_id", err.Context["field"])
	assert.Contains(t, err.UserMessage, "channel_id")
}

func TestFields(t *testing.T) {
	err := NewDatabaseError("create job", errors.New("disk full"))
	fields := Fields(err)
	assert.Equal(t, ErrCodeDatabaseQuery, fields["error_code"])
	assert.Equal(t, false, fields["retryable"])
	assert.Equal(t, "create job", fields["operation"])

	require.Empty(t, Fields(errors.New("plain")))
}
