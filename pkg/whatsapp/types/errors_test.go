package types

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUntypedErrors(t *testing.T) {
	// untyped failures stay retryable so the retry budget bounds them
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsPermanent(errors.New("some error")))
	assert.False(t, IsChannelFatal(errors.New("some error")))
}

func TestClassifyWrappedSendError(t *testing.T) {
	inner := NewSendError(403, "account disabled", nil)
	wrapped := fmt.Errorf("dispatching to +1555: %w", inner)

	assert.True(t, IsChannelFatal(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.False(t, IsPermanent(wrapped))
}

func TestSendErrorMessage(t *testing.T) {
	err := NewSendError(429, "too many requests", nil)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "transient")

	transport := NewTransportError(errors.New("dial tcp: connection refused"))
	assert.Contains(t, transport.Error(), "connection refused")
	assert.NotContains(t, transport.Error(), "status")
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "transient", ErrorKindTransient.String())
	assert.Equal(t, "permanent", ErrorKindPermanent.String())
	assert.Equal(t, "channel_fatal", ErrorKindChannelFatal.String())
}
