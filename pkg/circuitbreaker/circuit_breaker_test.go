package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func breakerLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

var errProvider = errors.New("provider unavailable")

func failingCall(ctx context.Context) error { return errProvider }
func okCall(ctx context.Context) error      { return nil }

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := New("channel-1", 3, time.Minute, breakerLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(ctx, okCall))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New("channel-1", 3, time.Minute, breakerLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, failingCall)
		assert.Equal(t, errProvider, err)
	}
	assert.Equal(t, StateOpen, cb.State())

	// rejected without invoking the call
	invoked := false
	err := cb.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsOpenError(err))
	assert.False(t, invoked)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := New("channel-1", 3, time.Minute, breakerLogger())
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failingCall))
	require.Error(t, cb.Execute(ctx, failingCall))
	require.NoError(t, cb.Execute(ctx, okCall))
	require.Error(t, cb.Execute(ctx, failingCall))
	require.Error(t, cb.Execute(ctx, failingCall))

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := New("channel-1", 1, 10*time.Millisecond, breakerLogger())
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failingCall))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	// three consecutive probes close the breaker again
	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Execute(ctx, okCall))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New("channel-1", 1, 10*time.Millisecond, breakerLogger())
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failingCall))
	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(ctx, failingCall)
	assert.Equal(t, errProvider, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestGroupIsolatesKeys(t *testing.T) {
	group := NewGroup(1, time.Minute, breakerLogger())
	ctx := context.Background()

	require.Error(t, group.Get("channel-1").Execute(ctx, failingCall))
	assert.Equal(t, StateOpen, group.Get("channel-1").State())

	// a dead channel must not block sends on healthy ones
	require.NoError(t, group.Get("channel-2").Execute(ctx, okCall))
	assert.Equal(t, StateClosed, group.Get("channel-2").State())
}

func TestGroupReturnsSameBreaker(t *testing.T) {
	group := NewGroup(5, time.Minute, breakerLogger())
	assert.Same(t, group.Get("channel-1"), group.Get("channel-1"))
	assert.NotSame(t, group.Get("channel-1"), group.Get("channel-2"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
}
