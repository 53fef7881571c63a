package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wadispatch/internal/models"

	"github.com/sirupsen/logrus"
)

// WindowStore holds the per-window counters. Implementations must make
// Reserve atomic so concurrent batch workers on the same channel never
// over-admit.
type WindowStore interface {
	// Reserve atomically increments the counter at key if the result
	// stays within quota, reporting whether the slot was granted.
	Reserve(ctx context.Context, key string, quota int64, ttl time.Duration) (bool, error)
	// Incr unconditionally increments the counter at key.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Count returns the current counter at key.
	Count(ctx context.Context, key string) (int64, error)
}

// Limiter performs fixed-window admission control per channel. The
// window counter is shared across every job dispatching on the same
// channel, so the aggregate rate never exceeds the provider quota.
type Limiter struct {
	store  WindowStore
	window time.Duration
	logger *logrus.Logger
	now    func() time.Time

	mu     sync.RWMutex
	config models.RateLimitConfig
}

// NewLimiter creates a limiter backed by the given window store
func NewLimiter(store WindowStore, config models.RateLimitConfig, logger *logrus.Logger) *Limiter {
	return &Limiter{
		store:  store,
		config: config,
		window: time.Duration(config.WindowSec) * time.Second,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateQuotas swaps the quota configuration in place, picking up
// config file changes without restarting jobs. The window length is
// fixed at construction since live keys embed it.
func (l *Limiter) UpdateQuotas(config models.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.DefaultQuota = config.DefaultQuota
	l.config.ChannelQuotas = config.ChannelQuotas
	l.config.PauseThresholdSec = config.PauseThresholdSec
	l.config.DeniedRetryWaitMs = config.DeniedRetryWaitMs
	l.config.DegradedModeWaitMs = config.DegradedModeWaitMs
	l.logger.WithField("default_quota", config.DefaultQuota).Info("Rate limit quotas updated")
}

// Admit decides whether a send on channelID may proceed now. When
// denied it returns how long the caller should wait before asking
// again. A store outage fails closed: deny with a short wait, logged
// as degraded mode, never an error to the dispatch loop.
func (l *Limiter) Admit(ctx context.Context, channelID string) (bool, time.Duration) {
	quota := l.quotaFor(channelID)
	if quota <= 0 {
		return true, 0
	}

	granted, err := l.store.Reserve(ctx, l.reservationKey(channelID), quota, l.window)
	if err != nil {
		l.logger.WithError(err).WithField("channel_id", channelID).
			Warn("Rate limit store unavailable, denying admission (degraded mode)")
		l.mu.RLock()
		wait := time.Duration(l.config.DegradedModeWaitMs) * time.Millisecond
		l.mu.RUnlock()
		return false, wait
	}
	if granted {
		return true, 0
	}

	return false, l.untilNextWindow()
}

// RecordSent counts a confirmed send attempt against the channel's
// window. The provider counted the call whether it succeeded or not.
func (l *Limiter) RecordSent(ctx context.Context, channelID string) {
	if _, err := l.store.Incr(ctx, l.sentKey(channelID), l.window); err != nil {
		l.logger.WithError(err).WithField("channel_id", channelID).
			Warn("Failed to record sent message in rate limit window")
	}
}

// SentInWindow returns the number of sends recorded in the current
// window for the channel.
func (l *Limiter) SentInWindow(ctx context.Context, channelID string) int64 {
	count, err := l.store.Count(ctx, l.sentKey(channelID))
	if err != nil {
		l.logger.WithError(err).WithField("channel_id", channelID).
			Warn("Failed to read rate limit window count")
		return 0
	}
	return count
}

// PauseThreshold returns the wait above which callers should pause the
// job instead of blocking a worker.
func (l *Limiter) PauseThreshold() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return time.Duration(l.config.PauseThresholdSec) * time.Second
}

func (l *Limiter) quotaFor(channelID string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if q, ok := l.config.ChannelQuotas[channelID]; ok {
		return int64(q)
	}
	return int64(l.config.DefaultQuota)
}

func (l *Limiter) windowStart() time.Time {
	return l.now().Truncate(l.window)
}

func (l *Limiter) untilNextWindow() time.Duration {
	return l.windowStart().Add(l.window).Sub(l.now())
}

func (l *Limiter) reservationKey(channelID string) string {
	return fmt.Sprintf("ratelimit:%s:%d:admitted", channelID, l.windowStart().Unix())
}

func (l *Limiter) sentKey(channelID string) string {
	return fmt.Sprintf("ratelimit:%s:%d:sent", channelID, l.windowStart().Unix())
}
