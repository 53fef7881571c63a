package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig contains configuration for exponential backoff
type BackoffConfig struct {
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	MaxAttempts int           `json:"max_attempts"`
	Jitter      bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		MaxAttempts: 3,
		Jitter:      true,
	}
}

// Backoff computes exponential backoff delays with a hard ceiling
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new exponential backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	return &Backoff{config: config}
}

// NextDelay returns the delay before retrying after attempt number n
// (zero-based): min(base * 2^n, max), with optional ±20% jitter
// applied multiplicatively. Without jitter the result is monotonically
// non-decreasing in n.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.config.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
			break
		}
	}
	if delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	if b.config.Jitter {
		// Multiplicative ±20% to spread retries of recipients sharing
		// a channel.
		factor := 0.8 + 0.4*secureFloat64()
		delay *= factor
		if delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// MaxAttempts returns the configured attempt budget
func (b *Backoff) MaxAttempts() int {
	return b.config.MaxAttempts
}

// Retry executes the operation until it succeeds, the attempt budget
// is exhausted, or ctx is cancelled.
func (b *Backoff) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < b.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == b.config.MaxAttempts-1 {
			break
		}

		if err := Sleep(ctx, b.NextDelay(attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// Sleep waits for d or until ctx is cancelled
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepInterruptible waits for d, waking every poll interval to ask
// interrupted. It returns early with no error when interrupted reports
// true, so long rate-limit and backoff waits react to pause/cancel
// within the poll interval instead of sleeping through it.
func SleepInterruptible(ctx context.Context, d, poll time.Duration, interrupted func() bool) error {
	if poll <= 0 || poll > d {
		poll = d
	}
	deadline := time.Now().Add(d)
	for {
		if interrupted != nil && interrupted() {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		step := poll
		if remaining < step {
			step = remaining
		}
		if err := Sleep(ctx, step); err != nil {
			return err
		}
	}
}

// secureFloat64 generates a random float64 in [0, 1)
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fallback if crypto/rand fails
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
