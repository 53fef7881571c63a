package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards calls to an external service. After
// maxFailures consecutive failures it opens and rejects calls until
// the cooldown elapses, then lets a limited number of probes through.
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	cooldown         time.Duration
	halfOpenMaxCalls uint32

	mu              sync.Mutex
	state           State
	failures        uint32
	halfOpenCalls   uint32
	halfOpenOK      uint32
	lastFailureTime time.Time

	logger *logrus.Logger
}

// New creates a circuit breaker
func New(name string, maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logrus.New()
	}
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		cooldown:         cooldown,
		halfOpenMaxCalls: 3,
		state:            StateClosed,
		logger:           logger,
	}
}

// Execute runs fn if the breaker allows it. A rejected call returns
// *OpenError without invoking fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return &OpenError{Name: cb.name, State: cb.State()}
	}

	err := fn(ctx)
	if err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.cooldown {
			cb.state = StateHalfOpen
			cb.halfOpenCalls = 0
			cb.halfOpenOK = 0
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           cb.state.String(),
			}).Info("Circuit breaker transitioned to half-open")
			cb.halfOpenCalls++
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenCalls < cb.halfOpenMaxCalls {
			cb.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.halfOpenOK++
		if cb.halfOpenOK >= cb.halfOpenMaxCalls {
			cb.state = StateClosed
			cb.failures = 0
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           cb.state.String(),
			}).Info("Circuit breaker closed after successful recovery")
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

// trip must be called with the lock held
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
		"state":           cb.state.String(),
	}).Warn("Circuit breaker opened due to failures")
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OpenError is returned when a call is rejected by an open breaker
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsOpenError checks if an error is a circuit breaker rejection
func IsOpenError(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

// Group keeps one breaker per key, lazily created. Used to track the
// provider's health per WhatsApp channel.
type Group struct {
	mu          sync.Mutex
	breakers    map[string]*CircuitBreaker
	maxFailures uint32
	cooldown    time.Duration
	logger      *logrus.Logger
}

// NewGroup creates a breaker group with shared settings
func NewGroup(maxFailures uint32, cooldown time.Duration, logger *logrus.Logger) *Group {
	return &Group{
		breakers:    make(map[string]*CircuitBreaker),
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger,
	}
}

// Get returns the breaker for key, creating it on first use
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[key]
	if !ok {
		cb = New(key, g.maxFailures, g.cooldown, g.logger)
		g.breakers[key] = cb
	}
	return cb
}
