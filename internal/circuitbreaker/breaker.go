package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithStateChange registers a hook fired after every transition.
// It runs outside the breaker's lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// CircuitBreaker stops calling a failing dependency for resetTimeout after
// maxFailures consecutive errors, then lets a single trial call through.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	onChange     func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call executes fn unless the circuit is open. The error from fn is
// returned unchanged.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
		cb.transition(StateHalfOpen)
		return nil

	case StateHalfOpen:
		if cb.probing {
			cb.mu.Unlock()
			return ErrTooManyRequests
		}
		cb.probing = true
	}

	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()

	if err != nil {
		cb.failures++
		switch {
		case cb.state == StateHalfOpen:
			cb.probing = false
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
			return
		case cb.state == StateClosed && cb.failures >= cb.maxFailures:
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
			return
		}
		cb.mu.Unlock()
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.probing = false
		cb.transition(StateClosed)
		return
	}
	cb.mu.Unlock()
}

// transition must be called with mu held; it releases it.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	hook := cb.onChange
	cb.mu.Unlock()

	if hook != nil && from != to {
		hook(from, to)
	}
}

// State returns current circuit breaker state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns the state and the current consecutive failure count
func (cb *CircuitBreaker) Stats() (state State, failures int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures
}

// Reset closes the circuit and clears the failure count
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.failures = 0
	cb.probing = false
	cb.transition(StateClosed)
}
