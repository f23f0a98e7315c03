package utils

import (
	"sync"
	"time"

	"trading-core/src/models"
)

// -----------------------------------------------------------------------------
// CircuitBreaker states
// -----------------------------------------------------------------------------

const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
)

// -----------------------------------------------------------------------------
// CircuitBreaker protects one call-site (stream connect, brokerage call).
// After Threshold consecutive failures the circuit opens and every Allow
// fast-fails without a call attempt. Once Cooldown elapses the circuit moves
// to half-open and admits exactly one trial: success closes it, failure
// reopens it with the cooldown restarted.
// -----------------------------------------------------------------------------

type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	clock         Clock
	onStateChange func(from, to string)

	mu            sync.Mutex
	state         string
	failures      int
	openedAt      time.Time
	trialInFlight bool
}

// -----------------------------------------------------------------------------

func NewCircuitBreaker(threshold int, cooldown time.Duration, clock Clock) *CircuitBreaker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		clock:     clock,
		state:     CircuitClosed,
	}
}

// -----------------------------------------------------------------------------

// OnStateChange registers a callback fired outside the lock on every
// transition. Used by the stream client to emit degraded-state events.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to string)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Allow reports whether a call attempt may proceed. While open it returns
// models.ErrCircuitOpen without any side effects until the cooldown elapses;
// then it admits a single trial call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()

	switch cb.state {
	case CircuitClosed:
		cb.mu.Unlock()
		return nil

	case CircuitOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.Cooldown {
			cb.mu.Unlock()
			return models.ErrCircuitOpen
		}
		fire := cb.transitionLocked(CircuitHalfOpen)
		cb.trialInFlight = true
		cb.mu.Unlock()
		fire()
		return nil

	default: // half-open
		if cb.trialInFlight {
			cb.mu.Unlock()
			return models.ErrCircuitOpen
		}
		cb.trialInFlight = true
		cb.mu.Unlock()
		return nil
	}
}

// -----------------------------------------------------------------------------

// Success records a successful call: the circuit closes and the consecutive
// failure counter resets.
func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	cb.failures = 0
	cb.trialInFlight = false
	fire := cb.transitionLocked(CircuitClosed)
	cb.mu.Unlock()
	fire()
}

// -----------------------------------------------------------------------------

// Failure records a failed call. A half-open trial failure reopens the
// circuit immediately; in closed state the circuit opens once the
// consecutive-failure threshold is hit.
func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	cb.failures++
	fire := func() {}

	switch cb.state {
	case CircuitHalfOpen:
		cb.trialInFlight = false
		cb.openedAt = cb.clock.Now()
		fire = cb.transitionLocked(CircuitOpen)
	case CircuitClosed:
		if cb.failures >= cb.Threshold {
			cb.openedAt = cb.clock.Now()
			fire = cb.transitionLocked(CircuitOpen)
		}
	}
	cb.mu.Unlock()
	fire()
}

// -----------------------------------------------------------------------------

// State returns the current state string.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// -----------------------------------------------------------------------------

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// -----------------------------------------------------------------------------

// transitionLocked swaps the state and returns the callback to fire after
// unlocking. No-op closure when the state did not change.
func (cb *CircuitBreaker) transitionLocked(to string) func() {
	from := cb.state
	if from == to {
		return func() {}
	}
	cb.state = to
	fn := cb.onStateChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(from, to) }
}
