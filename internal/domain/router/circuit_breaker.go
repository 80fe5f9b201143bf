package router

import (
	"sync"
	"time"
)

// breakerState is a circuit breaker's lifecycle stage.
type breakerState int

const (
	breakerClosed   breakerState = iota // normal operation
	breakerOpen                         // tripped, rejecting probes
	breakerHalfOpen                     // probing for recovery
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// circuitBreaker guards one (provider, model) pair against 5xx failure
// storms that never trip a 429 cooldown. It is a secondary, independent
// skip signal alongside the CooldownManager: the Router treats an open
// breaker like an unavailable cooldown key for fallback-walk purposes, but
// an open breaker never itself produces the all-cooldown terminal state.
type circuitBreaker struct {
	mu               sync.Mutex
	state            breakerState
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
	lastFailureTime  time.Time
	clock            func() time.Time
}

func newCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration, clock func() time.Time) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &circuitBreaker{
		state:            breakerClosed,
		failureThreshold: failureThreshold,
		successThreshold: 1,
		recoveryTimeout:  recoveryTimeout,
		clock:            clock,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if cb.clock().Sub(cb.lastFailureTime) >= cb.recoveryTimeout {
			cb.state = breakerHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	}
	return false
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	if cb.state == breakerHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = breakerClosed
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.clock()

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		return
	}
	if cb.failureCount >= cb.failureThreshold {
		cb.state = breakerOpen
	}
}

func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}
