package resilience

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// BreakerState is the circuit breaker's current posture.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// breaker is a simple consecutive-failure circuit breaker: it opens after
// Threshold consecutive failures, stays open for CoolDown, then allows a
// single half-open probe before closing again on success or re-opening on
// failure. Grounded on the teacher's resilient HTTP adapter, which wraps
// every outbound call with the same open/half-open/closed state machine
// ahead of the retry loop.
type breaker struct {
	mu        sync.Mutex
	threshold int
	coolDown  time.Duration
	clock     clockwork.Clock

	state       BreakerState
	failures    int
	openedAt    time.Time
}

func newBreaker(threshold int, coolDown time.Duration, clock clockwork.Clock) *breaker {
	return &breaker{threshold: threshold, coolDown: coolDown, clock: clock, state: BreakerClosed}
}

// Allow reports whether a call may proceed, transitioning Open -> HalfOpen
// once the cool-down has elapsed.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.clock.Since(b.openedAt) >= b.coolDown {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = BreakerClosed
}

// RecordFailure increments the failure count, opening the breaker once the
// threshold is reached (or immediately, if the failing call was the
// half-open probe).
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = b.clock.Now()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = b.clock.Now()
	}
}

// State returns the current breaker state for metrics reporting.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
