// Package integrations runs optional report-enrichment providers with
// isolation: timeouts, circuit breaking, and structured failure reasons.
// A broken integration can never fail a tick.
package integrations

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	breakerFailureThreshold = 3
	breakerCooldown         = 60 * time.Second
)

// Breaker is a per-integration circuit breaker. It opens after consecutive
// failures, lets one probe through after the cooldown, and closes again on
// the first success. State is memory only; a restart resets it.
type Breaker struct {
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	nowFn    func() time.Time // overridable in tests
}

// NewBreaker creates a closed breaker.
func NewBreaker() *Breaker {
	return &Breaker{nowFn: time.Now}
}

// Allow reports whether a call may proceed. In the open state it transitions
// to half-open once the cooldown has passed, admitting a single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return true
	case StateOpen:
		if b.nowFn().Sub(b.openedAt) >= breakerCooldown {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}

// RecordFailure counts a failure, opening the breaker at the threshold. A
// failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen || b.failures >= breakerFailureThreshold {
		b.state = StateOpen
		b.openedAt = b.nowFn()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
