package registry

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states from §6
// ("CLOSED -> OPEN after N consecutive failures; after a cooldown,
// HALF_OPEN admits a single probe; success closes, failure reopens").
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig configures the failure threshold and cooldown. No
// suitable circuit-breaker dependency surfaced anywhere in the ecosystem
// (see DESIGN.md), so this is a small hand-rolled state machine matching
// the mutex-guarded-struct style used throughout this codebase.
type BreakerConfig struct {
	FailureThreshold int
	CooldownPeriod   time.Duration
}

// DefaultBreakerConfig opens after 5 consecutive failures and cools down
// for 30 seconds before admitting a probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, CooldownPeriod: 30 * time.Second}
}

// CircuitBreaker guards a single tool's external calls.
type CircuitBreaker struct {
	mu sync.Mutex

	config BreakerConfig
	state  BreakerState

	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

// NewCircuitBreaker builds a breaker starting CLOSED. A zero-value
// FailureThreshold defaults to DefaultBreakerConfig's threshold.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.CooldownPeriod <= 0 {
		config.CooldownPeriod = DefaultBreakerConfig().CooldownPeriod
	}
	return &CircuitBreaker{config: config, state: BreakerClosed}
}

// Allow reports whether a call should be admitted right now. When OPEN
// and the cooldown has elapsed, it transitions to HALF_OPEN and admits
// exactly one probe call; further calls are rejected until that probe
// settles.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.config.CooldownPeriod {
			b.state = BreakerHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker (from CLOSED or HALF_OPEN) and resets
// the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.consecutiveFailures = 0
	b.probeInFlight = false
}

// RecordFailure increments the failure count and opens the breaker once
// the threshold is crossed, or immediately reopens on a failed probe.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
