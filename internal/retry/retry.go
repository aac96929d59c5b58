// Package retry implements the exponential-backoff-with-jitter policy from
// §4.4.4, grounded on an internal/retry/retry.go shape: a Policy,
// a Do/DoWithValue pair, and classification-aware retry gating layered on
// top via contracterrors.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/haasonsaas/substrate/internal/contracterrors"
)

// Policy configures the retry pipeline per §4.4.4. Zero-value MaxAttempts,
// InitialDelay, MaxDelay and Multiplier fall back to the defaults in
// DefaultPolicy; a zero Jitter means no jitter.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fractional, e.g. 0.2 for ±20%
}

// DefaultPolicy returns the §4.4.4 defaults: max_attempts=3,
// initial_delay=2s, max_delay=60s, multiplier=2.0, jitter=±20%.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 2 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Delay computes delay_n = min(max_delay, initial_delay * multiplier^n) as
// specified, before jitter is applied. n is zero-based (the delay before
// the (n+1)-th retry attempt).
func (p Policy) Delay(n int) time.Duration {
	p = p.normalize()
	raw := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n))
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}
	return time.Duration(raw)
}

// DelayWithJitter applies the ±jitter fraction to Delay(n) using the
// package-level random source.
func (p Policy) DelayWithJitter(n int) time.Duration {
	base := p.Delay(n)
	p = p.normalize()
	if p.Jitter == 0 {
		return base
	}
	// spread in [1-jitter, 1+jitter]
	spread := 1 - p.Jitter + rand.Float64()*2*p.Jitter // #nosec G404 -- jitter does not require cryptographic randomness
	return time.Duration(float64(base) * spread)
}

// Result reports the outcome of a retried operation.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
	Mode     contracterrors.FailureMode
}

// Do executes op, retrying per policy only while the classified failure
// mode is retryable (§4.4.3, §4.4.4). trace_id is preserved automatically
// since Do never mutates ctx's values; callers pass it through op.
func Do(ctx context.Context, policy Policy, op func(attempt int) error) Result {
	policy = policy.normalize()
	start := time.Now()
	result := Result{}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			result.Err = err
			result.Mode = contracterrors.SystemTimeout
			result.Duration = time.Since(start)
			return result
		}

		err := op(attempt)
		if err == nil {
			result.Err = nil
			result.Duration = time.Since(start)
			return result
		}

		result.Err = err
		mode := contracterrors.Classify(err)
		result.Mode = mode

		if contracterrors.IsPermanent(err) || !mode.Retryable() {
			result.Duration = time.Since(start)
			return result
		}

		if attempt >= policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.Duration = time.Since(start)
			return result
		case <-time.After(policy.DelayWithJitter(attempt - 1)):
		}
	}

	result.Duration = time.Since(start)
	return result
}

// DoWithValue is the value-returning variant of Do.
func DoWithValue[T any](ctx context.Context, policy Policy, op func(attempt int) (T, error)) (T, Result) {
	var value T
	result := Do(ctx, policy, func(attempt int) error {
		v, err := op(attempt)
		value = v
		return err
	})
	return value, result
}
