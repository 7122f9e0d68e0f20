// Package backoff computes retry delays. Delay is a pure function of the
// attempt number so schedules can be tested without sleeping.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy is a capped exponential schedule: Base * Factor^attempt, never above Cap.
type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
}

// Default matches the send retry schedule: 200ms doubling up to 5s.
func Default() Policy {
	return Policy{Base: 200 * time.Millisecond, Cap: 5 * time.Second, Factor: 2}
}

// Delay returns the deterministic delay before retry number attempt (0-based).
// It is non-decreasing in attempt and never exceeds Cap.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= factor
		if d >= float64(p.Cap) {
			return p.Cap
		}
	}
	if d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}

// FullJitter returns a uniformly random duration in [0, d].
func FullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

// EqualJitter returns a random duration in [d/2, d].
func EqualJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	half := d / 2
	return half + time.Duration(rand.Int64N(int64(d-half)+1))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
