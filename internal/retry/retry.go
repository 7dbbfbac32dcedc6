// Package retry provides an explicit retry-policy value object applied at
// the call sites that need bounded, escalating retries (graceful stop and
// the readiness probe).
package retry

import (
	"context"
	"time"
)

// Policy describes a bounded retry loop with exponential backoff.
// Zero Factor means no escalation; zero MaxDelay means no cap.
type Policy struct {
	MaxAttempts int           // total attempts, minimum 1
	Delay       time.Duration // wait before the second attempt
	Factor      float64       // delay multiplier per attempt
	MaxDelay    time.Duration // upper bound for a single wait
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned on exhaustion; ctx errors win over fn errors
// when cancellation fires during a wait.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if p.Factor > 1 {
			delay = time.Duration(float64(delay) * p.Factor)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
