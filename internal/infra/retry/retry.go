package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy is a bounded exponential backoff: MaxAttempts tries, sleeping
// BaseDelay * Multiplier^n between them, with optional jitter. The same
// policy instance is shared by every gateway fetch in the service.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      bool
}

// Default matches the reconciler budget: 3 attempts, 1s base, factor 2
// (worst case roughly 7 seconds inside one event's handling).
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
}

// Do runs fn up to MaxAttempts times. A timed-out attempt counts against the
// budget; ctx cancellation stops the loop early and returns ctx.Err().
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			d := delay
			if p.Jitter {
				d += time.Duration(rand.Int63n(int64(delay)/2 + 1))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}
