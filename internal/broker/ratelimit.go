package broker

import (
	"context"
	"sync"
	"time"
)

// rateLimiter spaces calls at a minimum interval derived from a
// requests-per-minute budget. It is a blocking cooperative throttle: callers
// wait until the interval since the previous call has elapsed. It does not
// accumulate burst allowance like a token bucket.
type rateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// newRateLimiter returns nil when perMinute is zero (no throttling)
func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &rateLimiter{interval: time.Minute / time.Duration(perMinute)}
}

// Wait blocks until the caller may proceed or the context is cancelled.
// A nil limiter never blocks.
func (r *rateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	now := time.Now()
	wait := r.next.Sub(now)
	if wait < 0 {
		wait = 0
		r.next = now.Add(r.interval)
	} else {
		r.next = r.next.Add(r.interval)
	}
	r.mu.Unlock()

	if wait == 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
