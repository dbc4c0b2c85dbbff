package infra

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter for upstream API
// admission control. Thread-safe and suitable for concurrent quote fetches.
//
// Tokens are whole units. Refill adds floor(elapsed * capacity / window)
// tokens and advances lastRefill only when at least one token actually
// landed, so fractional progress is never silently discarded.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int64
	capacity   int64
	window     time.Duration
	lastRefill time.Time

	now func() time.Time // test hook
}

// NewRateLimiter creates a limiter that allows capacity requests per window.
// The default quote budget is 60 requests per 60 seconds.
func NewRateLimiter(capacity int, window time.Duration) *RateLimiter {
	if capacity < 1 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		tokens:     int64(capacity),
		capacity:   int64(capacity),
		window:     window,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// TryAcquire attempts to consume a token without blocking.
// Returns true if a token was acquired. Purely advisory: there is no error
// condition, the caller must check the result.
func (r *RateLimiter) TryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := r.nextTokenDelay()
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tokens returns the currently available token count (for monitoring).
func (r *RateLimiter) Tokens() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// refill adds tokens proportional to elapsed time. Must be called with the
// mutex held.
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill)
	if elapsed <= 0 {
		return
	}

	added := int64(elapsed) * r.capacity / int64(r.window)
	if added < 1 {
		// Not enough elapsed time for a whole token; leave lastRefill
		// alone so the partial interval keeps accumulating.
		return
	}

	r.tokens += added
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	r.lastRefill = now
}

// nextTokenDelay estimates how long until one token lands. Must be called
// with the mutex held.
func (r *RateLimiter) nextTokenDelay() time.Duration {
	perToken := time.Duration(int64(r.window) / r.capacity)
	if perToken < time.Millisecond {
		perToken = time.Millisecond
	}
	elapsed := r.now().Sub(r.lastRefill)
	if elapsed >= perToken {
		return time.Millisecond
	}
	return perToken - elapsed
}
