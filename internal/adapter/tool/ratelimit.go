package tool

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window call quota: at most limit calls in any
// window-long span.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time // oldest first
	now    func() time.Time
}

// NewRateLimiter creates a quota of limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a call and reports whether it fits in the quota.
// Rejected calls are not recorded.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expire(now)
	if len(r.calls) >= r.limit {
		return false
	}
	r.calls = append(r.calls, now)
	return true
}

// RetryAfter returns how long until the next call would be allowed.
func (r *RateLimiter) RetryAfter() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expire(now)
	if len(r.calls) < r.limit || len(r.calls) == 0 {
		return 0
	}
	return r.calls[0].Add(r.window).Sub(now)
}

func (r *RateLimiter) expire(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.calls) && !r.calls[i].After(cutoff) {
		i++
	}
	r.calls = r.calls[i:]
}
