package llm

import (
	"sync"
	"time"
)

// RateLimiter is a simple fixed-window rate limiter keyed by user ID.
// Each user has an independent counter that resets after window duration.
// It guards generation calls so one session cannot run away with token
// spend.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*windowBucket
}

type windowBucket struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing limit calls per window per user.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*windowBucket),
	}
}

// Allow returns true if the user is within their rate limit, false when
// exceeded. It is safe for concurrent use from multiple goroutines.
func (r *RateLimiter) Allow(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	b, ok := r.buckets[userID]
	if !ok || now.After(b.resetAt) {
		r.buckets[userID] = &windowBucket{count: 1, resetAt: now.Add(r.window)}
		return true
	}
	if b.count >= r.limit {
		return false
	}
	b.count++
	return true
}
