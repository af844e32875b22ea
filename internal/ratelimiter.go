package internal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by client (IP for the auth
// endpoints). A non-positive limit disables it.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time

	lastSweep time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	windowStart := now.Add(-r.window)
	r.sweep(now, windowStart)

	recent := trimBefore(r.hits[key], windowStart)
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// sweep drops keys with no hit inside the window, at most once per window.
func (r *RateLimiter) sweep(now, windowStart time.Time) {
	if now.Sub(r.lastSweep) < r.window {
		return
	}
	r.lastSweep = now
	for key, hits := range r.hits {
		if recent := trimBefore(hits, windowStart); len(recent) > 0 {
			r.hits[key] = recent
		} else {
			delete(r.hits, key)
		}
	}
}

func trimBefore(hits []time.Time, start time.Time) []time.Time {
	idx := 0
	for _, ts := range hits {
		if ts.After(start) {
			hits[idx] = ts
			idx++
		}
	}
	return hits[:idx]
}
