package ratelimiter

import (
	"sync"
	"time"
)

// Limiter provides simple per-key time-based rate limiting.
// It allows one action per key per interval and is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed map[string]time.Time
}

// New creates a new rate limiter with the specified interval.
// Actions are limited to at most one per key per interval.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval:    interval,
		lastAllowed: make(map[string]time.Time),
	}
}

// Allow checks if an action is allowed for the key at this time.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if rate-limited.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	timeSinceLast := now.Sub(l.lastAllowed[key])

	if timeSinceLast >= l.interval {
		l.lastAllowed[key] = now
		return true, 0
	}

	return false, l.interval - timeSinceLast
}

// Reset clears the limiter state for a key, allowing the next action
// immediately.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.lastAllowed, key)
	l.mu.Unlock()
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
