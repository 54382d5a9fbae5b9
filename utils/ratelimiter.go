package utils

import (
	"sync"
	"time"
)

// RateLimiter spaces outgoing requests per key (one key per source host), so
// a slow venue never delays fetches from the others.
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time
	delay    time.Duration
}

// NewRateLimiter creates a new RateLimiter with the given delay in milliseconds
func NewRateLimiter(delayMs int) *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[string]time.Time),
		delay:    time.Duration(delayMs) * time.Millisecond,
	}
}

// Wait blocks until enough time has passed since the last request to the
// same key. The slot is reserved before sleeping, so concurrent callers on
// one key queue up instead of racing through together.
func (r *RateLimiter) Wait(key string) {
	if r.delay <= 0 {
		return
	}

	r.mu.Lock()
	now := time.Now()
	next := r.lastCall[key].Add(r.delay)
	if next.Before(now) {
		next = now
	}
	r.lastCall[key] = next
	r.mu.Unlock()

	if wait := next.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
}
