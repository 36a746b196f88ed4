package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultMessageRateLimit = 20
	DefaultWindowSize       = time.Second

	cleanupEvery = 5 * time.Minute
)

// RateLimiter allows at most limit events per key within a sliding window.
type RateLimiter struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	events      map[string][]time.Time
	limit       int
	window      time.Duration
	nextCleanup time.Time
}

func NewRateLimiter(limit int, window time.Duration, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		clock:  clock,
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow records an event for key and reports whether it is within the limit.
// A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if now.After(rl.nextCleanup) {
		rl.cleanup(now)
		rl.nextCleanup = now.Add(cleanupEvery)
	}

	recent := prune(rl.events[key], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.events[key] = recent
		return false
	}
	rl.events[key] = append(recent, now)
	return true
}

// Forget drops all history for key, typically when its connection closes.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.events, key)
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.events)
}

func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.window)
	for key, events := range rl.events {
		recent := prune(events, cutoff)
		if len(recent) == 0 {
			delete(rl.events, key)
		} else {
			rl.events[key] = recent
		}
	}
}

func prune(events []time.Time, cutoff time.Time) []time.Time {
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
