package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(5, time.Second, nil)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	if rl.limit != 5 {
		t.Errorf("expected limit 5, got %d", rl.limit)
	}
	if rl.window != time.Second {
		t.Errorf("expected window 1s, got %v", rl.window)
	}
	if rl.clock == nil {
		t.Error("expected a default clock")
	}
}

func TestRateLimiter_Allow_ExceedsLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Second, clockwork.NewFakeClock())
	key := "conn-1"

	if !rl.Allow(key) {
		t.Error("first message should be allowed")
	}
	if !rl.Allow(key) {
		t.Error("second message should be allowed")
	}
	if rl.Allow(key) {
		t.Error("third message should be rate limited")
	}
}

func TestRateLimiter_Allow_DifferentKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Second, clockwork.NewFakeClock())

	if !rl.Allow("a") {
		t.Error("a should be allowed")
	}
	if !rl.Allow("b") {
		t.Error("b should be allowed")
	}
	if rl.Allow("a") {
		t.Error("a should be rate limited")
	}
}

func TestRateLimiter_Allow_WindowSlides(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, time.Second, clock)
	key := "conn-1"

	rl.Allow(key)
	clock.Advance(600 * time.Millisecond)
	rl.Allow(key)

	if rl.Allow(key) {
		t.Error("third message inside the window should be limited")
	}

	clock.Advance(500 * time.Millisecond)
	if !rl.Allow(key) {
		t.Error("oldest message left the window, next should be allowed")
	}
	if rl.Allow(key) {
		t.Error("window is full again")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second, clockwork.NewFakeClock())
	for i := 0; i < 100; i++ {
		if !rl.Allow("k") {
			t.Fatalf("message %d limited with limiting disabled", i+1)
		}
	}
}

func TestRateLimiter_Forget(t *testing.T) {
	rl := NewRateLimiter(1, time.Second, clockwork.NewFakeClock())
	rl.Allow("k")
	if rl.Allow("k") {
		t.Fatal("second message should be limited")
	}

	rl.Forget("k")

	if rl.Len() != 0 {
		t.Errorf("expected no tracked keys, got %d", rl.Len())
	}
	if !rl.Allow("k") {
		t.Error("message after forget should be allowed")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, time.Second, clock)
	rl.Allow("idle")

	clock.Advance(cleanupEvery + time.Second)
	rl.Allow("active")

	if rl.Len() != 1 {
		t.Errorf("expected idle key to be cleaned up, got %d keys", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, time.Second, clockwork.NewFakeClock())
	key := "conn-1"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				rl.Allow(key)
			}
		}()
	}
	wg.Wait()

	if rl.Allow(key) {
		t.Error("message after 100 concurrent messages should be rate limited")
	}
}
