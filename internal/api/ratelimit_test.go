package api

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	if ok, _ := rl.Allow("a"); !ok {
		t.Fatal("first request should pass")
	}
	now = now.Add(10 * time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Fatal("second request should pass")
	}
	ok, retry := rl.Allow("a")
	if ok {
		t.Fatal("third request inside the window should be limited")
	}
	if retry != 50*time.Second {
		t.Errorf("expected retry after 50s, got %v", retry)
	}

	// Other clients are unaffected.
	if ok, _ := rl.Allow("b"); !ok {
		t.Error("separate key should have its own budget")
	}

	now = now.Add(51 * time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Error("oldest request expired, should pass again")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Stop()

	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	now = now.Add(2 * time.Minute)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.requests) != 0 {
		t.Errorf("expected stale clients to be dropped, have %d", len(rl.requests))
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()
}
