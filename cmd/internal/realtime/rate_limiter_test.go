package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !rl.Allow(base.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatalf("event %d rejected", i)
		}
	}
	if rl.Allow(base.Add(300 * time.Millisecond)) {
		t.Fatalf("4th event inside window allowed")
	}
	if !rl.Allow(base.Add(1100 * time.Millisecond)) {
		t.Fatalf("event after oldest left the window rejected")
	}
	if rl.Allow(base.Add(1150 * time.Millisecond)) {
		t.Fatalf("event allowed while window still full")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	now := time.Now()
	for i := 0; i < rateLimitEvents; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d rejected under default limit", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("default limit not enforced")
	}
}
