package server

import (
	"testing"
	"time"
)

func TestRateLimiterDisabledByDefault(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	if !rl.AllowRequest() {
		t.Fatal("zero config should not throttle requests")
	}
	allowed, _, err := rl.AllowLogin("10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("zero config should not throttle logins (allowed=%v err=%v)", allowed, err)
	}
}

func TestLoginLimitPerIP(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 3, LoginWindow: time.Minute})

	for i := 0; i < 3; i++ {
		allowed, _, err := rl.AllowLogin("10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("attempt %d should pass (allowed=%v err=%v)", i+1, allowed, err)
		}
	}
	allowed, retryAfter, err := rl.AllowLogin("10.0.0.1")
	if err != nil {
		t.Fatalf("AllowLogin: %v", err)
	}
	if allowed {
		t.Fatal("fourth attempt should be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %v, want positive", retryAfter)
	}

	// A different address keeps its own bucket.
	allowed, _, err = rl.AllowLogin("10.0.0.2")
	if err != nil || !allowed {
		t.Fatalf("separate IP should pass (allowed=%v err=%v)", allowed, err)
	}
}

func TestLoginBucketCleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: 10 * time.Millisecond})
	if _, _, err := rl.AllowLogin("10.0.0.1"); err != nil {
		t.Fatalf("AllowLogin: %v", err)
	}

	rl.loginMu.Lock()
	rl.loginBuckets["10.0.0.1"].lastSeen = time.Now().Add(-time.Minute)
	rl.loginMu.Unlock()

	if _, _, err := rl.AllowLogin("10.0.0.2"); err != nil {
		t.Fatalf("AllowLogin: %v", err)
	}
	rl.loginMu.Lock()
	_, exists := rl.loginBuckets["10.0.0.1"]
	rl.loginMu.Unlock()
	if exists {
		t.Fatal("stale login bucket should be evicted")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	bucket := newTokenBucket(100, 1)
	if !bucket.Allow() {
		t.Fatal("fresh bucket should allow")
	}
	if bucket.Allow() {
		t.Fatal("drained bucket should deny")
	}
	time.Sleep(20 * time.Millisecond)
	if !bucket.Allow() {
		t.Fatal("bucket should refill at the configured rate")
	}
}

func TestNilRateLimiterAllowsEverything(t *testing.T) {
	var rl *rateLimiter
	if !rl.AllowRequest() {
		t.Fatal("nil limiter should allow requests")
	}
	allowed, _, err := rl.AllowLogin("anyone")
	if err != nil || !allowed {
		t.Fatalf("nil limiter should allow logins (allowed=%v err=%v)", allowed, err)
	}
}
