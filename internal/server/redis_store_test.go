package server

import (
	"testing"
	"time"

	"cliphive/internal/testsupport/redisstub"
)

func TestRedisStoreCountsWithinWindow(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = stub.Close() })

	store := newRedisStore(stub.Addr(), "", time.Second)
	key := "cliphive:login:198.51.100.7"

	for attempt := 1; attempt <= 3; attempt++ {
		allowed, retryAfter, err := store.Allow(key, 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow attempt %d error: %v", attempt, err)
		}
		if !allowed {
			t.Fatalf("attempt %d should be allowed", attempt)
		}
		if retryAfter != 0 {
			t.Fatalf("allowed attempt %d carried retryAfter %v", attempt, retryAfter)
		}
	}

	allowed, retryAfter, err := store.Allow(key, 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow over limit error: %v", err)
	}
	if allowed {
		t.Fatal("fourth attempt should be rejected")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("expected retryAfter within the window, got %v", retryAfter)
	}
	if got := stub.Value(key); got != 4 {
		t.Fatalf("expected 4 recorded attempts, got %d", got)
	}
}

func TestRedisStoreIsolatesKeys(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = stub.Close() })

	store := newRedisStore(stub.Addr(), "", time.Second)

	if allowed, _, err := store.Allow("cliphive:login:203.0.113.1", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("first key should be allowed, got allowed=%v err=%v", allowed, err)
	}
	if allowed, _, err := store.Allow("cliphive:login:203.0.113.1", 1, time.Minute); err != nil || allowed {
		t.Fatalf("first key should now be limited, got allowed=%v err=%v", allowed, err)
	}
	if allowed, _, err := store.Allow("cliphive:login:203.0.113.2", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("second key should be unaffected, got allowed=%v err=%v", allowed, err)
	}
}

func TestRedisStoreAuthenticates(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{Password: "hivepass"})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() { _ = stub.Close() })

	store := newRedisStore(stub.Addr(), "hivepass", time.Second)
	if allowed, _, err := store.Allow("cliphive:login:192.0.2.9", 5, time.Minute); err != nil || !allowed {
		t.Fatalf("authenticated request should pass, got allowed=%v err=%v", allowed, err)
	}

	unauthenticated := newRedisStore(stub.Addr(), "", time.Second)
	if _, _, err := unauthenticated.Allow("cliphive:login:192.0.2.9", 5, time.Minute); err == nil {
		t.Fatal("expected error without credentials")
	}
}
