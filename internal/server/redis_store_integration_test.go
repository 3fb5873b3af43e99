package server

import (
	"fmt"
	"os"
	"testing"
	"time"
)

// Opt-in integration test: set STREAMTUBE_TEST_REDIS_ADDR to a reachable
// Redis instance to exercise the shared login throttle end to end.
func TestRedisStoreAllowIntegration(t *testing.T) {
	addr := os.Getenv("STREAMTUBE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STREAMTUBE_TEST_REDIS_ADDR not set")
	}

	store := newRedisStore(addr, os.Getenv("STREAMTUBE_TEST_REDIS_PASSWORD"), time.Second)
	key := fmt.Sprintf("streamtube:test:%d", time.Now().UnixNano())

	for i := 0; i < 2; i++ {
		allowed, _, err := store.Allow(key, 2, time.Minute)
		if err != nil {
			t.Fatalf("Allow error: %v", err)
		}
		if !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	allowed, retryAfter, err := store.Allow(key, 2, time.Minute)
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if allowed {
		t.Fatal("third attempt should be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %v", retryAfter)
	}
}
