package http

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, 1, time.Minute)
	t.Cleanup(rl.Close)

	current := time.Unix(0, 0)
	rl.now = func() time.Time {
		return current
	}

	key := "1.2.3.4"

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow(key); !ok {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}

	ok, wait := rl.Allow(key)
	if ok {
		t.Fatalf("expected fourth request to be denied")
	}
	if wait != time.Second {
		t.Fatalf("expected a one second wait, got %s", wait)
	}

	if ok, _ := rl.Allow("5.6.7.8"); !ok {
		t.Fatalf("expected other clients to keep their own budget")
	}

	current = current.Add(time.Second)

	if ok, _ := rl.Allow(key); !ok {
		t.Fatalf("expected request after refill to be allowed")
	}
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(1, 1, time.Minute)
	rl.Close()
	rl.Close()

	current := time.Unix(0, 0)
	rl.now = func() time.Time {
		return current
	}

	rl.Allow("idle")
	current = current.Add(30 * time.Second)
	rl.Allow("active")

	current = current.Add(45 * time.Second)
	rl.pruneStale()

	if got := rl.clientCount(); got != 1 {
		t.Fatalf("expected only the active client to remain, got %d", got)
	}
}
