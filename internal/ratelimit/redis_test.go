package ratelimit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// These tests exercise the Lua window script against a live Redis and skip
// when none is reachable. REDIS_TEST_ADDR overrides the default address.

func newTestRedisLimiter(t *testing.T) *RedisLimiter {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	l, err := NewRedisLimiter(&redis.Options{Addr: addr, DB: 15})
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// uniqueSubject keeps runs from colliding on leftover window keys.
func uniqueSubject(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestRedisWindowBoundary(t *testing.T) {
	l := newTestRedisLimiter(t)
	ctx := context.Background()
	subject := uniqueSubject("boundary")
	policy := Policy{Name: "test_boundary", Limit: 5, Window: 300 * time.Millisecond}

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, subject, policy)
		if err != nil {
			t.Fatalf("Allow %d failed: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should pass within the window", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("request %d: remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	d, err := l.Allow(ctx, subject, policy)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.Allowed {
		t.Error("request 6 should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("denied decision remaining = %d, want 0", d.Remaining)
	}

	// A fresh window opens once the TTL lapses.
	time.Sleep(350 * time.Millisecond)
	d, err = l.Allow(ctx, subject, policy)
	if err != nil {
		t.Fatalf("Allow after window failed: %v", err)
	}
	if !d.Allowed {
		t.Error("request after the window boundary should pass")
	}
}

func TestRedisPolicyNamespaces(t *testing.T) {
	l := newTestRedisLimiter(t)
	ctx := context.Background()
	subject := uniqueSubject("namespaces")
	a := Policy{Name: "test_ns_a", Limit: 1, Window: time.Minute}
	b := Policy{Name: "test_ns_b", Limit: 1, Window: time.Minute}

	if d, err := l.Allow(ctx, subject, a); err != nil || !d.Allowed {
		t.Fatalf("first Allow under a: allowed=%v err=%v", d.Allowed, err)
	}
	// Exhausting one policy leaves the other untouched.
	if d, err := l.Allow(ctx, subject, b); err != nil || !d.Allowed {
		t.Errorf("first Allow under b: allowed=%v err=%v", d.Allowed, err)
	}
	if d, err := l.Allow(ctx, subject, a); err != nil || d.Allowed {
		t.Errorf("second Allow under a: allowed=%v err=%v", d.Allowed, err)
	}
}

func TestRedisLastSlotAtomicity(t *testing.T) {
	l := newTestRedisLimiter(t)
	ctx := context.Background()
	subject := uniqueSubject("lastslot")
	policy := Policy{Name: "test_lastslot", Limit: 5, Window: time.Minute}

	// Consume four slots, then race for the last one. The script runs
	// server-side, so exactly one contender may win it.
	for i := 0; i < 4; i++ {
		if _, err := l.Allow(ctx, subject, policy); err != nil {
			t.Fatalf("warm-up Allow failed: %v", err)
		}
	}

	const contenders = 32
	var wg sync.WaitGroup
	allowed := make(chan bool, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, subject, policy)
			if err != nil {
				t.Errorf("concurrent Allow failed: %v", err)
				return
			}
			allowed <- d.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	wins := 0
	for a := range allowed {
		if a {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("last slot granted %d times, want exactly 1", wins)
	}
}
