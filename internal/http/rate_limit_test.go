package httpx

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryRateLimiterWindow(t *testing.T) {
	rl := NewMemoryRateLimiter().(*memoryRateLimiter)
	defer rl.Close()

	for i := 1; i <= 3; i++ {
		d := rl.Allow("ip:1", 3, time.Minute)
		if !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow("ip:1", 3, time.Minute); d.allowed {
		t.Fatalf("fourth request should be limited")
	}
	if d := rl.Allow("ip:2", 3, time.Minute); !d.allowed {
		t.Fatalf("other key should be allowed")
	}

	rl.cleanup(time.Now().Add(2 * time.Minute))
	if d := rl.Allow("ip:1", 3, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expired window should reset, got %+v", d)
	}
}

func TestMemoryRateLimiterDisabledLimit(t *testing.T) {
	rl := NewMemoryRateLimiter()
	defer rl.Close()
	for i := 0; i < 10; i++ {
		if d := rl.Allow("k", 0, time.Minute); !d.allowed {
			t.Fatalf("zero limit must not throttle")
		}
	}
}

func TestRateMetricKey(t *testing.T) {
	cases := map[string]string{
		"":           "unknown",
		"ip:1.2.3.4": "ip",
		"user:abc":   "user",
		"plain":      "plain",
	}
	for in, want := range cases {
		if got := rateMetricKey(in); got != want {
			t.Fatalf("rateMetricKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedisRateLimiter(t *testing.T) {
	addr := os.Getenv("TASKBOARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TASKBOARD_TEST_REDIS_ADDR not set")
	}
	rl, err := NewRedisRateLimiter(addr, "", 0, newLogger())
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer rl.Close()

	key := "test:" + uuid.NewString()
	for i := 1; i <= 2; i++ {
		if d := rl.Allow(key, 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	d := rl.Allow(key, 2, time.Minute)
	if d.allowed {
		t.Fatalf("third request should be limited")
	}
	if d.windowEnd.Before(time.Now()) {
		t.Fatalf("window end should be in the future")
	}
}
