package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	redisinfra "github.com/Knifucrab/mauro-zen-notes/internal/infrastructure/redis"
)

func TestMemoryLimiterSlidingWindow(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	defer l.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if !l.Allow(ctx, "ip") || !l.Allow(ctx, "ip") {
		t.Fatalf("expected first two requests to pass")
	}
	if l.Allow(ctx, "ip") {
		t.Fatalf("expected third request to be limited")
	}
	if !l.Allow(ctx, "other") {
		t.Fatalf("keys must have independent budgets")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow(ctx, "ip") {
		t.Fatalf("expected budget to recover after the window")
	}
	if !l.Allow(ctx, "") {
		t.Fatalf("empty keys are never limited")
	}
}

func TestMemoryLimiterStopIsIdempotent(t *testing.T) {
	l := NewLimiter(1, time.Second)
	l.Stop()
	l.Stop()
}

func TestRedisLimiter(t *testing.T) {
	s := miniredis.RunT(t)
	client, err := redisinfra.NewClient(context.Background(), "redis://"+s.Addr(), nil)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	fallback := NewLimiter(100, time.Hour)
	defer fallback.Stop()

	l := NewRedisLimiter(client, 3, time.Hour, fallback, nil)
	now := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "login:1.2.3.4") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if l.Allow(ctx, "login:1.2.3.4") {
		t.Fatalf("fourth request should be limited")
	}

	now = now.Add(time.Hour)
	if !l.Allow(ctx, "login:1.2.3.4") {
		t.Fatalf("next window should have a fresh budget")
	}
}

type failingCounter struct {
	calls atomic.Int32
}

func (f *failingCounter) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	f.calls.Add(1)
	return 0, errors.New("connection refused")
}

func TestRedisLimiterFallsBackWhenRedisFails(t *testing.T) {
	counter := &failingCounter{}
	fallback := NewLimiter(5, time.Hour)
	defer fallback.Stop()

	l := NewRedisLimiter(counter, 1, time.Hour, fallback, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !l.Allow(ctx, "k") {
			t.Fatalf("fallback should allow request %d", i+1)
		}
	}
	if l.Allow(ctx, "k") {
		t.Fatalf("fallback budget should be enforced")
	}
	if got := counter.calls.Load(); got != 3 {
		t.Fatalf("expected the circuit to open after 3 failures, redis was called %d times", got)
	}
}
