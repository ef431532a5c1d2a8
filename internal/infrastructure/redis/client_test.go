package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestNewClientAndIncrWindow(t *testing.T) {
	s := miniredis.RunT(t)

	client, err := NewClient(context.Background(), "redis://"+s.Addr(), nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWindow(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("IncrWindow failed: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if ttl := s.TTL("k"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}

	s.FastForward(2 * time.Minute)
	got, err := client.IncrWindow(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("IncrWindow failed: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected counter to restart after expiry, got %d", got)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(context.Background(), "://nope", nil); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
