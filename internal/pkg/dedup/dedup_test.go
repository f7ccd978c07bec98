package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newGuard(t *testing.T, ttl time.Duration) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return NewGuard(rdb, ttl), s
}

func TestGuard_Claim(t *testing.T) {
	g, s := newGuard(t, time.Minute)
	ctx := context.Background()

	ok, err := g.Claim(ctx, "prune:1700000000")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatalf("expected first claim to win")
	}

	ok, err = g.Claim(ctx, "prune:1700000000")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("expected second claim to lose")
	}

	s.FastForward(time.Minute + time.Second)
	ok, err = g.Claim(ctx, "prune:1700000000")
	if err != nil || !ok {
		t.Fatalf("claim after ttl: ok=%v err=%v", ok, err)
	}
}

func TestGuard_Release(t *testing.T) {
	g, _ := newGuard(t, time.Hour)
	ctx := context.Background()

	if ok, _ := g.Claim(ctx, "k"); !ok {
		t.Fatalf("expected claim")
	}
	if err := g.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := g.Claim(ctx, "k"); !ok {
		t.Fatalf("expected claim after release")
	}
}

func TestGuard_NilRedisAlwaysClaims(t *testing.T) {
	var g *Guard
	for i := 0; i < 2; i++ {
		ok, err := g.Claim(context.Background(), "k")
		if err != nil || !ok {
			t.Fatalf("nil guard claim %d: ok=%v err=%v", i, ok, err)
		}
	}
}
