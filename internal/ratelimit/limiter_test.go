package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisLimiter_NilRedis_FailOpen(t *testing.T) {
	l := NewRedisLimiter(nil, time.Minute, nil)
	for i := 0; i < 100; i++ {
		d, err := l.Admit(context.Background(), "10.0.0.1", time.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("expected allowed on check %d", i)
		}
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, time.Minute, func() int { return 3 })
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, "c", start.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
		if d.Remaining != 2-i {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 2-i, d.Remaining)
		}
	}

	d, _ := l.Admit(ctx, "c", start.Add(20*time.Second))
	if d.Allowed {
		t.Fatal("4th request should be throttled")
	}
	if d.RetryAfter != 40*time.Second {
		t.Errorf("expected retry after 40s, got %v", d.RetryAfter)
	}

	if d, _ := l.Admit(ctx, "other", start.Add(20*time.Second)); !d.Allowed {
		t.Error("different identity should be admitted")
	}

	if d, _ := l.Admit(ctx, "c", start.Add(60*time.Second)); !d.Allowed {
		t.Error("expected admission once the oldest entry aged out")
	}
}

func TestRedisLimiter_RetryAfterAfterLimitLowered(t *testing.T) {
	rdb := newTestRedis(t)
	limit := 5
	l := NewRedisLimiter(rdb, time.Minute, func() int { return limit })
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		l.Admit(ctx, "c", start.Add(time.Duration(i)*10*time.Second))
	}
	limit = 2

	d, _ := l.Admit(ctx, "c", start.Add(41*time.Second))
	if d.Allowed {
		t.Fatal("expected throttle after the limit was lowered")
	}
	if d.RetryAfter != 49*time.Second {
		t.Errorf("expected retry after 49s, got %v", d.RetryAfter)
	}
}

func TestRedisLimiter_ThrottledNotRecorded(t *testing.T) {
	rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, time.Minute, func() int { return 1 })
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	l.Admit(ctx, "c", start)
	for i := 1; i <= 5; i++ {
		l.Admit(ctx, "c", start.Add(time.Duration(i)*10*time.Second))
	}

	n, err := rdb.ZCard(ctx, "relay:rl:c").Result()
	if err != nil {
		t.Fatalf("zcard: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 recorded entry, got %d", n)
	}
}

func TestRedisLimiter_RedisDown_FailOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	l := NewRedisLimiter(rdb, time.Minute, func() int { return 1 })
	for i := 0; i < 3; i++ {
		d, err := l.Admit(context.Background(), "c", time.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatal("expected fail open when Redis is unreachable")
		}
	}
}
