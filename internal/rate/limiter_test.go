package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestLoginBudget(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxLoginAttempts: 3, LoginCooldownDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
		_ = l.IncrementLogin(ctx, "A@example.com", "")
	}
	if err := l.CheckLogin(ctx, "a@example.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n, _ := l.Attempts(ctx, "a@example.com"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestIPThrottleSharedAcrossIdentifiers(t *testing.T) {
	l, _ := newTestLimiter(t, Config{EnableIPThrottle: true, MaxLoginAttempts: 2})
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "one@example.com", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "two@example.com", "10.0.0.1")
	if err := l.CheckLogin(ctx, "three@example.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "three@example.com", "10.0.0.2"); err != nil {
		t.Fatalf("expected other IP to pass, got %v", err)
	}
}

func TestResetLogin(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginAttempts: 1})
	ctx := context.Background()
	_ = l.IncrementLogin(ctx, "a@example.com", "")
	if err := l.ResetLogin(ctx, "a@example.com"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if err := l.CheckLogin(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("expected reset budget, got %v", err)
	}
}

func TestRedisFailureWrapped(t *testing.T) {
	l, mr := newTestLimiter(t, Config{})
	mr.Close()
	if err := l.CheckLogin(context.Background(), "a", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
