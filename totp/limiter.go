package totp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = time.Minute
)

// ErrRateLimited is returned once a principal exhausts its failed-code budget.
var ErrRateLimited = errors.New("totp: rate limited")

// LimiterConfig holds thresholds for failed-code throttling.
type LimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Limiter counts failed TOTP codes per principal in a fixed redis window.
type Limiter struct {
	redis       redis.UniversalClient
	maxAttempts int64
	cooldown    time.Duration
}

// NewLimiter creates a Limiter. Zero fields fall back to 5 attempts per minute.
func NewLimiter(client redis.UniversalClient, cfg LimiterConfig) *Limiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCooldown
	}
	return &Limiter{redis: client, maxAttempts: int64(max), cooldown: cd}
}

func (l *Limiter) key(uid string) string {
	return "totp:attempts:" + uid
}

// Check returns ErrRateLimited when uid may not try another code.
func (l *Limiter) Check(ctx context.Context, uid string) error {
	count, err := l.redis.Get(ctx, l.key(uid)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failed code and reports ErrRateLimited on the
// attempt that exhausts the budget.
func (l *Limiter) RecordFailure(ctx context.Context, uid string) error {
	count, err := l.redis.Incr(ctx, l.key(uid)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, l.key(uid), l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count >= l.maxAttempts {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the failure counter after a successful code.
func (l *Limiter) Reset(ctx context.Context, uid string) error {
	if err := l.redis.Del(ctx, l.key(uid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
