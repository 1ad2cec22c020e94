package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Prefix      string
	MaxAttempts int
	Window      time.Duration
}

// Limiter counts attempts per (scope, id) in fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) key(scope, id string) string {
	return l.config.Prefix + ":" + scope + ":" + id
}

// Check fails with ErrRateLimited once the window's budget is spent.
func (l *Limiter) Check(ctx context.Context, scope, id string) error {
	if l == nil || id == "" {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(scope, id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Hit records one attempt and reports ErrRateLimited when it spends the last
// of the budget.
func (l *Limiter) Hit(ctx context.Context, scope, id string) error {
	if l == nil || id == "" {
		return nil
	}
	key := l.key(scope, id)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) Reset(ctx context.Context, scope, id string) error {
	if l == nil || id == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(scope, id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
