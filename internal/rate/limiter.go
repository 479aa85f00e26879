package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces flow counters.
const DefaultPrefix = "afl"

// Config holds limiter tuning parameters. Limit 0 disables the limiter.
type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// Limiter counts hits per key in fixed windows stored in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Enabled reports whether Allow can ever deny.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.Limit > 0 && l.redis != nil
}

// Allow records one hit for key and returns [ErrRateLimited] once the
// window's budget is exhausted. Empty keys are not limited.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if !l.Enabled() || key == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(key), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Remaining returns how many hits key has left in the current window.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	if !l.Enabled() {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return l.config.Limit, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if left := int64(l.config.Limit) - count; left > 0 {
		return int(left), nil
	}
	return 0, nil
}

func (l *Limiter) key(k string) string {
	return l.config.Prefix + ":" + k
}

// incrementWithTTL counts one hit. EXPIRE NX only arms the window when the
// counter has no TTL, so the window still starts at the first hit and a
// counter can never be left without one.
//
//	Performance: 1 round trip (MULTI INCR EXPIRE NX EXEC).
func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val(), nil
}
