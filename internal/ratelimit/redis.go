package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares failure counters between processes.
type Redis struct {
	client *redis.Client
	policy Policy
	prefix string
}

// NewRedis constructs a Redis backed limiter.
func NewRedis(client *redis.Client, policy Policy) *Redis {
	return &Redis{client: client, policy: policy.normalized(), prefix: "tillpoint:ratelimit:"}
}

func (r *Redis) key(k string) string { return r.prefix + k }

// Blocked implements Limiter.
func (r *Redis) Blocked(ctx context.Context, key string) (bool, time.Duration, error) {
	n, err := r.client.Get(ctx, r.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: get: %w", err)
	}
	if n < r.policy.MaxAttempts {
		return false, 0, nil
	}
	ttl, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: ttl: %w", err)
	}
	if ttl < 0 {
		ttl = r.policy.Window
	}
	return true, ttl, nil
}

// Fail implements Limiter. The expiry is set by the first failure of a window.
func (r *Redis) Fail(ctx context.Context, key string) (int, error) {
	n, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, r.key(key), r.policy.Window).Err(); err != nil {
			return 0, fmt.Errorf("ratelimit: expire: %w", err)
		}
	}
	return int(n), nil
}

// Reset implements Limiter.
func (r *Redis) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("ratelimit: del: %w", err)
	}
	return nil
}

var _ Limiter = (*Redis)(nil)
