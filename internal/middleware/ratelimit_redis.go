// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so the
// limit is shared across replicas. It uses a fixed window counter: INCR on
// the key, EXPIRE on the first hit of a window.
//
// The store fails open: if Redis is unreachable the request is allowed and
// the full quota is reported. Losing rate limiting briefly is preferable to
// refusing all traffic during a cache outage.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("redis rate limit check failed, failing open",
			"error", err, "key", key)
		return true, config.RequestsPerWindow, 0
	}

	count := int(incr.Val())
	if count <= config.RequestsPerWindow {
		return true, config.RequestsPerWindow - count, 0
	}

	retryAfter := int(config.WindowDuration.Seconds())
	if ttl, err := s.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
		retryAfter = int(ttl.Round(time.Second).Seconds())
		if retryAfter <= 0 {
			retryAfter = 1
		}
	}
	return false, 0, retryAfter
}
