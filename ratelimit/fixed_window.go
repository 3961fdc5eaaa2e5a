package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps Redis transport failures. Callers treat it as an
// infrastructure failure, not as a rate-limit decision.
var ErrUnavailable = errors.New("rate limit store unavailable")

// FixedWindowLimiter is a Redis-backed fixed-window counter shared across
// processes. Semantics are coarser than the in-memory buckets: the allowance
// resets when the window TTL expires, and the TTL is set on the first hit in
// the window.
type FixedWindowLimiter struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

// NewFixedWindowLimiter creates a limiter granting max hits per window per
// key. The prefix namespaces the limiter's keys in Redis.
func NewFixedWindowLimiter(client redis.UniversalClient, prefix string, max int, window time.Duration) *FixedWindowLimiter {
	if prefix == "" {
		prefix = "arl"
	}
	return &FixedWindowLimiter{
		redis:  client,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

func (l *FixedWindowLimiter) key(key string) string {
	return l.prefix + ":" + key
}

// Check reports whether the key is within budget without consuming from it.
func (l *FixedWindowLimiter) Check(ctx context.Context, key string, cost int) (bool, error) {
	val, err := l.redis.Get(ctx, l.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cost <= l.max, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w: corrupt counter", ErrUnavailable)
	}
	return count+int64(cost) <= int64(l.max), nil
}

// Consume takes cost from the key's window. The counter is incremented even
// when the budget is exceeded, so persistent abusers stay over the limit
// until the window expires.
func (l *FixedWindowLimiter) Consume(ctx context.Context, key string, cost int) (bool, error) {
	count, err := l.redis.IncrBy(ctx, l.key(key), int64(cost)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// First hit in the window starts the TTL.
	if count == int64(cost) {
		if err := l.redis.Expire(ctx, l.key(key), l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return count <= int64(l.max), nil
}

// Reset clears the key's window.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
