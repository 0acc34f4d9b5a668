package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter counts windows in Redis so the quota holds across all
// request-handling instances. The increment, expiry, and remaining-TTL
// read run as one server-side script, which makes the check atomic.
type RedisLimiter struct {
	client *redis.Client
}

// allowScript increments the window counter, starts the window TTL on the
// first hit, and returns the count together with the remaining TTL.
var allowScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	return {count, ttl}
`)

// NewRedisLimiter verifies the connection and returns a ready limiter.
func NewRedisLimiter(options *redis.Options) (*RedisLimiter, error) {
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisLimiter{client: client}, nil
}

// Allow runs the atomic increment-and-check for one subject under one policy.
func (l *RedisLimiter) Allow(ctx context.Context, subjectKey string, policy Policy) (Decision, error) {
	res, err := allowScript.Run(ctx, l.client,
		[]string{windowKey(policy, subjectKey)},
		policy.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit check: unexpected script reply")
	}

	count, ttlMs := res[0], res[1]
	resetAt := time.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	if ttlMs < 0 {
		resetAt = time.Now().Add(policy.Window)
	}

	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(policy.Limit),
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Close releases the underlying Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
