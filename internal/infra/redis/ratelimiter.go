package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/incident-outbox/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 5
	window                   = time.Second
	minRetryDelay            = 5 * time.Millisecond
)

// reserveScript keeps a sliding window of request timestamps per scope. It
// returns 0 when the request was admitted, otherwise the milliseconds until
// the oldest entry leaves the window.
var reserveScript = goredis.NewScript(`
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) < tonumber(ARGV[1]) then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  redis.call("PEXPIRE", KEYS[1], window)
  return 0
end
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return tonumber(oldest[2]) + window - now
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter shares one collector quota across every process pointed at
// the same Redis, so several devices syncing through one gateway stay inside
// it together.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Wait blocks until the scope has room, sleeping for the delay Redis reports
// rather than polling.
func (r *RedisRateLimiter) Wait(ctx context.Context, scope string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		retryAfter, err := r.reserve(ctx, scope)
		if err != nil {
			return err
		}
		if retryAfter == 0 {
			return nil
		}
		if err := r.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) reserve(ctx context.Context, scope string) (time.Duration, error) {
	if r == nil || r.client == nil {
		return 0, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedScope := strings.ToLower(strings.TrimSpace(scope))
	if normalizedScope == "" {
		return 0, fmt.Errorf("rate limit scope is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := "outbox:ratelimit:" + normalizedScope
	retryMillis, err := reserveScript.Run(ctx, r.client,
		[]string{key},
		r.limitPerSec, r.now().UnixMilli(), window.Milliseconds(), uuid.NewString(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}
	if retryMillis <= 0 {
		return 0, nil
	}

	retryAfter := time.Duration(retryMillis) * time.Millisecond
	if retryAfter < minRetryDelay {
		retryAfter = minRetryDelay
	}
	return retryAfter, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
