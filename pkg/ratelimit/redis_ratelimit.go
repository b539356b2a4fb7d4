package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills by elapsed milliseconds and takes one token.
// Returns {allowed, remaining, ms until the next token}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1])
	local ts = tonumber(state[2])
	if tokens == nil then
		tokens = capacity
		ts = now
	end

	local rate = capacity / window_ms
	local elapsed = math.max(0, now - ts)
	tokens = math.min(capacity, tokens + elapsed * rate)

	local allowed = 0
	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		wait = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
	redis.call('PEXPIRE', key, window_ms * 2)

	return {allowed, math.floor(tokens), wait}
`)

// RedisRateLimiter token bucket shared by every engine instance. limit
// requests are allowed per window, refilled evenly across it.
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, keyPrefix string, limit int, window time.Duration) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		r.limit, r.window.Milliseconds(), r.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit script failed: %w", err)
	}
	if len(res) < 3 {
		return Decision{}, fmt.Errorf("invalid rate limit script result: %v", res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Limit:      r.limit,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}
