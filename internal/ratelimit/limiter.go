package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding-window admitter backed by Redis sorted sets,
// for deployments that run more than one relay behind a balancer.
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
	limit  func() int
	prefix string
}

// NewRedisLimiter creates a Redis-backed admitter. If rdb is nil, all
// checks pass (fail open).
func NewRedisLimiter(rdb *redis.Client, window time.Duration, limit func() int) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit == nil {
		limit = func() int { return DefaultLimit }
	}
	return &RedisLimiter{rdb: rdb, window: window, limit: limit, prefix: "relay:rl:"}
}

// slidingWindowScript atomically removes expired entries, then either adds
// the current request or reports the entry whose expiry frees a slot.
// KEYS[1] = sorted set key
// ARGV[1] = window start (unix micro)
// ARGV[2] = now (unix micro)
// ARGV[3] = limit
// ARGV[4] = TTL seconds for the key
// ARGV[5] = unique member for this request
// Returns: [count, 1=allowed/0=denied, oldest score or 0]
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, ARGV[5])
    redis.call('EXPIRE', key, ttl)
    return {count + 1, 1, 0}
end

local idx = count - limit
local oldest = redis.call('ZRANGE', key, idx, idx, 'WITHSCORES')
redis.call('EXPIRE', key, ttl)
return {count, 0, tonumber(oldest[2])}
`)

func (l *RedisLimiter) Admit(ctx context.Context, identity string, now time.Time) (Decision, error) {
	limit := l.limit()
	if limit <= 0 {
		limit = DefaultLimit
	}
	if l.rdb == nil {
		return Decision{Allowed: true, Limit: limit, Remaining: limit - 1}, nil
	}

	windowStart := now.Add(-l.window).UnixMicro()
	ttlSecs := int64(l.window.Seconds()) + 1
	key := fmt.Sprintf("%s%s", l.prefix, identity)

	result, err := slidingWindowScript.Run(ctx, l.rdb, []string{key},
		windowStart, now.UnixMicro(), limit, ttlSecs, uuid.NewString(),
	).Int64Slice()
	if err != nil || len(result) != 3 {
		// Fail open on Redis errors
		slog.Warn("rate limit check failed, admitting request", "identity", identity, "error", err)
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	count := int(result[0])
	if result[1] == 1 {
		return Decision{Allowed: true, Limit: limit, Remaining: max(limit-count, 0)}, nil
	}

	retryAfter := time.UnixMicro(result[2]).Add(l.window).Sub(now)
	return Decision{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retryAfter}, nil
}
