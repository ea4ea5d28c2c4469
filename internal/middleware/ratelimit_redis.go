package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/htetarkarhlaing/wecare-chat-widget/internal/redis"
)

var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// RedisLimiter shares one window per client across mock server replicas.
// Redis failures admit the request.
type RedisLimiter struct {
	client *redisclient.Client
	limit  int
}

func NewRedisLimiter(client *redisclient.Client, limit int) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitPerMin
	}
	return &RedisLimiter{client: client, limit: limit}
}

func (l *RedisLimiter) Allow(ctx context.Context, client string) Decision {
	now := time.Now()
	window := int64(rateLimitWindow.Seconds())

	result, err := rateLimitScript.Run(ctx, l.client.Client, []string{redisclient.RateLimitKey(client)}, now.Unix(), window, l.limit).Int64Slice()
	if err == nil && len(result) != 3 {
		err = fmt.Errorf("unexpected script result %v", result)
	}
	if err != nil {
		log.Warn().Err(err).Str("client", client).Msg("redis rate limit check failed, allowing request")
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - 1, ResetAt: now.Add(rateLimitWindow)}
	}

	return Decision{
		Allowed:   result[0] == 1,
		Limit:     l.limit,
		Remaining: int(result[1]),
		ResetAt:   time.Unix(result[2], 0),
	}
}
