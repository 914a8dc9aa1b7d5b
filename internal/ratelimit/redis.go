package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the authoritative sliding-window limiter used by the
// service. It mirrors the client-side Window but shares state across
// instances through a Redis sorted set.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// NewRedisLimiter creates a limiter with the default chat limits.
func NewRedisLimiter(client *redis.Client, keyPrefix string) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     DefaultLimit,
		window:    DefaultWindow,
	}
}

// The script removes expired entries, counts the window and either admits the
// request or reports when the oldest entry falls out of the window.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return {1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_at = 0
	if oldest and #oldest >= 2 then
		reset_at = tonumber(oldest[2]) + window_ms
	end
	return {0, reset_at}
`)

// Allow checks and records one send for the given sender. When denied it
// returns the instant the window frees up.
func (l *RedisLimiter) Allow(ctx context.Context, senderID string) (bool, time.Time, error) {
	now := time.Now()
	key := l.keyPrefix + senderID

	result, err := slidingWindowScript.Run(ctx, l.client, []string{key},
		now.UnixMilli(), now.Add(-l.window).UnixMilli(), l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("redis script error: %w", err)
	}
	if len(result) != 2 {
		return false, time.Time{}, fmt.Errorf("unexpected redis response length: %d", len(result))
	}

	if result[0] == 1 {
		return true, time.Time{}, nil
	}
	resetAt := now.Add(l.window)
	if result[1] > 0 {
		resetAt = time.UnixMilli(result[1])
	}
	return false, resetAt, nil
}
