package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, counts it and records the request
// when there is room. Scores are microseconds since the epoch and are passed
// as strings so Lua never reformats them.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = ARGV[1]
	local cutoff = ARGV[2]
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]
	local ttl = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)

	local count = redis.call('ZCARD', key)
	local allowed = 0
	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, ttl)
		count = count + 1
		allowed = 1
	end

	local oldest = tonumber(now)
	local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if first[2] then
		oldest = tonumber(first[2])
	end

	return {allowed, count, oldest}
`)

// RedisLimiter implements a Redis-backed sliding window log
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    Clock
}

// RedisConfig holds configuration for the Redis limiter
type RedisConfig struct {
	// Client is the Redis client to use
	Client *redis.Client
	// Limit is the maximum number of requests allowed in the window
	Limit int
	// Window is the time window for rate limiting
	Window time.Duration
	// Prefix is the key prefix for Redis keys
	Prefix string
	// Clock overrides time.Now
	Clock Clock
}

// NewRedisLimiter creates a new Redis limiter
func NewRedisLimiter(config RedisConfig) (*RedisLimiter, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if config.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}

	now := config.Clock
	if now == nil {
		now = time.Now
	}

	return &RedisLimiter{
		client: config.Client,
		limit:  config.Limit,
		window: config.Window,
		prefix: config.Prefix,
		now:    now,
	}, nil
}

// Allow checks if a request should be allowed for the given key
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	now := r.now()

	result, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		strconv.FormatInt(now.UnixMicro(), 10),
		strconv.FormatInt(now.Add(-r.window).UnixMicro(), 10),
		r.limit,
		uuid.NewString(),
		ttlMillis(r.window),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return nil, errors.New("unexpected redis script result")
	}

	count := int(result[1])
	oldest := time.UnixMicro(result[2])

	return &Info{
		Limit:     r.limit,
		Remaining: remaining(r.limit, count),
		ResetAt:   oldest.Add(r.window),
		Allowed:   result[0] == 1,
	}, nil
}

// Reset removes all rate limit data for the given key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Count returns the number of requests currently in the window for key
func (r *RedisLimiter) Count(ctx context.Context, key string) (int, error) {
	redisKey := r.prefix + key
	windowStart := r.now().Add(-r.window)

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart.UnixMicro(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to get count: %w", err)
	}

	return int(countCmd.Val()), nil
}

// ttlMillis rounds the window up to whole milliseconds for PEXPIRE
func ttlMillis(window time.Duration) int64 {
	ms := window.Milliseconds()
	if time.Duration(ms)*time.Millisecond < window {
		ms++
	}
	return ms
}
