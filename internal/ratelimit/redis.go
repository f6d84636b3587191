package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingLogScript prunes, counts and records in one atomic step.
// KEYS[1] log key; ARGV: now (ms), window (ms), limit, member.
// Returns {allowed, count, retryAfterMs}.
const slidingLogScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local retry = window
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
  end
  return {0, count, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, 0}
`

// RedisSlidingWindow is a sliding log limiter shared by every process that
// points at the same Redis. Logs expire with the window, so no sweep is needed.
type RedisSlidingWindow struct {
	cfg     Config
	client  redis.Scripter
	script  *redis.Script
	prefix  string
	nowFunc func() time.Time
}

// NewRedisSlidingWindow creates a Redis-backed limiter on client.
func NewRedisSlidingWindow(client redis.Scripter, cfg Config) (*RedisSlidingWindow, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &RedisSlidingWindow{
		cfg:     cfg.withDefaults(),
		client:  client,
		script:  redis.NewScript(slidingLogScript),
		prefix:  "payme:ratelimit:",
		nowFunc: time.Now,
	}, nil
}

// NewRedisClient parses url and returns a connected client.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Allow runs the sliding log script for key.
func (r *RedisSlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.nowFunc().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	raw, err := r.script.Run(ctx, r.client, []string{r.prefix + key},
		now, r.cfg.Window.Milliseconds(), r.cfg.Requests, member).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", raw)
	}
	allowed, _ := values[0].(int64)
	count, _ := values[1].(int64)
	retryMs, _ := values[2].(int64)

	d := Decision{Allowed: allowed == 1, Limit: r.cfg.Requests}
	if d.Allowed {
		d.Remaining = r.cfg.Requests - int(count)
	} else {
		d.RetryAfter = time.Duration(retryMs) * time.Millisecond
	}
	return d, nil
}
