package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const (
	DefaultWindow = time.Minute
	keyPrefix     = "ratelimit:"
)

// Limiter is used to enforce per-key rate limits. remaining is -1 and resetAt
// is zero when no limit applies.
type Limiter interface {
	AllowWithDetails(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt time.Time, err error)
}

// NoopLimiter allows all requests.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	return true, -1, time.Time{}, nil
}

// slidingWindow trims expired entries, then admits the request only when it
// fits. Rejected requests are not recorded. Returns {allowed, used, oldest_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local current = redis.call('ZCARD', key)

local allowed = 0
if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window * 2)
	current = current + 1
	allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
return {allowed, current, oldest}
`)

// RateLimiter implements distributed rate limiting using Redis sorted sets.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewRateLimiterWithWindow creates a sliding-window limiter. Zero means DefaultWindow.
func NewRateLimiterWithWindow(client *redis.Client, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{client: client, window: window, now: time.Now}
}

// AllowWithDetails admits one request for key and reports the remaining
// budget and when the oldest request leaves the window.
func (rl *RateLimiter) AllowWithDetails(ctx context.Context, key string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	now := rl.now()
	res, err := slidingWindow.Run(ctx, rl.client, []string{keyPrefix + key},
		now.UnixMilli(), rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, eris.Wrapf(err, "rate limit check failed for %s", key)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, eris.Errorf("unexpected rate limit reply %v", res)
	}

	remaining := limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	resetAt := time.UnixMilli(res[2]).Add(rl.window)
	return res[0] == 1, remaining, resetAt, nil
}
