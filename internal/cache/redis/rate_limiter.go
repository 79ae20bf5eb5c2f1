package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowSrc string

var slidingWindow = redis.NewScript(slidingWindowSrc)

// RateLimiter throttles API callers and outbound alerts. Each key is a
// sorted set of hit timestamps; the Lua script trims, counts and admits in
// one round trip so concurrent callers cannot overshoot the limit.
type RateLimiter struct {
	c   *Client
	now func() time.Time
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{c: c, now: time.Now}
}

// Allow records a hit on key when fewer than limit hits fall inside the
// trailing window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	res, err := slidingWindow.Run(ctx, rl.c.rdb,
		[]string{rl.c.key("ratelimit", key)},
		rl.now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	switch {
	case err != nil:
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	case len(res) != 2:
		return false, fmt.Errorf("redis: rate limit %s: script returned %d values", key, len(res))
	}
	return res[0] == 1, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
