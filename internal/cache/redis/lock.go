package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// releaseIfOwner deletes KEYS[1] only while it still carries ARGV[1], so a
// lock that expired and was re-taken by another engine is left alone.
var releaseIfOwner = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
    return 0
end
return redis.call('DEL', KEYS[1])
`)

// LockManager hands out expiring exclusive locks, one random owner token
// per acquisition.
type LockManager struct {
	c *Client
}

func NewLockManager(c *Client) *LockManager {
	return &LockManager{c: c}
}

// RoundLockKey names the lock an engine holds while trading r. Resolved
// rounds are keyed by slug; anything else falls back to its assets and
// start time.
func RoundLockKey(r domain.Round) string {
	if r.Slug == "" {
		return fmt.Sprintf("round:%s:%s:%d", r.AssetA, r.AssetB, r.Start.Unix())
	}
	return "round:" + r.Slug
}

// Acquire returns an unlock func, or domain.ErrLockHeld when the key is
// taken. Unlocking twice is harmless.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := lm.c.key("lock", key)
	owner := uuid.NewString()

	won, err := lm.c.rdb.SetNX(ctx, k, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock %s: %w", key, err)
	}
	if !won {
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	var release sync.Once
	return func() {
		release.Do(func() {
			// Runs during shutdown, after the caller's ctx is gone.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseIfOwner.Run(rctx, lm.c.rdb, []string{k}, owner).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
