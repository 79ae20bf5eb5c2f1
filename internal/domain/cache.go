package domain

import (
	"context"
	"time"
)

// Shared-state ports. Each is optional: the engine runs without Redis and
// these only widen what other processes can see or coordinate on.

// PriceCache holds the most recent mirrored price per asset, read back by
// GET /api/prices/{asset}. A miss is ErrNotFound.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, at time.Time) error
	GetPrice(ctx context.Context, assetID string) (price float64, at time.Time, err error)
}

// SignalBus moves encoded events between processes. Publish is fire and
// forget; StreamAppend keeps a bounded, replayable log. Subscribe accepts
// glob patterns.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// LockManager grants exclusive, expiring claims such as "this engine
// trades round X". A taken key yields ErrLockHeld.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter reports whether one more hit on key fits in limit per
// trailing window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
