package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// PriceCache keeps the latest mirrored quote per asset in a hash at
// "price:{assetID}" with fields "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	c *Client
}

func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

func (pc *PriceCache) SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error {
	fields := map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.c.rdb.HSet(ctx, pc.c.key("price", assetID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", assetID, err)
	}
	return nil
}

// GetPrice returns domain.ErrNotFound when nothing was mirrored for assetID.
func (pc *PriceCache) GetPrice(ctx context.Context, assetID string) (float64, time.Time, error) {
	vals, err := pc.c.rdb.HGetAll(ctx, pc.c.key("price", assetID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", assetID, err)
	}
	return parsePriceHash(assetID, vals)
}

func parsePriceHash(assetID string, vals map[string]string) (float64, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s: %w", assetID, err)
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", assetID, err)
	}
	return price, time.Unix(0, tsNano).UTC(), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)

// PriceMirror copies normalized feed updates into a PriceCache and onto a
// bus channel. Record never blocks the feed; updates that do not fit in
// the queue are dropped and counted.
type PriceMirror struct {
	cache   domain.PriceCache
	bus     domain.SignalBus
	channel string
	queue   chan domain.PriceUpdate
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewPriceMirror creates a mirror. bus may be nil to skip publishing.
func NewPriceMirror(cache domain.PriceCache, bus domain.SignalBus, channel string, logger *slog.Logger) *PriceMirror {
	return &PriceMirror{
		cache:   cache,
		bus:     bus,
		channel: channel,
		queue:   make(chan domain.PriceUpdate, 1024),
		logger:  logger.With(slog.String("component", "price_mirror")),
	}
}

// Record enqueues u.
func (m *PriceMirror) Record(u domain.PriceUpdate) {
	select {
	case m.queue <- u:
	default:
		m.dropped.Add(1)
	}
}

// Dropped returns how many updates were discarded on a full queue.
func (m *PriceMirror) Dropped() int64 {
	return m.dropped.Load()
}

// Run drains the queue until ctx is cancelled.
func (m *PriceMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-m.queue:
			m.write(ctx, u)
		}
	}
}

func (m *PriceMirror) write(ctx context.Context, u domain.PriceUpdate) {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = u.ReceivedAt
	}
	if err := m.cache.SetPrice(ctx, u.AssetID, u.Price, ts); err != nil {
		m.logger.Debug("mirror price failed", slog.String("asset", u.AssetID), slog.String("error", err.Error()))
	}
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, m.channel, payload); err != nil {
		m.logger.Debug("publish price failed", slog.String("asset", u.AssetID), slog.String("error", err.Error()))
	}
}
