package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// PriceChannel carries normalized updates mirrored by a process that owns
// the market connection.
const PriceChannel = "ch:prices"

// BusFeed is a domain.PriceFeed that follows updates another process
// publishes on PriceChannel, so several engines can share one market
// connection.
type BusFeed struct {
	bus     domain.SignalBus
	logger  *slog.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewBusFeed creates a BusFeed.
func NewBusFeed(bus domain.SignalBus, logger *slog.Logger) *BusFeed {
	return &BusFeed{
		bus:     bus,
		logger:  logger.With(slog.String("component", "bus_feed")),
		backoff: defaultBackoff,
		now:     time.Now,
	}
}

// Run delivers mirrored updates for assetIDs until ctx ends, subscribing
// again after a fixed backoff whenever the subscription fails or closes.
// The receive time is stamped locally so dump horizons stay on this
// process's clock.
func (f *BusFeed) Run(ctx context.Context, assetIDs []string, onUpdate func(domain.PriceUpdate)) error {
	if len(assetIDs) == 0 {
		return errors.New("feed: no instruments to subscribe")
	}
	want := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		want[id] = struct{}{}
	}
	f.logger.Info("bus feed started", slog.Any("assets", assetIDs))
	defer f.logger.Info("bus feed stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f.follow(ctx, want, onUpdate)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("bus feed lost subscription, resubscribing",
			slog.String("error", errString(err)),
			slog.Duration("backoff", f.backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.backoff):
		}
	}
}

// follow runs one subscription until it fails, closes or ctx ends.
func (f *BusFeed) follow(ctx context.Context, want map[string]struct{}, onUpdate func(domain.PriceUpdate)) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := f.bus.Subscribe(sctx, PriceChannel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return domain.ErrWSDisconnect
			}
			var u domain.PriceUpdate
			if err := json.Unmarshal(data, &u); err != nil {
				f.logger.Debug("bus feed dropped message",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			u.AssetID = strings.TrimSpace(u.AssetID)
			if _, ok := want[u.AssetID]; !ok || u.Price <= 0 || u.Price >= 1 {
				continue
			}
			u.ReceivedAt = f.now()
			onUpdate(u)
		}
	}
}

var _ domain.PriceFeed = (*BusFeed)(nil)
