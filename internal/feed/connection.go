// Package feed turns the venue's market stream into normalized price
// updates for the sniper.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/platform/polymarket"
)

const (
	defaultBackoff = 2 * time.Second
	dialTimeout    = 15 * time.Second
)

// Stream is one live market connection.
type Stream interface {
	Subscribe(assetIDs []string) error
	Read() ([]byte, error)
	Ping() error
	Close() error
}

// DialFunc opens a Stream.
type DialFunc func(ctx context.Context, url string) (Stream, error)

func dialPolymarket(ctx context.Context, url string) (Stream, error) {
	return polymarket.DialMarket(ctx, url)
}

// Option configures a Connection.
type Option func(*Connection)

// WithDialer replaces the websocket dialer.
func WithDialer(d DialFunc) Option { return func(c *Connection) { c.dial = d } }

// WithBackoff sets the fixed delay between reconnect attempts.
func WithBackoff(d time.Duration) Option { return func(c *Connection) { c.backoff = d } }

// WithPingInterval sets the keep-alive period.
func WithPingInterval(d time.Duration) Option { return func(c *Connection) { c.pingEvery = d } }

// WithTap sees every normalized update before the subscriber does.
func WithTap(f func(domain.PriceUpdate)) Option { return func(c *Connection) { c.tap = f } }

// Connection is a domain.PriceFeed over the Polymarket market channel. It
// reconnects with a fixed backoff until its context ends.
type Connection struct {
	url       string
	dial      DialFunc
	logger    *slog.Logger
	backoff   time.Duration
	pingEvery time.Duration
	tap       func(domain.PriceUpdate)
	now       func() time.Time

	malformed atomic.Int64
	updates   atomic.Int64
}

// NewConnection creates a feed for the market channel at wsURL.
func NewConnection(wsURL string, logger *slog.Logger, opts ...Option) *Connection {
	c := &Connection{
		url:       wsURL,
		dial:      dialPolymarket,
		logger:    logger.With(slog.String("component", "market_feed")),
		backoff:   defaultBackoff,
		pingEvery: polymarket.PingPeriod,
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Malformed returns how many frames failed to parse.
func (c *Connection) Malformed() int64 { return c.malformed.Load() }

// Updates returns how many normalized updates were delivered.
func (c *Connection) Updates() int64 { return c.updates.Load() }

// Run streams updates for assetIDs into onUpdate until ctx is cancelled;
// the owner cancels ctx to end a session, which also prevents any further
// reconnect. Updates are delivered from one goroutine,
// in the order the venue sent them.
func (c *Connection) Run(ctx context.Context, assetIDs []string, onUpdate func(domain.PriceUpdate)) error {
	if len(assetIDs) == 0 {
		return errors.New("feed: no instruments to subscribe")
	}
	want := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		want[id] = struct{}{}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.session(ctx, assetIDs, want, onUpdate)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("market feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", c.backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

func (c *Connection) session(ctx context.Context, assetIDs []string, want map[string]struct{}, onUpdate func(domain.PriceUpdate)) error {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	stream, err := c.dial(dctx, c.url)
	cancel()
	if err != nil {
		return err
	}

	var closeOnce sync.Once
	closeStream := func() { closeOnce.Do(func() { _ = stream.Close() }) }
	defer closeStream()

	if err := stream.Subscribe(assetIDs); err != nil {
		return err
	}
	c.logger.Info("market feed subscribed", slog.Any("assets", assetIDs))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(c.pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				closeStream()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := stream.Ping(); err != nil {
					closeStream()
					return
				}
			}
		}
	}()

	for {
		raw, err := stream.Read()
		if err != nil {
			return err
		}
		ups, err := Normalize(raw, want, c.now())
		if err != nil {
			c.malformed.Add(1)
			c.logger.Debug("dropping malformed frame",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(raw)),
			)
			continue
		}
		for _, u := range ups {
			c.updates.Add(1)
			if c.tap != nil {
				c.tap(u)
			}
			onUpdate(u)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return "stream closed"
	}
	return err.Error()
}

var _ domain.PriceFeed = (*Connection)(nil)
