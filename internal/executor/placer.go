// Package executor holds the OrderPlacer implementations wrapped around
// the venue client: a guard that logs and deduplicates submissions, a
// paper placer for dry runs and a disabled placer for monitor mode.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// GuardedPlacer wraps a venue placer with request logging, an upper bound
// on call duration and rejection of identical concurrent submissions.
type GuardedPlacer struct {
	next       domain.OrderPlacer
	dedup      *Dedup
	maxTimeout time.Duration
	logger     *slog.Logger
}

// NewGuardedPlacer wraps next. maxTimeout caps calls whose context has no
// earlier deadline; zero disables the cap.
func NewGuardedPlacer(next domain.OrderPlacer, maxTimeout time.Duration, logger *slog.Logger) *GuardedPlacer {
	ttl := maxTimeout
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &GuardedPlacer{
		next:       next,
		dedup:      NewDedup(ttl),
		maxTimeout: maxTimeout,
		logger:     logger.With(slog.String("component", "order_placer")),
	}
}

func requestKey(req domain.OrderRequest) string {
	return req.Session + "|" + strconv.Itoa(req.Leg) + "|" + req.AssetID + "|" +
		strconv.FormatFloat(req.Price, 'f', -1, 64) + "|" + strconv.FormatInt(req.Shares, 10)
}

// Place forwards req unless an identical request is already in flight.
func (g *GuardedPlacer) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	key := requestKey(req)
	if !g.dedup.Acquire(key) {
		g.logger.Warn("duplicate order suppressed",
			slog.String("session", req.Session),
			slog.Int("leg", req.Leg),
		)
		return domain.OrderResult{}, fmt.Errorf("executor: leg %d: %w", req.Leg, domain.ErrDuplicateInFlight)
	}
	defer g.dedup.Release(key)

	if g.maxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.maxTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.next.Place(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		g.logger.Warn("order failed",
			slog.String("session", req.Session),
			slog.Int("leg", req.Leg),
			slog.String("asset", req.AssetID),
			slog.Float64("price", req.Price),
			slog.Int64("shares", req.Shares),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return res, err
	}
	if res.PlacedAt.IsZero() {
		res.PlacedAt = time.Now()
	}
	g.logger.Info("order placed",
		slog.String("session", req.Session),
		slog.Int("leg", req.Leg),
		slog.String("order_id", res.OrderID),
		slog.String("status", res.Status),
		slog.Float64("price", req.Price),
		slog.Int64("shares", req.Shares),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

// DisabledPlacer refuses every order.
type DisabledPlacer struct{}

func (DisabledPlacer) Place(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{}, domain.ErrOrdersDisabled
}

var (
	_ domain.OrderPlacer = (*GuardedPlacer)(nil)
	_ domain.OrderPlacer = DisabledPlacer{}
)
