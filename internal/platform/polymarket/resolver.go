package polymarket

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/round"
)

// RoundResolver finds the up/down market of one coin for a slot.
type RoundResolver struct {
	gamma     *GammaClient
	coin      string
	timeframe time.Duration
}

// NewRoundResolver resolves rounds of coin ("btc", "eth", ...) on tf slots.
func NewRoundResolver(gamma *GammaClient, coin string, tf time.Duration) *RoundResolver {
	return &RoundResolver{gamma: gamma, coin: coin, timeframe: tf}
}

// Resolve maps the slot containing at to its two outcome tokens, Up as
// side A. The round ends at the market's endDate when Gamma reports a
// sane one, otherwise one timeframe after the slot start.
func (r *RoundResolver) Resolve(ctx context.Context, at time.Time) (domain.Round, error) {
	start := round.Floor(at, r.timeframe)
	slug := round.Slug(r.coin, r.timeframe, start)

	m, err := r.gamma.MarketBySlug(ctx, slug)
	if err != nil {
		return domain.Round{}, err
	}
	if m.Closed {
		return domain.Round{}, fmt.Errorf("polymarket: %s is closed: %w", slug, domain.ErrInvalidRound)
	}
	tokens := m.TokenIDs()
	if len(tokens) != 2 || tokens[0] == "" || tokens[1] == "" {
		return domain.Round{}, fmt.Errorf("polymarket: %s lists %d outcome tokens: %w", slug, len(tokens), domain.ErrInvalidRound)
	}

	rd := domain.Round{
		Slug:   slug,
		AssetA: tokens[0],
		AssetB: tokens[1],
		Start:  start,
		End:    start.Add(r.timeframe),
	}
	if end, ok := m.End(); ok && end.After(start) {
		rd.End = end
	}
	return rd, nil
}

var _ domain.RoundResolver = (*RoundResolver)(nil)
