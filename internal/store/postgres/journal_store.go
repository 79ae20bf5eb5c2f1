package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// JournalStore implements domain.JournalStore on sniper_sessions and
// sniper_legs. Writes are idempotent: a replayed leg or session is ignored.
type JournalStore struct {
	db execer
}

func NewJournalStore(db execer) *JournalStore {
	return &JournalStore{db: db}
}

func (s *JournalStore) RecordLeg(ctx context.Context, leg domain.Leg) error {
	const query = `
		INSERT INTO sniper_legs (id, session_id, leg_number, asset_id, price, shares, order_id, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, leg_number) DO NOTHING`
	_, err := s.db.Exec(ctx, query,
		uuid.New(),
		leg.SessionID,
		leg.Number,
		leg.Side,
		decimal.NewFromFloat(leg.Price),
		leg.Shares,
		leg.OrderID,
		leg.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record leg %s/%d: %w", leg.SessionID, leg.Number, err)
	}
	return nil
}

func (s *JournalStore) RecordSession(ctx context.Context, rec domain.SessionRecord) error {
	cfgJSON, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal session config: %w", err)
	}
	const query = `
		INSERT INTO sniper_sessions (id, slug, asset_a, asset_b, round_start, round_end, reason, profit, config, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`
	_, err = s.db.Exec(ctx, query,
		rec.ID,
		rec.Slug,
		rec.AssetA,
		rec.AssetB,
		rec.RoundStart,
		rec.RoundEnd,
		string(rec.Reason),
		decimal.NewFromFloat(rec.Profit).Round(6),
		cfgJSON,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record session %s: %w", rec.ID, err)
	}
	return nil
}

var _ domain.JournalStore = (*JournalStore)(nil)
