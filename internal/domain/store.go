package domain

import (
	"context"
	"time"
)

// SessionRecord is the journal row for one finished session.
type SessionRecord struct {
	ID         string
	Slug       string
	AssetA     string
	AssetB     string
	RoundStart time.Time
	RoundEnd   time.Time
	Reason     StopReason
	Profit     float64
	Config     SniperConfig
	EndedAt    time.Time
}

// JournalStore is a write-only record of what the engine did. The engine
// never reads it back.
type JournalStore interface {
	RecordLeg(ctx context.Context, leg Leg) error
	RecordSession(ctx context.Context, rec SessionRecord) error
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
