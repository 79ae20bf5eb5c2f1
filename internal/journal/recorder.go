// Package journal turns engine notifications into journal and audit rows.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/sniper"
)

// Recorder is a domain.Listener writing to a JournalStore and, when set,
// an AuditStore. Calls block on the database; wrap it in a
// sniper.AsyncListener.
type Recorder struct {
	journal domain.JournalStore
	audit   domain.AuditStore
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionTrack
	current  string
}

type sessionTrack struct {
	last domain.Snapshot
	legs [2]*domain.Leg
}

// NewRecorder creates a Recorder. audit may be nil.
func NewRecorder(journal domain.JournalStore, audit domain.AuditStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		journal:  journal,
		audit:    audit,
		timeout:  5 * time.Second,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "journal")),
		sessions: make(map[string]*sessionTrack),
	}
}

func (r *Recorder) track(id string) *sessionTrack {
	t, ok := r.sessions[id]
	if !ok {
		t = &sessionTrack{}
		r.sessions[id] = t
	}
	return t
}

func (r *Recorder) OnStatus(snap domain.Snapshot) {
	if snap.SessionID == "" {
		return
	}
	r.mu.Lock()
	r.current = snap.SessionID
	r.track(snap.SessionID).last = snap
	r.mu.Unlock()
}

func (r *Recorder) OnDumpDetected(side string, drop, price float64) {
	r.auditLog(domain.EventDumpDetected, map[string]any{
		"session_id": r.currentSession(),
		"side":       side,
		"drop":       drop,
		"price":      price,
	})
}

func (r *Recorder) OnLegFilled(n int, leg domain.Leg) {
	if n == 1 || n == 2 {
		r.mu.Lock()
		l := leg
		r.track(leg.SessionID).legs[n-1] = &l
		r.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.journal.RecordLeg(ctx, leg); err != nil {
		r.logger.Error("record leg failed",
			slog.String("session", leg.SessionID),
			slog.Int("leg", n),
			slog.String("error", err.Error()),
		)
	}
	r.auditLog(domain.EventLegFilled, map[string]any{
		"session_id": leg.SessionID,
		"leg":        n,
		"asset_id":   leg.Side,
		"price":      leg.Price,
		"shares":     leg.Shares,
		"order_id":   leg.OrderID,
	})
}

func (r *Recorder) OnError(err error) {
	r.auditLog(domain.EventError, map[string]any{
		"session_id": r.currentSession(),
		"error":      err.Error(),
	})
}

func (r *Recorder) OnStopped(sessionID string, reason domain.StopReason) {
	r.mu.Lock()
	t := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if t == nil {
		t = &sessionTrack{}
	}

	rec := sessionRecord(sessionID, reason, t, r.now())
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.journal.RecordSession(ctx, rec); err != nil {
		r.logger.Error("record session failed",
			slog.String("session", sessionID),
			slog.String("error", err.Error()),
		)
	}
	r.auditLog(domain.EventSessionStopped, map[string]any{
		"session_id": sessionID,
		"reason":     string(reason),
		"profit":     rec.Profit,
	})
}

// sessionRecord builds the journal row from the last snapshot seen and the
// fills reported since. Profit is only booked for a completed pair.
func sessionRecord(id string, reason domain.StopReason, t *sessionTrack, endedAt time.Time) domain.SessionRecord {
	rec := domain.SessionRecord{
		ID:         id,
		Slug:       t.last.Slug,
		AssetA:     t.last.AssetA,
		AssetB:     t.last.AssetB,
		RoundStart: t.last.RoundStart,
		RoundEnd:   t.last.RoundEnd,
		Reason:     reason,
		Config:     t.last.Config,
		EndedAt:    endedAt,
	}
	if l1, l2 := t.legs[0], t.legs[1]; l1 != nil && l2 != nil {
		rec.Profit, _ = sniper.LockedProfit(l1.Price, l2.Price, l1.Shares).Float64()
	}
	return rec
}

func (r *Recorder) currentSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Recorder) auditLog(event string, detail map[string]any) {
	if r.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.audit.Log(ctx, event, detail); err != nil {
		r.logger.Warn("audit failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

var _ domain.Listener = (*Recorder)(nil)
