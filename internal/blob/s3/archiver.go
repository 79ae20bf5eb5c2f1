package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/sniper"
)

// maxTape bounds the number of buffered price updates.
const maxTape = 200000

// RoundReport is the report.json written for every finished session.
type RoundReport struct {
	SessionID  string              `json:"session_id"`
	Slug       string              `json:"slug,omitempty"`
	AssetA     string              `json:"asset_a"`
	AssetB     string              `json:"asset_b"`
	RoundStart time.Time           `json:"round_start"`
	RoundEnd   time.Time           `json:"round_end"`
	Reason     domain.StopReason   `json:"reason"`
	Leg1       *domain.Leg         `json:"leg1,omitempty"`
	Leg2       *domain.Leg         `json:"leg2,omitempty"`
	Profit     float64             `json:"profit"`
	Dumps      int                 `json:"dumps"`
	Errors     []string            `json:"errors,omitempty"`
	Updates    int                 `json:"updates"`
	Config     domain.SniperConfig `json:"config"`
	EndedAt    time.Time           `json:"ended_at"`
}

// Archiver is a domain.Listener that uploads a report and the price tape
// of every finished session. Record is the feed tap that fills the tape.
// Uploads block; wrap it in a sniper.AsyncListener.
type Archiver struct {
	writer  domain.BlobWriter
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	tape    []domain.PriceUpdate
	current *RoundReport
}

// NewArchiver creates an Archiver writing through w.
func NewArchiver(w domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:  w,
		timeout: 30 * time.Second,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Record appends u to the tape. Oldest entries are discarded past maxTape.
func (a *Archiver) Record(u domain.PriceUpdate) {
	a.mu.Lock()
	if len(a.tape) >= maxTape {
		a.tape = a.tape[len(a.tape)-maxTape+1:]
	}
	a.tape = append(a.tape, u)
	a.mu.Unlock()
}

func (a *Archiver) OnStatus(snap domain.Snapshot) {
	if snap.SessionID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.reportLocked(snap.SessionID)
	r.Slug = snap.Slug
	r.AssetA = snap.AssetA
	r.AssetB = snap.AssetB
	r.RoundStart = snap.RoundStart
	r.RoundEnd = snap.RoundEnd
	r.Config = snap.Config
}

func (a *Archiver) OnDumpDetected(string, float64, float64) {
	a.mu.Lock()
	if a.current != nil {
		a.current.Dumps++
	}
	a.mu.Unlock()
}

func (a *Archiver) OnLegFilled(n int, leg domain.Leg) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.reportLocked(leg.SessionID)
	l := leg
	switch n {
	case 1:
		r.Leg1 = &l
	case 2:
		r.Leg2 = &l
	}
}

func (a *Archiver) OnError(err error) {
	a.mu.Lock()
	if a.current != nil {
		a.current.Errors = append(a.current.Errors, err.Error())
	}
	a.mu.Unlock()
}

func (a *Archiver) OnStopped(sessionID string, reason domain.StopReason) {
	a.mu.Lock()
	r := a.reportLocked(sessionID)
	a.current = nil
	r.Reason = reason
	r.EndedAt = a.now()
	if r.Leg1 != nil && r.Leg2 != nil {
		r.Profit, _ = sniper.LockedProfit(r.Leg1.Price, r.Leg2.Price, r.Leg1.Shares).Float64()
	}
	var tape []domain.PriceUpdate
	tape, a.tape = splitTape(a.tape, r.AssetA, r.AssetB)
	r.Updates = len(tape)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.upload(ctx, r, tape); err != nil {
		a.logger.Error("archive round failed",
			slog.String("session", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}
	a.logger.Info("round archived",
		slog.String("session", sessionID),
		slog.Int("updates", len(tape)),
	)
}

// reportLocked returns the report being built for id, starting a new one
// when the session changed.
func (a *Archiver) reportLocked(id string) *RoundReport {
	if a.current == nil || a.current.SessionID != id {
		a.current = &RoundReport{SessionID: id}
	}
	return a.current
}

// splitTape separates the updates for the given pair from the rest. A
// session that never reported its pair cannot claim any update, so the
// whole tape is dropped rather than carried into the next report.
func splitTape(tape []domain.PriceUpdate, assetA, assetB string) (mine, rest []domain.PriceUpdate) {
	if assetA == "" && assetB == "" {
		return nil, nil
	}
	for _, u := range tape {
		if u.AssetID == assetA || u.AssetID == assetB {
			mine = append(mine, u)
		} else {
			rest = append(rest, u)
		}
	}
	return mine, rest
}

// ReportPath is rounds/{date}/{sessionID}/{name}, dated by round start.
func ReportPath(r *RoundReport, name string) string {
	day := r.RoundStart
	if day.IsZero() {
		day = r.EndedAt
	}
	return fmt.Sprintf("rounds/%s/%s/%s", day.UTC().Format("2006-01-02"), r.SessionID, name)
}

func (a *Archiver) upload(ctx context.Context, r *RoundReport, tape []domain.PriceUpdate) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal report: %w", err)
	}
	if err := a.writer.PutObject(ctx, ReportPath(r, "report.json"), body, "application/json"); err != nil {
		return err
	}
	if len(tape) == 0 {
		return nil
	}

	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		for _, u := range tape {
			if err := enc.Encode(u); err != nil {
				pw.CloseWithError(fmt.Errorf("s3blob: encode tape: %w", err))
				return
			}
		}
		pw.Close()
	}()
	err = a.writer.Upload(ctx, ReportPath(r, "tape.ndjson"), pr, "application/x-ndjson")
	pr.CloseWithError(err)
	return err
}

var _ domain.Listener = (*Archiver)(nil)
