package sniper

import (
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/shopspring/decimal"
)

// PriceWindow is a time-ordered buffer of one side's prices, pruned to a
// rolling horizon. It is not safe for concurrent use; the controller owns
// it under its lock.
type PriceWindow struct {
	points []domain.PricePoint
}

// Push appends a sample. Samples are expected in delivery order.
func (w *PriceWindow) Push(p domain.PricePoint) {
	w.points = append(w.points, p)
}

// Prune removes every sample observed before now-horizon.
func (w *PriceWindow) Prune(now time.Time, horizon time.Duration) {
	cutoff := now.Add(-horizon)
	i := 0
	for i < len(w.points) && w.points[i].ObservedAt.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	// Copy down so the backing array does not grow without bound.
	n := copy(w.points, w.points[i:])
	w.points = w.points[:n]
}

// DropFraction prunes the window and returns (oldest-newest)/oldest over
// what remains. ok is false with fewer than two samples.
func (w *PriceWindow) DropFraction(now time.Time, horizon time.Duration) (drop decimal.Decimal, ok bool) {
	w.Prune(now, horizon)
	if len(w.points) < 2 {
		return decimal.Zero, false
	}
	oldest := decimal.NewFromFloat(w.points[0].Price)
	newest := decimal.NewFromFloat(w.points[len(w.points)-1].Price)
	if !oldest.IsPositive() {
		return decimal.Zero, false
	}
	return oldest.Sub(newest).Div(oldest), true
}

// Latest returns the newest sample.
func (w *PriceWindow) Latest() (domain.PricePoint, bool) {
	if len(w.points) == 0 {
		return domain.PricePoint{}, false
	}
	return w.points[len(w.points)-1], true
}

// Len returns the number of retained samples.
func (w *PriceWindow) Len() int { return len(w.points) }

// Reset drops every sample.
func (w *PriceWindow) Reset() {
	w.points = w.points[:0]
}
