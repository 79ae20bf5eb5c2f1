package sniper

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trigger describes a detected dump on one side.
type Trigger struct {
	Price float64
	Drop  decimal.Decimal
}

// DetectDump reports a dump when the window holds at least two samples
// within horizon and their drop reaches threshold. It is a hard threshold
// with no smoothing.
func DetectDump(w *PriceWindow, now time.Time, horizon time.Duration, threshold decimal.Decimal) (Trigger, bool) {
	drop, ok := w.DropFraction(now, horizon)
	if !ok || drop.LessThan(threshold) {
		return Trigger{}, false
	}
	latest, _ := w.Latest()
	return Trigger{Price: latest.Price, Drop: drop}, true
}
