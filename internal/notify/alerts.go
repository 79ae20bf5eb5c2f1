package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// Alerts is a domain.Listener that turns engine events into notifications.
// Status snapshots are ignored. Sending blocks on the network; wrap it in
// a sniper.AsyncListener.
type Alerts struct {
	n       *Notifier
	timeout time.Duration
	logger  *slog.Logger
}

// NewAlerts creates an Alerts listener on n.
func NewAlerts(n *Notifier, logger *slog.Logger) *Alerts {
	return &Alerts{n: n, timeout: 15 * time.Second, logger: logger}
}

func (a *Alerts) OnStatus(domain.Snapshot) {}

func (a *Alerts) OnDumpDetected(side string, drop, price float64) {
	a.send(domain.EventDumpDetected, "Dump detected",
		fmt.Sprintf("side %s dropped %.1f%% to %.4f", short(side), drop*100, price))
}

func (a *Alerts) OnLegFilled(n int, leg domain.Leg) {
	a.send(domain.EventLegFilled, fmt.Sprintf("Leg %d filled", n),
		fmt.Sprintf("%d shares of %s at %.4f (cost $%.2f)\norder %s",
			leg.Shares, short(leg.Side), leg.Price, leg.Cost(), leg.OrderID))
}

func (a *Alerts) OnError(err error) {
	a.send(domain.EventError, "Sniper error", err.Error())
}

func (a *Alerts) OnStopped(sessionID string, reason domain.StopReason) {
	a.send(domain.EventSessionStopped, "Session ended",
		fmt.Sprintf("session %s: %s", sessionID, reason))
}

func (a *Alerts) send(event, title, message string) {
	if !a.n.Enabled(event) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.n.Notify(ctx, event, title, message); err != nil && a.logger != nil {
		a.logger.Warn("alert failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// short trims long token ids for display.
func short(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}

var _ domain.Listener = (*Alerts)(nil)
