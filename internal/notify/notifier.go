// Package notify sends operator alerts for engine events to Telegram and
// Discord, filtered by event name and optionally rate limited.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool // empty: everything passes
	limiter domain.RateLimiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewNotifier creates a Notifier forwarding only the named events. An empty
// events list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// WithRateLimit caps deliveries per sender to limit per window.
func (n *Notifier) WithRateLimit(l domain.RateLimiter, limit int, window time.Duration) *Notifier {
	n.limiter = l
	n.limit = limit
	n.window = window
	return n
}

// HasSenders reports whether any channel is configured.
func (n *Notifier) HasSenders() bool {
	return len(n.senders) > 0
}

// Enabled reports whether event would be forwarded.
func (n *Notifier) Enabled(event string) bool {
	return len(n.senders) > 0 && (len(n.events) == 0 || n.events[event])
}

// Notify delivers to all senders when event is enabled. A failing sender
// does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if !n.allow(ctx, s) {
			n.logger.Debug("notification rate limited", slog.String("sender", s.Name()), slog.String("event", event))
			continue
		}
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

func (n *Notifier) allow(ctx context.Context, s Sender) bool {
	if n.limiter == nil || n.limit <= 0 {
		return true
	}
	ok, err := n.limiter.Allow(ctx, "notify:"+s.Name(), n.limit, n.window)
	if err != nil {
		// Alerts still go out when the limiter backend is down.
		return true
	}
	return ok
}
