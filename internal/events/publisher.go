// Package events encodes engine notifications as JSON envelopes and puts
// them on a domain.SignalBus.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

type busMessage struct {
	channel string
	payload []byte
	durable bool
}

// Publisher is a domain.Listener that puts engine output on the bus.
// Status snapshots go to domain.ChannelStatus; every other event goes to
// domain.ChannelEvent and is appended to domain.StreamEvents. Publishing
// happens on Run's goroutine so listener calls return immediately.
type Publisher struct {
	bus     domain.SignalBus
	queue   chan busMessage
	dropped atomic.Int64
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	session string
}

// NewPublisher creates a publisher on bus.
func NewPublisher(bus domain.SignalBus, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		queue:  make(chan busMessage, 256),
		now:    time.Now,
		logger: logger.With(slog.String("component", "event_publisher")),
	}
}

func (p *Publisher) OnStatus(snap domain.Snapshot) {
	p.mu.Lock()
	p.session = snap.SessionID
	p.mu.Unlock()
	p.enqueue(domain.ChannelStatus, false, domain.Event{
		Type:      domain.EventStatus,
		SessionID: snap.SessionID,
		At:        snap.At,
		Data:      snap,
	})
}

func (p *Publisher) OnDumpDetected(side string, drop, price float64) {
	p.enqueue(domain.ChannelEvent, true, domain.Event{
		Type:      domain.EventDumpDetected,
		SessionID: p.currentSession(),
		At:        p.now(),
		Data:      domain.DumpData{Side: side, Drop: drop, Price: price},
	})
}

func (p *Publisher) OnLegFilled(n int, leg domain.Leg) {
	p.enqueue(domain.ChannelEvent, true, domain.Event{
		Type:      domain.EventLegFilled,
		SessionID: leg.SessionID,
		At:        p.now(),
		Data:      domain.LegData{Number: n, Leg: leg},
	})
}

func (p *Publisher) OnError(err error) {
	p.enqueue(domain.ChannelEvent, true, domain.Event{
		Type:      domain.EventError,
		SessionID: p.currentSession(),
		At:        p.now(),
		Data:      domain.ErrorData{Message: err.Error()},
	})
}

func (p *Publisher) OnStopped(sessionID string, reason domain.StopReason) {
	p.enqueue(domain.ChannelEvent, true, domain.Event{
		Type:      domain.EventSessionStopped,
		SessionID: sessionID,
		At:        p.now(),
		Data:      domain.StoppedData{Reason: reason},
	})
}

func (p *Publisher) currentSession() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Publisher) enqueue(channel string, durable bool, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("encode event failed", slog.String("type", ev.Type), slog.String("error", err.Error()))
		return
	}
	select {
	case p.queue <- busMessage{channel: channel, payload: payload, durable: durable}:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// left with a short deadline.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return nil
		case m := <-p.queue:
			p.send(ctx, m)
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case m := <-p.queue:
			p.send(ctx, m)
		default:
			return
		}
	}
}

func (p *Publisher) send(ctx context.Context, m busMessage) {
	if err := p.bus.Publish(ctx, m.channel, m.payload); err != nil {
		p.logger.Warn("publish event failed", slog.String("channel", m.channel), slog.String("error", err.Error()))
	}
	if !m.durable {
		return
	}
	if err := p.bus.StreamAppend(ctx, domain.StreamEvents, m.payload); err != nil {
		p.logger.Warn("append event failed", slog.String("error", err.Error()))
	}
}

var _ domain.Listener = (*Publisher)(nil)
