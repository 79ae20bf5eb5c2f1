package sniper

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// Listeners fans every notification out to each listener in order.
type Listeners []domain.Listener

func (ls Listeners) OnStatus(snap domain.Snapshot) {
	for _, l := range ls {
		l.OnStatus(snap)
	}
}

func (ls Listeners) OnDumpDetected(side string, drop, price float64) {
	for _, l := range ls {
		l.OnDumpDetected(side, drop, price)
	}
}

func (ls Listeners) OnLegFilled(n int, leg domain.Leg) {
	for _, l := range ls {
		l.OnLegFilled(n, leg)
	}
}

func (ls Listeners) OnError(err error) {
	for _, l := range ls {
		l.OnError(err)
	}
}

func (ls Listeners) OnStopped(sessionID string, reason domain.StopReason) {
	for _, l := range ls {
		l.OnStopped(sessionID, reason)
	}
}

// ListenerFuncs adapts optional callbacks to domain.Listener. Nil fields are
// ignored.
type ListenerFuncs struct {
	Status  func(domain.Snapshot)
	Dump    func(side string, drop, price float64)
	Filled  func(n int, leg domain.Leg)
	Error   func(error)
	Stopped func(sessionID string, reason domain.StopReason)
}

func (f ListenerFuncs) OnStatus(snap domain.Snapshot) {
	if f.Status != nil {
		f.Status(snap)
	}
}

func (f ListenerFuncs) OnDumpDetected(side string, drop, price float64) {
	if f.Dump != nil {
		f.Dump(side, drop, price)
	}
}

func (f ListenerFuncs) OnLegFilled(n int, leg domain.Leg) {
	if f.Filled != nil {
		f.Filled(n, leg)
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ListenerFuncs) OnStopped(sessionID string, reason domain.StopReason) {
	if f.Stopped != nil {
		f.Stopped(sessionID, reason)
	}
}

var (
	_ domain.Listener = Listeners(nil)
	_ domain.Listener = ListenerFuncs{}
)

// AsyncListener hands notifications to next on the goroutine running Run,
// so slow sinks such as databases never hold up the engine. Status
// snapshots are dropped when the queue is full; other notifications wait
// for room.
type AsyncListener struct {
	next    domain.Listener
	queue   chan func(domain.Listener)
	dropped atomic.Int64
	logger  *slog.Logger
}

// NewAsyncListener wraps next with a queue of size entries.
func NewAsyncListener(next domain.Listener, size int, logger *slog.Logger) *AsyncListener {
	if size <= 0 {
		size = 256
	}
	return &AsyncListener{
		next:   next,
		queue:  make(chan func(domain.Listener), size),
		logger: logger,
	}
}

func (a *AsyncListener) OnStatus(snap domain.Snapshot) {
	select {
	case a.queue <- func(l domain.Listener) { l.OnStatus(snap) }:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncListener) OnDumpDetected(side string, drop, price float64) {
	a.queue <- func(l domain.Listener) { l.OnDumpDetected(side, drop, price) }
}

func (a *AsyncListener) OnLegFilled(n int, leg domain.Leg) {
	a.queue <- func(l domain.Listener) { l.OnLegFilled(n, leg) }
}

func (a *AsyncListener) OnError(err error) {
	a.queue <- func(l domain.Listener) { l.OnError(err) }
}

func (a *AsyncListener) OnStopped(sessionID string, reason domain.StopReason) {
	a.queue <- func(l domain.Listener) { l.OnStopped(sessionID, reason) }
}

// Dropped returns the number of status snapshots discarded.
func (a *AsyncListener) Dropped() int64 {
	return a.dropped.Load()
}

// Run delivers queued notifications until ctx is cancelled, then delivers
// whatever is still queued.
func (a *AsyncListener) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.queue:
					a.deliver(ev)
				default:
					return nil
				}
			}
		case ev := <-a.queue:
			a.deliver(ev)
		}
	}
}

func (a *AsyncListener) deliver(ev func(domain.Listener)) {
	defer func() {
		if r := recover(); r != nil && a.logger != nil {
			a.logger.Error("listener panicked", slog.Any("panic", r))
		}
	}()
	ev(a.next)
}

var _ domain.Listener = (*AsyncListener)(nil)
