package sniper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

// AdvanceTo moves the clock to at.
func (c *fakeClock) AdvanceTo(at time.Time) {
	c.Advance(at.Sub(c.Now()))
}

type fakePlacer struct {
	mu       sync.Mutex
	reqs     []domain.OrderRequest
	failures map[int]int // leg -> remaining failures
	release  chan struct{}
	entered  chan domain.OrderRequest
	fill     func(domain.OrderRequest) domain.OrderResult
}

func (p *fakePlacer) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	fail := p.failures[req.Leg] > 0
	if fail {
		p.failures[req.Leg]--
	}
	release, entered, fill := p.release, p.entered, p.fill
	p.mu.Unlock()

	if entered != nil {
		entered <- req
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		}
	}
	if fail {
		return domain.OrderResult{}, domain.ErrOrderRejected
	}
	if fill != nil {
		return fill(req), nil
	}
	return domain.OrderResult{OrderID: "ord-" + req.AssetID, Status: "matched"}, nil
}

func (p *fakePlacer) requests() []domain.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderRequest(nil), p.reqs...)
}

type stopEvent struct {
	session string
	reason  domain.StopReason
}

type recorder struct {
	mu       sync.Mutex
	statuses []domain.Snapshot
	dumps    []string
	fills    []domain.Leg
	errs     []error
	stops    []stopEvent
}

func (r *recorder) OnStatus(s domain.Snapshot) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recorder) OnDumpDetected(side string, drop, price float64) {
	r.mu.Lock()
	r.dumps = append(r.dumps, side)
	r.mu.Unlock()
}

func (r *recorder) OnLegFilled(n int, leg domain.Leg) {
	r.mu.Lock()
	r.fills = append(r.fills, leg)
	r.mu.Unlock()
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder) OnStopped(id string, reason domain.StopReason) {
	r.mu.Lock()
	r.stops = append(r.stops, stopEvent{id, reason})
	r.mu.Unlock()
}

func (r *recorder) stopped() []stopEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stopEvent(nil), r.stops...)
}

func (r *recorder) filled() []domain.Leg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Leg(nil), r.fills...)
}

func (r *recorder) hasError(target error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, err := range r.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func testConfig() domain.SniperConfig {
	return domain.SniperConfig{
		StakePerLeg:   10,
		CostCeiling:   0.95,
		DropThreshold: 0.15,
		EntryWindow:   2 * time.Minute,
		DumpHorizon:   3 * time.Second,
		MinShares:     5,
		Timeframe:     15 * time.Minute,
		TickInterval:  time.Second,
		OrderTimeout:  5 * time.Second,
	}
}

func testRound() domain.Round {
	return domain.Round{AssetA: "up", AssetB: "down", Start: t0, End: t0.Add(15 * time.Minute)}
}

type harness struct {
	ctl    *Controller
	clock  *fakeClock
	placer *fakePlacer
	rec    *recorder
}

func newHarness(t *testing.T, cfg domain.SniperConfig) *harness {
	t.Helper()
	return newFeedHarness(t, cfg, nil)
}

// newFeedHarness is newHarness with feed owned by the controller.
func newFeedHarness(t *testing.T, cfg domain.SniperConfig, feed domain.PriceFeed) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(t0),
		placer: &fakePlacer{failures: map[int]int{}},
		rec:    &recorder{},
	}
	ids := 0
	ctl, err := New(cfg, Options{
		Placer:   h.placer,
		Feed:     feed,
		Listener: h.rec,
		Clock:    h.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewID: func() string {
			ids++
			return "s" + strconv.Itoa(ids)
		},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.ctl = ctl
	t.Cleanup(func() {
		_ = ctl.Stop(domain.StopManual)
		ctl.Drain()
	})
	return h
}

// price delivers an update observed offset after t0 and waits for any
// order it triggered to settle.
func (h *harness) price(asset string, p float64, offset time.Duration) {
	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: asset, Price: p, ReceivedAt: t0.Add(offset)})
	h.ctl.inflight.Wait()
}
