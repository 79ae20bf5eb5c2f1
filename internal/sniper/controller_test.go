package sniper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

func startRound(t *testing.T, h *harness) {
	t.Helper()
	if err := h.ctl.Start(context.Background(), testRound()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestDumpThenHedgeCompletes(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)

	h.price("up", 0.50, 0)
	h.price("up", 0.40, 2*time.Second)

	snap := h.ctl.Snapshot()
	if snap.State != domain.StateLeg1Filled {
		t.Fatalf("state got=%s want=%s", snap.State, domain.StateLeg1Filled)
	}
	if snap.Leg1 == nil || snap.Leg1.Side != "up" || snap.Leg1.Price != 0.40 || snap.Leg1.Shares != 25 {
		t.Fatalf("unexpected leg1 %+v", snap.Leg1)
	}

	h.price("down", 0.58, 3*time.Second)
	if got := len(h.placer.requests()); got != 1 {
		t.Fatalf("hedged above the ceiling: %d orders", got)
	}

	h.price("down", 0.54, 4*time.Second)
	reqs := h.placer.requests()
	if len(reqs) != 2 {
		t.Fatalf("orders got=%d want=2", len(reqs))
	}
	if reqs[1].AssetID != "down" || reqs[1].Shares != 25 || reqs[1].Leg != 2 {
		t.Fatalf("unexpected hedge %+v", reqs[1])
	}

	snap = h.ctl.Snapshot()
	if snap.State != domain.StateComplete {
		t.Fatalf("state got=%s want=%s", snap.State, domain.StateComplete)
	}
	if !snap.ProfitRealized || snap.Profit < 1.49 || snap.Profit > 1.51 {
		t.Fatalf("profit got=%v realized=%v want=1.5", snap.Profit, snap.ProfitRealized)
	}
	stops := h.rec.stopped()
	if len(stops) != 1 || stops[0].reason != domain.StopComplete {
		t.Fatalf("stops got=%+v", stops)
	}
	if fills := h.rec.filled(); len(fills) != 2 || fills[0].Side == fills[1].Side {
		t.Fatalf("fills got=%+v", fills)
	}
}

func TestHedgeChecksOppositePriceOnFill(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)

	h.price("down", 0.52, 0)
	h.price("up", 0.50, time.Second)
	h.price("up", 0.40, 2*time.Second)

	if got := h.ctl.Snapshot().State; got != domain.StateComplete {
		t.Fatalf("state got=%s want=%s", got, domain.StateComplete)
	}
}

func TestSizingRejectionStaysWatching(t *testing.T) {
	cfg := testConfig()
	cfg.StakePerLeg = 3
	h := newHarness(t, cfg)
	startRound(t, h)

	h.price("up", 0.95, 0)
	h.price("up", 0.80, time.Second)

	if got := h.ctl.Snapshot().State; got != domain.StateWatching {
		t.Fatalf("state got=%s want=%s", got, domain.StateWatching)
	}
	if len(h.placer.requests()) != 0 {
		t.Fatalf("order placed below minimum size")
	}
	if !h.rec.hasError(domain.ErrBelowMinShares) {
		t.Fatalf("sizing error not reported")
	}
}

func TestPricesBeforeStartDoNotTrigger(t *testing.T) {
	h := newHarness(t, testConfig())
	r := testRound()
	r.Start = t0.Add(time.Minute)
	r.End = r.Start.Add(15 * time.Minute)
	if err := h.ctl.Start(context.Background(), r); err != nil {
		t.Fatalf("start: %v", err)
	}

	h.price("up", 0.50, 58*time.Second)
	h.price("up", 0.40, 59*time.Second)
	if len(h.placer.requests()) != 0 {
		t.Fatalf("dump before round start triggered an order")
	}
	// The first in-window sample starts a fresh window.
	h.price("up", 0.39, 60*time.Second)
	if len(h.placer.requests()) != 0 {
		t.Fatalf("pre-start samples leaked into the entry window")
	}
	if snap := h.ctl.Snapshot(); snap.PriceA != 0.39 {
		t.Fatalf("price a got=%v want=0.39", snap.PriceA)
	}
}

func TestEntryWindowExpiresOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)

	h.price("up", 0.50, 0)
	h.clock.AdvanceTo(t0.Add(2*time.Minute - time.Second))
	if got := h.ctl.Snapshot().State; got != domain.StateWatching {
		t.Fatalf("expired early: %s", got)
	}

	h.clock.AdvanceTo(t0.Add(2 * time.Minute))
	if got := h.ctl.Snapshot().State; got != domain.StateExpired {
		t.Fatalf("state got=%s want=%s", got, domain.StateExpired)
	}
	h.price("up", 0.20, 2*time.Minute+time.Second)
	h.clock.Advance(time.Minute)
	h.ctl.Tick(h.clock.Now())

	stops := h.rec.stopped()
	if len(stops) != 1 || stops[0].reason != domain.StopExpired {
		t.Fatalf("stops got=%+v", stops)
	}
	if len(h.placer.requests()) != 0 {
		t.Fatalf("order placed after expiry")
	}
}

func TestConcurrentDumpsPlaceOneLeg(t *testing.T) {
	h := newHarness(t, testConfig())
	release := make(chan struct{})
	h.placer.release = release
	startRound(t, h)

	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: "up", Price: 0.50, ReceivedAt: t0})
	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: "down", Price: 0.50, ReceivedAt: t0})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			asset := "up"
			if i%2 == 1 {
				asset = "down"
			}
			h.ctl.HandlePrice(domain.PriceUpdate{AssetID: asset, Price: 0.30, ReceivedAt: t0.Add(time.Second)})
		}(i)
	}
	wg.Wait()
	close(release)
	h.ctl.inflight.Wait()

	leg1 := 0
	for _, r := range h.placer.requests() {
		if r.Leg == 1 {
			leg1++
		}
	}
	if leg1 != 1 {
		t.Fatalf("leg 1 submitted %d times, want 1", leg1)
	}
}

func TestFailedOrderRetriesOnNextDump(t *testing.T) {
	h := newHarness(t, testConfig())
	h.placer.failures[1] = 1
	startRound(t, h)

	h.price("up", 0.50, 0)
	h.price("up", 0.40, time.Second)
	if got := h.ctl.Snapshot().State; got != domain.StateWatching {
		t.Fatalf("state after rejection got=%s want=%s", got, domain.StateWatching)
	}
	if !h.rec.hasError(domain.ErrOrderRejected) {
		t.Fatalf("rejection not reported")
	}

	h.price("up", 0.39, 2*time.Second)
	if got := h.ctl.Snapshot().State; got != domain.StateLeg1Filled {
		t.Fatalf("state after retry got=%s want=%s", got, domain.StateLeg1Filled)
	}
	if n := len(h.placer.requests()); n != 2 {
		t.Fatalf("orders got=%d want=2", n)
	}
}

func TestExpiryWaitsForInFlightLeg(t *testing.T) {
	h := newHarness(t, testConfig())
	release := make(chan struct{})
	entered := make(chan domain.OrderRequest, 1)
	h.placer.release = release
	h.placer.entered = entered
	startRound(t, h)

	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: "up", Price: 0.50, ReceivedAt: t0.Add(118 * time.Second)})
	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: "up", Price: 0.40, ReceivedAt: t0.Add(119 * time.Second)})
	<-entered

	h.clock.AdvanceTo(t0.Add(2*time.Minute + 5*time.Second))
	if got := h.ctl.Snapshot().State; got != domain.StateWatching {
		t.Fatalf("expired with leg 1 in flight: %s", got)
	}

	close(release)
	h.ctl.inflight.Wait()
	if got := h.ctl.Snapshot().State; got != domain.StateLeg1Filled {
		t.Fatalf("state got=%s want=%s", got, domain.StateLeg1Filled)
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t, testConfig())
	release := make(chan struct{})
	entered := make(chan domain.OrderRequest, 1)
	h.placer.release = release
	h.placer.entered = entered
	startRound(t, h)

	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: "up", Price: 0.50, ReceivedAt: t0})
	h.ctl.HandlePrice(domain.PriceUpdate{AssetID: "up", Price: 0.40, ReceivedAt: t0.Add(time.Second)})
	<-entered

	if err := h.ctl.Stop(domain.StopManual); err != nil {
		t.Fatalf("stop: %v", err)
	}
	close(release)
	h.ctl.inflight.Wait()

	snap := h.ctl.Snapshot()
	if snap.State != domain.StateIdle || snap.Leg1 != nil {
		t.Fatalf("late fill applied after stop: %+v", snap)
	}
	if len(h.rec.filled()) != 0 {
		t.Fatalf("fill reported after stop")
	}
	stops := h.rec.stopped()
	if len(stops) != 1 || stops[0].reason != domain.StopManual {
		t.Fatalf("stops got=%+v", stops)
	}
	if err := h.ctl.Stop(domain.StopManual); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("second stop err=%v want ErrNoSession", err)
	}
}

func TestStartRejectsActiveSession(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)
	if err := h.ctl.Start(context.Background(), testRound()); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("err=%v want ErrSessionActive", err)
	}

	bad := testRound()
	bad.AssetB = bad.AssetA
	if err := h.ctl.Start(context.Background(), bad); !errors.Is(err, domain.ErrInvalidRound) {
		t.Fatalf("err=%v want ErrInvalidRound", err)
	}
}

func TestStrandedLegSurfaced(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)

	h.price("up", 0.50, 0)
	h.price("down", 0.60, 0)
	h.price("up", 0.40, time.Second)
	h.clock.AdvanceTo(t0.Add(15 * time.Minute))

	snap := h.ctl.Snapshot()
	if snap.State != domain.StateLeg1Filled {
		t.Fatalf("state got=%s want=%s", snap.State, domain.StateLeg1Filled)
	}
	if len(snap.Stranded) != 1 || snap.Stranded[0].Side != "up" {
		t.Fatalf("stranded got=%+v", snap.Stranded)
	}
	if !h.rec.hasError(domain.ErrStrandedLeg) {
		t.Fatalf("stranded leg not reported")
	}
	stops := h.rec.stopped()
	if len(stops) != 1 || stops[0].reason != domain.StopStranded {
		t.Fatalf("stops got=%+v", stops)
	}

	// A late cheap hedge no longer trades.
	h.price("down", 0.10, 15*time.Minute+time.Second)
	if n := len(h.placer.requests()); n != 1 {
		t.Fatalf("orders got=%d want=1", n)
	}
}

func TestAutoRepeatArmsAtBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.AutoRepeat = true
	h := newHarness(t, cfg)
	startRound(t, h)

	h.price("down", 0.54, 0)
	h.price("up", 0.50, 0)
	h.price("up", 0.40, time.Second)

	first := h.ctl.Snapshot()
	if first.State != domain.StateComplete {
		t.Fatalf("state got=%s want=%s", first.State, domain.StateComplete)
	}
	if first.NextRoundAt == nil || !first.NextRoundAt.Equal(t0.Add(15*time.Minute)) {
		t.Fatalf("next round got=%v", first.NextRoundAt)
	}
	if err := h.ctl.Start(context.Background(), testRound()); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("start with pending round err=%v", err)
	}

	h.clock.AdvanceTo(t0.Add(15*time.Minute - time.Second))
	if got := h.ctl.Snapshot().SessionID; got != first.SessionID {
		t.Fatalf("re-armed before the boundary: %s", got)
	}

	h.clock.AdvanceTo(t0.Add(15 * time.Minute))
	next := h.ctl.Snapshot()
	if next.SessionID == first.SessionID || next.State != domain.StateWatching {
		t.Fatalf("no new session at boundary: %+v", next)
	}
	if !next.RoundStart.Equal(t0.Add(15 * time.Minute)) {
		t.Fatalf("new round start got=%s", next.RoundStart)
	}
	if next.Leg1 != nil || next.PriceA != 0 || next.PriceB != 0 {
		t.Fatalf("new session carried state over: %+v", next)
	}
}

func TestConfigPatchAffectsNextRoundOnly(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)

	stake := 20.0
	got, err := h.ctl.UpdateConfig(domain.ConfigPatch{StakePerLeg: &stake})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.StakePerLeg != 20 {
		t.Fatalf("returned stake got=%v", got.StakePerLeg)
	}
	if h.ctl.Snapshot().Config.StakePerLeg != 10 {
		t.Fatalf("running session picked up new stake")
	}

	bad := 1.5
	if _, err := h.ctl.UpdateConfig(domain.ConfigPatch{CostCeiling: &bad}); err == nil {
		t.Fatalf("invalid ceiling accepted")
	}
	if h.ctl.Config().CostCeiling != 0.95 {
		t.Fatalf("invalid patch changed config")
	}
}

func TestTickPublishesStatus(t *testing.T) {
	h := newHarness(t, testConfig())
	startRound(t, h)
	h.clock.Advance(3 * time.Second)

	h.rec.mu.Lock()
	n := len(h.rec.statuses)
	h.rec.mu.Unlock()
	if n != 3 {
		t.Fatalf("status updates got=%d want=3", n)
	}
}

func TestListenerPanicDoesNotWedge(t *testing.T) {
	clock := newFakeClock(t0)
	ctl, err := New(testConfig(), Options{
		Placer:   &fakePlacer{failures: map[int]int{}},
		Listener: ListenerFuncs{Status: func(domain.Snapshot) { panic("boom") }},
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := ctl.Start(context.Background(), testRound()); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(time.Second)
	if err := ctl.Stop(domain.StopManual); err != nil {
		t.Fatalf("stop after panic: %v", err)
	}
}
