package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Options wires the controller's collaborators. Only Placer is required.
type Options struct {
	Placer   domain.OrderPlacer
	Feed     domain.PriceFeed     // nil: prices arrive through HandlePrice
	Resolver domain.RoundResolver // nil: auto-repeat reuses the last instruments
	Listener domain.Listener
	Clock    Clock
	Logger   *slog.Logger
	NewID    func() string
}

// Controller runs the dump-then-hedge state machine for one pair of
// instruments at a time. Every mutation happens under mu; order placement
// and listener callbacks run with mu released.
type Controller struct {
	placer   domain.OrderPlacer
	feed     domain.PriceFeed
	resolver domain.RoundResolver
	listener domain.Listener
	clock    Clock
	logger   *slog.Logger
	newID    func() string

	mu         sync.Mutex
	cfg        domain.SniperConfig // applied to the next session
	sess       *session
	running    bool
	runCtx     context.Context
	runCancel  context.CancelFunc
	feedCancel context.CancelFunc
	tick       Timer
	tickGen    uint64
	sched      *RoundScheduler
	stranded   []domain.Leg
	events     []func(domain.Listener)
	delivering bool

	inflight sync.WaitGroup
	feeds    sync.WaitGroup
}

// New creates an idle controller.
func New(cfg domain.SniperConfig, opts Options) (*Controller, error) {
	if opts.Placer == nil {
		return nil, fmt.Errorf("sniper: order placer is required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{
		placer:   opts.Placer,
		feed:     opts.Feed,
		resolver: opts.Resolver,
		listener: opts.Listener,
		clock:    opts.Clock,
		logger:   opts.Logger.With(slog.String("component", "sniper")),
		newID:    opts.NewID,
		cfg:      cfg,
		sched:    NewRoundScheduler(opts.Clock),
	}, nil
}

// Start arms a session on r. It fails with ErrSessionActive while a session
// is trading or a next round is pending. ctx only scopes values; the session
// lives until Stop.
func (c *Controller) Start(ctx context.Context, r domain.Round) error {
	if err := validateRound(r); err != nil {
		return err
	}
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return fmt.Errorf("sniper: start: %w", domain.ErrSessionActive)
	}
	if !c.running {
		c.runCtx, c.runCancel = context.WithCancel(context.WithoutCancel(ctx))
		c.running = true
		c.startTickLocked()
	}
	c.beginLocked(r)
	c.unlockAndDispatch()
	return nil
}

// Stop ends the current session and cancels any pending re-arm. Orders
// already submitted are not cancelled; their results are discarded.
func (c *Controller) Stop(reason domain.StopReason) error {
	if reason == "" {
		reason = domain.StopManual
	}
	c.mu.Lock()
	if !c.stopLocked(reason) {
		c.mu.Unlock()
		return fmt.Errorf("sniper: stop: %w", domain.ErrNoSession)
	}
	c.unlockAndDispatch()
	return nil
}

// UpdateConfig applies p to the configuration used by the next session.
func (c *Controller) UpdateConfig(p domain.ConfigPatch) (domain.SniperConfig, error) {
	c.mu.Lock()
	next := p.Apply(c.cfg)
	if err := ValidateConfig(next); err != nil {
		cur := c.cfg
		c.mu.Unlock()
		return cur, err
	}
	c.cfg = next
	_, pending := c.sched.Pending()
	switch {
	case !next.AutoRepeat && pending:
		c.sched.Cancel()
		c.logger.Info("auto-repeat disabled, next round cancelled")
	case next.AutoRepeat && !pending && c.running && c.sess != nil && c.sess.notified:
		c.scheduleNextLocked(c.sess, c.clock.Now())
	}
	c.unlockAndDispatch()
	return next, nil
}

// Config returns the configuration the next session will use.
func (c *Controller) Config() domain.SniperConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Snapshot returns the current status view.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(c.clock.Now())
}

// HandlePrice feeds one update into the current session.
func (c *Controller) HandlePrice(u domain.PriceUpdate) {
	c.mu.Lock()
	if s := c.sess; s != nil {
		c.handlePriceLocked(s, u)
	}
	c.unlockAndDispatch()
}

// Tick runs time-based transitions at now and publishes a snapshot.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	c.tickLocked(now)
	c.unlockAndDispatch()
}

// Drain blocks until in-flight orders and feed goroutines have returned.
// Call it after Stop.
func (c *Controller) Drain() {
	c.inflight.Wait()
	c.feeds.Wait()
}

func (c *Controller) busyLocked() bool {
	if _, pending := c.sched.Pending(); pending {
		return true
	}
	s := c.sess
	return s != nil && !s.notified
}

func (c *Controller) beginLocked(r domain.Round) {
	s := newSession(c.newID(), r, c.cfg)
	c.sess = s
	c.logger.Info("session armed",
		slog.String("session", s.id),
		slog.String("slug", r.Slug),
		slog.String("asset_a", r.AssetA),
		slog.String("asset_b", r.AssetB),
		slog.Time("start", r.Start),
		slog.Time("end", r.End),
	)

	if c.feed != nil {
		fctx, cancel := context.WithCancel(c.runCtx)
		c.feedCancel = cancel
		ids := []string{r.AssetA, r.AssetB}
		id := s.id
		c.feeds.Add(1)
		go func() {
			defer c.feeds.Done()
			err := c.feed.Run(fctx, ids, func(u domain.PriceUpdate) { c.handleFor(id, u) })
			if err != nil && fctx.Err() == nil {
				c.reportError(id, fmt.Errorf("sniper: feed: %w", err))
			}
		}()
	}

	c.advanceLocked(s, c.clock.Now())
}

// handleFor drops updates from a feed whose session has been replaced.
func (c *Controller) handleFor(sessionID string, u domain.PriceUpdate) {
	c.mu.Lock()
	if s := c.sess; s != nil && s.id == sessionID {
		c.handlePriceLocked(s, u)
	}
	c.unlockAndDispatch()
}

func (c *Controller) reportError(sessionID string, err error) {
	c.mu.Lock()
	if s := c.sess; s != nil && s.id == sessionID {
		c.logger.Error("session error", slog.String("session", sessionID), slog.String("error", err.Error()))
		c.emit(func(l domain.Listener) { l.OnError(err) })
	}
	c.unlockAndDispatch()
}

func (c *Controller) handlePriceLocked(s *session, u domain.PriceUpdate) {
	if s.notified || s.state.Terminal() || s.state == domain.StateIdle {
		return
	}
	w := s.window(u.AssetID)
	if w == nil || u.Price <= 0 || u.Price >= 1 {
		return
	}
	now := u.ReceivedAt
	if now.IsZero() {
		now = c.clock.Now()
	}

	c.advanceLocked(s, now)
	if s != c.sess || s.notified {
		return
	}

	w.Push(domain.PricePoint{Price: u.Price, ObservedAt: now})
	w.Prune(now, s.cfg.DumpHorizon)
	s.setLast(u.AssetID, u.Price)

	switch s.state {
	case domain.StateWatching:
		if s.entryOpened && now.Before(s.entryEnd()) {
			c.evaluateDumpLocked(s, u.AssetID, w, now)
		}
	case domain.StateLeg1Filled:
		c.evaluateHedgeLocked(s, u.AssetID)
	}
}

// advanceLocked applies the transitions that depend only on time.
func (c *Controller) advanceLocked(s *session, now time.Time) {
	switch s.state {
	case domain.StateWatching:
		if !s.entryOpened && !now.Before(s.round.Start) {
			s.windowA.Reset()
			s.windowB.Reset()
			s.entryOpened = true
			c.logger.Info("entry window open",
				slog.String("session", s.id),
				slog.Time("until", s.entryEnd()),
			)
		}
		// A leg-1 order in flight defers expiry until its result is known.
		if !now.Before(s.entryEnd()) && !s.gate.InFlight(1) {
			s.state = domain.StateExpired
			c.finishLocked(s, domain.StopExpired, now)
		}
	case domain.StateLeg1Filled:
		if s.stranded || now.Before(s.round.End) || s.gate.InFlight(2) {
			return
		}
		s.stranded = true
		leg := *s.leg1
		c.stranded = append(c.stranded, leg)
		err := fmt.Errorf("sniper: session %s leg 1 %d x %s @ %v unhedged at round end: %w",
			s.id, leg.Shares, leg.Side, leg.Price, domain.ErrStrandedLeg)
		c.logger.Error("leg stranded",
			slog.String("session", s.id),
			slog.String("side", leg.Side),
			slog.Int64("shares", leg.Shares),
			slog.Float64("price", leg.Price),
		)
		c.emit(func(l domain.Listener) { l.OnError(err) })
		c.finishLocked(s, domain.StopStranded, now)
	}
}

func (c *Controller) evaluateDumpLocked(s *session, side string, w *PriceWindow, now time.Time) {
	if s.gate.InFlight(1) || s.gate.Filled(1) {
		return
	}
	trig, ok := DetectDump(w, now, s.cfg.DumpHorizon, decimal.NewFromFloat(s.cfg.DropThreshold))
	if !ok {
		return
	}
	drop, _ := trig.Drop.Float64()
	c.logger.Info("dump detected",
		slog.String("session", s.id),
		slog.String("side", side),
		slog.Float64("drop", drop),
		slog.Float64("price", trig.Price),
	)
	c.emit(func(l domain.Listener) { l.OnDumpDetected(side, drop, trig.Price) })

	shares, err := SizeShares(s.cfg.StakePerLeg, trig.Price, s.cfg.MinShares)
	if err != nil {
		c.logger.Warn("leg 1 not sized", slog.String("session", s.id), slog.String("error", err.Error()))
		c.emit(func(l domain.Listener) { l.OnError(err) })
		return
	}
	if !s.gate.TryAcquire(1) {
		return
	}
	c.submitLocked(s, 1, side, trig.Price, shares)
}

// evaluateHedgeLocked buys the side opposite leg 1 once the pair fits under
// the cost ceiling. updated is the instrument whose price just changed.
func (c *Controller) evaluateHedgeLocked(s *session, updated string) {
	if s.leg1 == nil {
		c.failLocked(fmt.Errorf("sniper: session %s hedging without leg 1: %w", s.id, domain.ErrInvariant))
		return
	}
	if s.stranded || updated == s.leg1.Side {
		return
	}
	if s.gate.InFlight(2) || s.gate.Filled(2) {
		return
	}
	opp, price := s.opposite(s.leg1.Side)
	if price <= 0 || !ShouldHedge(s.leg1.Price, price, s.cfg.CostCeiling) {
		return
	}
	if !s.gate.TryAcquire(2) {
		return
	}
	c.logger.Info("hedge condition met",
		slog.String("session", s.id),
		slog.Float64("leg1_price", s.leg1.Price),
		slog.Float64("price", price),
	)
	c.submitLocked(s, 2, opp, price, s.leg1.Shares)
}

// submitLocked places the order on its own goroutine. The caller holds the
// gate slot for leg; applyResult releases it.
func (c *Controller) submitLocked(s *session, leg int, assetID string, price float64, shares int64) {
	req := domain.OrderRequest{
		AssetID: assetID,
		Price:   price,
		Shares:  shares,
		Side:    domain.OrderSideBuy,
		Leg:     leg,
		Session: s.id,
	}
	base := context.WithoutCancel(c.runCtx)
	timeout := s.cfg.OrderTimeout
	c.logger.Info("submitting order",
		slog.String("session", s.id),
		slog.Int("leg", leg),
		slog.String("side", assetID),
		slog.Float64("price", price),
		slog.Int64("shares", shares),
	)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(base, timeout)
		res, err := c.placer.Place(ctx, req)
		cancel()
		c.applyResult(req, res, err)
	}()
}

func (c *Controller) applyResult(req domain.OrderRequest, res domain.OrderResult, err error) {
	c.mu.Lock()
	s := c.sess
	if s == nil || s.id != req.Session {
		c.mu.Unlock()
		c.logger.Warn("discarding order result for ended session",
			slog.String("session", req.Session),
			slog.Int("leg", req.Leg),
			slog.Any("error", err),
		)
		return
	}
	s.gate.Release(req.Leg)
	now := c.clock.Now()

	if err != nil {
		c.logger.Warn("order failed",
			slog.String("session", s.id),
			slog.Int("leg", req.Leg),
			slog.String("error", err.Error()),
		)
		oerr := fmt.Errorf("sniper: leg %d order: %w", req.Leg, err)
		c.emit(func(l domain.Listener) { l.OnError(oerr) })
		// Expiry or stranding deferred by this order may now apply.
		c.advanceLocked(s, now)
		c.unlockAndDispatch()
		return
	}

	leg := domain.Leg{
		SessionID: s.id,
		Number:    req.Leg,
		Side:      req.AssetID,
		Price:     req.Price,
		Shares:    req.Shares,
		FilledAt:  now,
		OrderID:   res.OrderID,
	}
	if res.FilledPrice > 0 {
		leg.Price = res.FilledPrice
	}

	switch {
	case req.Leg == 1 && s.state == domain.StateWatching:
		s.gate.MarkFilled(1)
		s.leg1 = &leg
		s.state = domain.StateLeg1Filled
		c.logger.Info("leg 1 filled",
			slog.String("session", s.id),
			slog.String("side", leg.Side),
			slog.Float64("price", leg.Price),
			slog.Int64("shares", leg.Shares),
			slog.String("order_id", leg.OrderID),
		)
		c.emit(func(l domain.Listener) { l.OnLegFilled(1, leg) })
		opp, _ := s.opposite(leg.Side)
		c.evaluateHedgeLocked(s, opp)
		c.advanceLocked(s, now)

	case req.Leg == 2 && s.state == domain.StateLeg1Filled && s.leg1 != nil:
		if leg.Shares != s.leg1.Shares || leg.Side == s.leg1.Side {
			c.failLocked(fmt.Errorf("sniper: session %s leg 2 %d x %s does not pair leg 1 %d x %s: %w",
				s.id, leg.Shares, leg.Side, s.leg1.Shares, s.leg1.Side, domain.ErrInvariant))
			break
		}
		s.gate.MarkFilled(2)
		s.leg2 = &leg
		s.state = domain.StateComplete
		profit, _ := LockedProfit(s.leg1.Price, leg.Price, leg.Shares).Float64()
		c.logger.Info("pair complete",
			slog.String("session", s.id),
			slog.Float64("leg1_price", s.leg1.Price),
			slog.Float64("leg2_price", leg.Price),
			slog.Int64("shares", leg.Shares),
			slog.Float64("profit", profit),
		)
		c.emit(func(l domain.Listener) { l.OnLegFilled(2, leg) })
		c.finishLocked(s, domain.StopComplete, now)

	default:
		c.failLocked(fmt.Errorf("sniper: session %s leg %d filled in state %s: %w",
			s.id, req.Leg, s.state, domain.ErrInvariant))
	}

	if c.sess == s && !s.checkInvariants() {
		c.failLocked(fmt.Errorf("sniper: session %s inconsistent in state %s: %w", s.id, s.state, domain.ErrInvariant))
	}
	c.unlockAndDispatch()
}

// finishLocked closes out s once. The session stays visible until the next
// round begins or Stop is called.
func (c *Controller) finishLocked(s *session, reason domain.StopReason, now time.Time) {
	if s.notified {
		return
	}
	s.notified = true
	s.endedAt = now
	c.closeFeedLocked()
	c.logger.Info("session ended",
		slog.String("session", s.id),
		slog.String("state", string(s.state)),
		slog.String("reason", string(reason)),
	)
	id := s.id
	c.emit(func(l domain.Listener) { l.OnStopped(id, reason) })
	if c.cfg.AutoRepeat {
		c.scheduleNextLocked(s, now)
	}
}

func (c *Controller) scheduleNextLocked(s *session, now time.Time) {
	at := NextStart(s.round.End, now, c.cfg.Timeframe)
	c.armLocked(at, s.round)
}

func (c *Controller) armLocked(at time.Time, prev domain.Round) {
	c.sched.Arm(at, func(gen uint64) { c.rearm(gen, at, prev) })
	c.logger.Info("next round armed", slog.Time("at", at))
}

// rearm runs on the scheduler timer. Resolution may block on the network,
// so it happens with the lock released; a Stop in the meantime bumps the
// scheduler generation and the result is dropped.
func (c *Controller) rearm(gen uint64, at time.Time, prev domain.Round) {
	c.mu.Lock()
	if !c.running || !c.sched.Live(gen) {
		c.mu.Unlock()
		return
	}
	tf := c.cfg.Timeframe
	ctx := c.runCtx
	c.mu.Unlock()

	r, err := c.resolveRound(ctx, at, tf, prev)

	c.mu.Lock()
	if !c.running || !c.sched.Live(gen) {
		c.mu.Unlock()
		return
	}
	c.sched.Clear()
	if err != nil {
		rerr := fmt.Errorf("sniper: resolve round at %s: %w", at.Format(time.RFC3339), err)
		c.logger.Error("round resolution failed", slog.String("error", rerr.Error()))
		c.emit(func(l domain.Listener) { l.OnError(rerr) })
		c.armLocked(at.Add(tf), prev)
		c.unlockAndDispatch()
		return
	}
	c.beginLocked(r)
	c.unlockAndDispatch()
}

func (c *Controller) resolveRound(ctx context.Context, at time.Time, tf time.Duration, prev domain.Round) (domain.Round, error) {
	if c.resolver == nil {
		return domain.Round{
			AssetA: prev.AssetA,
			AssetB: prev.AssetB,
			Start:  at,
			End:    at.Add(tf),
		}, nil
	}
	r, err := c.resolver.Resolve(ctx, at)
	if err != nil {
		return domain.Round{}, err
	}
	if err := validateRound(r); err != nil {
		return domain.Round{}, err
	}
	return r, nil
}

func (c *Controller) failLocked(err error) {
	c.logger.Error("session failed", slog.String("error", err.Error()))
	c.emit(func(l domain.Listener) { l.OnError(err) })
	c.stopLocked(domain.StopFailure)
}

// stopLocked returns false when there was nothing to stop.
func (c *Controller) stopLocked(reason domain.StopReason) bool {
	if !c.running && c.sess == nil {
		return false
	}
	c.closeFeedLocked()
	c.stopTickLocked()
	c.sched.Cancel()
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	if s := c.sess; s != nil && !s.notified {
		s.notified = true
		s.endedAt = c.clock.Now()
		id := s.id
		c.emit(func(l domain.Listener) { l.OnStopped(id, reason) })
	}
	if s := c.sess; s != nil {
		c.logger.Info("stopped",
			slog.String("session", s.id),
			slog.String("state", string(s.state)),
			slog.String("reason", string(reason)),
		)
	}
	c.sess = nil
	c.running = false
	c.stranded = nil
	snap := c.snapshotLocked(c.clock.Now())
	c.emit(func(l domain.Listener) { l.OnStatus(snap) })
	return true
}

func (c *Controller) closeFeedLocked() {
	if c.feedCancel != nil {
		c.feedCancel()
		c.feedCancel = nil
	}
}

func (c *Controller) startTickLocked() {
	c.tickGen++
	gen := c.tickGen
	c.tick = c.clock.AfterFunc(c.cfg.TickInterval, func() { c.onTick(gen) })
}

func (c *Controller) stopTickLocked() {
	c.tickGen++
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
}

func (c *Controller) onTick(gen uint64) {
	c.mu.Lock()
	if gen != c.tickGen || !c.running {
		c.mu.Unlock()
		return
	}
	c.tickLocked(c.clock.Now())
	if gen == c.tickGen && c.running {
		c.tick = c.clock.AfterFunc(c.cfg.TickInterval, func() { c.onTick(gen) })
	}
	c.unlockAndDispatch()
}

func (c *Controller) tickLocked(now time.Time) {
	if s := c.sess; s != nil {
		c.advanceLocked(s, now)
	}
	snap := c.snapshotLocked(now)
	c.emit(func(l domain.Listener) { l.OnStatus(snap) })
}

func (c *Controller) snapshotLocked(now time.Time) domain.Snapshot {
	at, ok := c.sched.Pending()
	return buildSnapshot(c.sess, c.cfg, c.stranded, at, ok, now)
}

func (c *Controller) emit(ev func(domain.Listener)) {
	if c.listener == nil {
		return
	}
	c.events = append(c.events, ev)
}

// unlockAndDispatch releases mu and then delivers queued notifications, so
// listeners may call back into the controller. One goroutine delivers at a
// time and drains whatever others queued meanwhile, which keeps delivery in
// emission order.
func (c *Controller) unlockAndDispatch() {
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.events) > 0 {
		evs := c.events
		c.events = nil
		c.mu.Unlock()
		for _, ev := range evs {
			c.deliver(ev)
		}
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

func (c *Controller) deliver(ev func(domain.Listener)) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked", slog.Any("panic", r))
		}
	}()
	ev(c.listener)
}
