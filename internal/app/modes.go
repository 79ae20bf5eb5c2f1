package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/dumpsniper/internal/blob/s3"
	"github.com/alanyoungcy/dumpsniper/internal/cache/redis"
	"github.com/alanyoungcy/dumpsniper/internal/crypto"
	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/events"
	"github.com/alanyoungcy/dumpsniper/internal/executor"
	"github.com/alanyoungcy/dumpsniper/internal/feed"
	"github.com/alanyoungcy/dumpsniper/internal/journal"
	"github.com/alanyoungcy/dumpsniper/internal/notify"
	"github.com/alanyoungcy/dumpsniper/internal/platform/polymarket"
	"github.com/alanyoungcy/dumpsniper/internal/round"
	"github.com/alanyoungcy/dumpsniper/internal/server"
	"github.com/alanyoungcy/dumpsniper/internal/server/handler"
	"github.com/alanyoungcy/dumpsniper/internal/server/ws"
	"github.com/alanyoungcy/dumpsniper/internal/sniper"
)

const sinkQueueSize = 256

// buildPlacer picks the order path for the mode: signed CLOB orders when
// sniping, simulated fills on paper, and refusal when monitoring.
func (a *App) buildPlacer(eng domain.SniperConfig) (domain.OrderPlacer, error) {
	switch a.mode() {
	case "snipe":
		key, err := crypto.KeySource{
			RawKey:   a.cfg.Wallet.PrivateKey,
			KeyFile:  a.cfg.Wallet.EncryptedKeyPath,
			Password: a.cfg.Wallet.KeyPassword,
		}.Resolve()
		if err != nil {
			return nil, fmt.Errorf("app: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, int64(a.cfg.Polymarket.ChainID), a.cfg.Polymarket.Exchange)
		if err != nil {
			return nil, fmt.Errorf("app: create signer: %w", err)
		}
		var creds *crypto.APICreds
		if a.cfg.Wallet.APIKey != "" {
			creds = &crypto.APICreds{
				Key:        a.cfg.Wallet.APIKey,
				Secret:     a.cfg.Wallet.APISecret,
				Passphrase: a.cfg.Wallet.APIPassphrase,
			}
		}
		a.logger.Info("live order placement enabled", slog.String("address", signer.Address().Hex()))
		clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, creds)
		return executor.NewGuardedPlacer(clob, eng.OrderTimeout, a.logger), nil
	case "paper":
		paper := executor.NewPaperPlacer(a.cfg.Sniper.PaperLatency.Duration)
		return executor.NewGuardedPlacer(paper, eng.OrderTimeout, a.logger), nil
	default:
		return executor.DisabledPlacer{}, nil
	}
}

// buildFeed returns the price source for the engine. tap, when set, sees
// every update before the engine does.
func (a *App) buildFeed(deps *Dependencies, tap func(domain.PriceUpdate)) domain.PriceFeed {
	if strings.EqualFold(a.cfg.Sniper.FeedSource, "redis") && deps.SignalBus != nil {
		var f domain.PriceFeed = feed.NewBusFeed(deps.SignalBus, a.logger)
		if tap != nil {
			f = tappedFeed{next: f, tap: tap}
		}
		return f
	}
	var opts []feed.Option
	if tap != nil {
		opts = append(opts, feed.WithTap(tap))
	}
	return feed.NewConnection(a.cfg.Polymarket.WsHost, a.logger, opts...)
}

// tappedFeed copies every update to tap before delivering it.
type tappedFeed struct {
	next domain.PriceFeed
	tap  func(domain.PriceUpdate)
}

func (f tappedFeed) Run(ctx context.Context, assetIDs []string, onUpdate func(domain.PriceUpdate)) error {
	return f.next.Run(ctx, assetIDs, func(u domain.PriceUpdate) {
		f.tap(u)
		onUpdate(u)
	})
}

func fanTap(taps []func(domain.PriceUpdate)) func(domain.PriceUpdate) {
	switch len(taps) {
	case 0:
		return nil
	case 1:
		return taps[0]
	}
	return func(u domain.PriceUpdate) {
		for _, t := range taps {
			t(u)
		}
	}
}

// runEngine builds the controller and its sinks, serves the API and blocks
// until ctx is cancelled. On shutdown the engine is stopped and drained
// before the sinks so the final events are still delivered.
func (a *App) runEngine(ctx context.Context, deps *Dependencies) error {
	eng, err := a.cfg.Engine()
	if err != nil {
		return fmt.Errorf("app: sniper config: %w", err)
	}
	placer, err := a.buildPlacer(eng)
	if err != nil {
		return err
	}

	sinkCtx, stopSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSinks()
	var sinks errgroup.Group

	// The hub bridges Redis channels to clients, or stands in as the bus.
	hub := ws.NewHub(deps.SignalBus, ws.Config{Mode: a.mode(), StartedAt: time.Now().UTC()}, a.logger)
	sinks.Go(func() error { return hub.Run(sinkCtx) })
	var bus domain.SignalBus = hub
	if deps.SignalBus != nil {
		bus = deps.SignalBus
	}

	publisher := events.NewPublisher(bus, a.logger)
	sinks.Go(func() error { return publisher.Run(sinkCtx) })
	listeners := sniper.Listeners{publisher}

	addAsync := func(l domain.Listener, name string) {
		al := sniper.NewAsyncListener(l, sinkQueueSize, a.logger.With(slog.String("sink", name)))
		sinks.Go(func() error { return al.Run(sinkCtx) })
		listeners = append(listeners, al)
	}
	if deps.Journal != nil {
		addAsync(journal.NewRecorder(deps.Journal, deps.Audit, a.logger), "journal")
	}

	var taps []func(domain.PriceUpdate)
	if deps.BlobWriter != nil {
		archiver := s3blob.NewArchiver(deps.BlobWriter, a.logger)
		addAsync(archiver, "archive")
		taps = append(taps, archiver.Record)
	}
	if deps.Notifier.HasSenders() {
		addAsync(notify.NewAlerts(deps.Notifier, a.logger), "alerts")
	}
	if deps.PriceCache != nil && deps.SignalBus != nil && !strings.EqualFold(a.cfg.Sniper.FeedSource, "redis") {
		mirror := redis.NewPriceMirror(deps.PriceCache, deps.SignalBus, feed.PriceChannel, a.logger)
		sinks.Go(func() error { return mirror.Run(sinkCtx) })
		taps = append(taps, mirror.Record)
	}

	var resolver domain.RoundResolver = polymarket.NewRoundResolver(
		polymarket.NewGammaClient(a.cfg.Polymarket.GammaHost), a.cfg.Polymarket.Coin, eng.Timeframe)
	var locks *RoundLocks
	if deps.LockManager != nil {
		locks = NewRoundLocks(deps.LockManager, a.cfg.Sniper.LockGrace.Duration, a.logger)
		defer locks.Close()
		resolver = lockedResolver{next: resolver, locks: locks}
	}

	ctl, err := sniper.New(eng, sniper.Options{
		Placer:   placer,
		Feed:     a.buildFeed(deps, fanTap(taps)),
		Resolver: resolver,
		Listener: listeners,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("app: create engine: %w", err)
	}
	var control handler.SniperControl = ctl
	if locks != nil {
		control = guardedControl{SniperControl: ctl, locks: locks}
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
		}, server.Handlers{
			Health: handler.NewHealthHandler(a.mode(), deps.Checks, a.logger),
			Sniper: handler.NewSniperHandler(control, resolver, deps.PriceCache, a.logger),
		}, hub, deps.RateLimiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	if a.cfg.Sniper.AutoStart {
		a.autoStart(gctx, ctl, resolver, eng)
	}

	g.Go(func() error {
		<-gctx.Done()
		if err := ctl.Stop(domain.StopManual); err != nil && !errors.Is(err, domain.ErrNoSession) {
			a.logger.Warn("stop engine", slog.String("error", err.Error()))
		}
		ctl.Drain()
		a.logger.Info("engine drained")
		return nil
	})

	err = g.Wait()
	stopSinks()
	if serr := sinks.Wait(); serr != nil && err == nil {
		err = serr
	}
	return err
}

// autoStart arms the round in progress, or the next one when its entry
// window has already closed. Failures are logged; the API can still start
// a session later.
func (a *App) autoStart(ctx context.Context, ctl *sniper.Controller, resolver domain.RoundResolver, eng domain.SniperConfig) {
	at := firstRoundStart(time.Now(), eng)
	r, err := resolver.Resolve(ctx, at)
	if err != nil {
		a.logger.Warn("auto start: resolve round failed", slog.Time("at", at), slog.String("error", err.Error()))
		return
	}
	if err := ctl.Start(ctx, r); err != nil {
		a.logger.Warn("auto start failed", slog.String("slug", r.Slug), slog.String("error", err.Error()))
		return
	}
	a.logger.Info("auto start armed", slog.String("slug", r.Slug), slog.Time("start", r.Start))
}

func firstRoundStart(now time.Time, eng domain.SniperConfig) time.Time {
	start := round.Floor(now, eng.Timeframe)
	if now.Sub(start) >= eng.EntryWindow {
		return round.Next(now, eng.Timeframe)
	}
	return start
}
