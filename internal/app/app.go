// Package app wires the dump sniper together: optional backends (journal,
// price mirror, archive, alerts), the order path for the configured mode,
// the engine itself and its HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/dumpsniper/internal/config"
)

// App runs one engine process. Resources opened by Run are released by
// Close.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	release func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger.With(slog.String("component", "app"))}
}

func (a *App) mode() string {
	return strings.ToLower(strings.TrimSpace(a.cfg.Mode))
}

// Run connects the configured backends and trades until ctx ends. Snipe,
// paper and monitor share one engine; they differ only in the order path.
func (a *App) Run(ctx context.Context) error {
	switch m := a.mode(); m {
	case "snipe", "paper", "monitor":
	default:
		return fmt.Errorf("app: unsupported mode %q", m)
	}
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.mode()),
		slog.String("coin", a.cfg.Polymarket.Coin),
		slog.String("timeframe", a.cfg.Sniper.Timeframe),
		slog.String("feed", a.cfg.Sniper.FeedSource),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.mu.Lock()
	a.release = cleanup
	a.mu.Unlock()

	return a.runEngine(ctx, deps)
}

// Close releases backends opened by Run. Further calls do nothing.
func (a *App) Close() {
	a.mu.Lock()
	release := a.release
	a.release = nil
	a.mu.Unlock()
	if release != nil {
		a.logger.Info("releasing backends")
		release()
	}
}
