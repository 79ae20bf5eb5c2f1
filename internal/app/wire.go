package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/dumpsniper/internal/blob/s3"
	"github.com/alanyoungcy/dumpsniper/internal/cache/redis"
	"github.com/alanyoungcy/dumpsniper/internal/config"
	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/notify"
	"github.com/alanyoungcy/dumpsniper/internal/server/handler"
	"github.com/alanyoungcy/dumpsniper/internal/store/postgres"
)

// Dependencies bundles the optional side outputs around the engine. Every
// field except Notifier and Checks may be nil when its backend is disabled.
type Dependencies struct {
	Journal domain.JournalStore
	Audit   domain.AuditStore

	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	BlobWriter domain.BlobWriter

	Notifier *notify.Notifier
	Checks   map[string]handler.Check
}

// closerStack releases resources in reverse order of acquisition.
type closerStack []func()

func (s *closerStack) push(fn func()) { *s = append(*s, fn) }

func (s closerStack) run() {
	for i := len(s) - 1; i >= 0; i-- {
		s[i]()
	}
}

// Wire connects every enabled backend. On error, whatever was already
// opened is closed before returning.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Checks: make(map[string]handler.Check)}
	var closers closerStack

	steps := []struct {
		name    string
		enabled bool
		fn      func(context.Context, *config.Config, *Dependencies, *closerStack) error
	}{
		{"postgres", cfg.Postgres.Enabled, wirePostgres},
		{"redis", cfg.Redis.Enabled, wireRedis},
		{"s3", cfg.S3.Enabled, wireS3},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := s.fn(ctx, cfg, deps, &closers); err != nil {
			closers.run()
			return nil, nil, fmt.Errorf("wire: %s: %w", s.name, err)
		}
		logger.Info("backend enabled", slog.String("backend", s.name))
	}

	deps.Notifier = buildNotifier(cfg.Notify, deps.RateLimiter, logger)
	return deps, closers.run, nil
}

func wirePostgres(ctx context.Context, cfg *config.Config, deps *Dependencies, closers *closerStack) error {
	pc := cfg.Postgres
	client, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      pc.DSN,
		Host:     pc.Host,
		Port:     pc.Port,
		Database: pc.Database,
		User:     pc.User,
		Password: pc.Password,
		SSLMode:  pc.SSLMode,
		MaxConns: pc.PoolMaxConns,
		MinConns: pc.PoolMinConns,
	})
	if err != nil {
		return err
	}
	closers.push(client.Close)
	if pc.RunMigrations {
		if err := client.RunMigrations(ctx); err != nil {
			return err
		}
	}
	pool := client.Pool()
	deps.Journal = postgres.NewJournalStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)
	deps.Checks["postgres"] = pool.Ping
	return nil
}

func wireRedis(ctx context.Context, cfg *config.Config, deps *Dependencies, closers *closerStack) error {
	rc := cfg.Redis
	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       rc.Addr,
		Password:   rc.Password,
		DB:         rc.DB,
		PoolSize:   rc.PoolSize,
		MaxRetries: rc.MaxRetries,
		TLSEnabled: rc.TLSEnabled,
		Namespace:  rc.Namespace,
	})
	if err != nil {
		return err
	}
	closers.push(func() { _ = client.Close() })

	deps.PriceCache = redis.NewPriceCache(client)
	deps.SignalBus = redis.NewSignalBus(client)
	deps.RateLimiter = redis.NewRateLimiter(client)
	if rc.LockRounds {
		deps.LockManager = redis.NewLockManager(client)
	}
	deps.Checks["redis"] = client.Ping
	return nil
}

func wireS3(ctx context.Context, cfg *config.Config, deps *Dependencies, _ *closerStack) error {
	sc := cfg.S3
	client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       sc.Endpoint,
		Region:         sc.Region,
		Bucket:         sc.Bucket,
		AccessKey:      sc.AccessKey,
		SecretKey:      sc.SecretKey,
		UseSSL:         sc.UseSSL,
		ForcePathStyle: sc.ForcePathStyle,
	})
	if err != nil {
		return err
	}
	deps.BlobWriter = s3blob.NewWriter(client)
	deps.Checks["s3"] = client.Health
	return nil
}

// buildNotifier returns a notifier with whichever senders are configured.
// With none it is a silent no-op.
func buildNotifier(nc config.NotifyConfig, limiter domain.RateLimiter, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if nc.TelegramToken != "" && nc.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(nc.TelegramToken, nc.TelegramChatID))
	}
	if nc.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(nc.DiscordWebhookURL))
	}
	n := notify.NewNotifier(senders, nc.Events, logger)
	if limiter != nil && nc.RateLimit > 0 {
		n.WithRateLimit(limiter, nc.RateLimit, time.Minute)
	}
	return n
}
