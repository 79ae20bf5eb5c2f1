// Package config defines the top-level configuration for the dump sniper
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/round"
	"github.com/alanyoungcy/dumpsniper/internal/sniper"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DUMPSNIPER_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Sniper     SniperConfig     `toml:"sniper"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Log        LogConfig        `toml:"log"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials. A raw private_key wins
// over an encrypted key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	APIKey           string `toml:"api_key"`
	APISecret        string `toml:"api_secret"`
	APIPassphrase    string `toml:"api_passphrase"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	ChainID   int    `toml:"chain_id"`
	Exchange  string `toml:"exchange"` // order verifying contract; empty for CTFExchange
	Coin      string `toml:"coin"`     // up/down market family, e.g. "btc"
}

// SniperConfig holds the engine parameters plus the process-level knobs
// around it.
type SniperConfig struct {
	StakePerLeg   float64  `toml:"stake_per_leg"`
	CostCeiling   float64  `toml:"cost_ceiling"`
	DropThreshold float64  `toml:"drop_threshold"`
	EntryWindow   duration `toml:"entry_window"`
	DumpHorizon   duration `toml:"dump_horizon"`
	AutoRepeat    bool     `toml:"auto_repeat"`
	MinShares     int64    `toml:"min_shares"`
	Timeframe     string   `toml:"timeframe"` // "15m", "1h" or "4h"
	TickInterval  duration `toml:"tick_interval"`
	OrderTimeout  duration `toml:"order_timeout"`

	// AutoStart arms the current round on boot.
	AutoStart bool `toml:"auto_start"`
	// FeedSource is "ws" for a direct market connection or "redis" to
	// follow prices mirrored by another process.
	FeedSource   string   `toml:"feed_source"`
	PaperLatency duration `toml:"paper_latency"`
	// LockGrace extends the per-round Redis lock past the round end.
	LockGrace duration `toml:"lock_grace"`
}

// PostgresConfig holds PostgreSQL connection parameters for the journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	LockRounds bool   `toml:"lock_rounds"`
	// Namespace prefixes price, lock and rate-limit keys.
	Namespace string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per minute per client; 0 disables
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	RateLimit         int      `toml:"rate_limit"` // messages per minute per sender; 0 disables
}

// LogConfig adds a rotating file sink next to stdout.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	eng := sniper.DefaultConfig()
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:   137,
			Coin:      "btc",
		},
		Sniper: SniperConfig{
			StakePerLeg:   eng.StakePerLeg,
			CostCeiling:   eng.CostCeiling,
			DropThreshold: eng.DropThreshold,
			EntryWindow:   duration{eng.EntryWindow},
			DumpHorizon:   duration{eng.DumpHorizon},
			AutoRepeat:    true,
			MinShares:     eng.MinShares,
			Timeframe:     round.Label(eng.Timeframe),
			TickInterval:  duration{eng.TickInterval},
			OrderTimeout:  duration{eng.OrderTimeout},
			FeedSource:    "ws",
			PaperLatency:  duration{150 * time.Millisecond},
			LockGrace:     duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "dumpsniper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			LockRounds: true,
			Namespace:  "dumpsniper",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "dumpsniper",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Notify: NotifyConfig{
			Events:    []string{domain.EventLegFilled, domain.EventSessionStopped, domain.EventError},
			RateLimit: 20,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"snipe":   true,
	"paper":   true,
	"monitor": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validFeedSources = map[string]bool{
	"ws":    true,
	"redis": true,
}

// Engine converts the [sniper] section into the engine's parameters.
func (c *Config) Engine() (domain.SniperConfig, error) {
	tf, err := round.ParseTimeframe(c.Sniper.Timeframe)
	if err != nil {
		return domain.SniperConfig{}, err
	}
	return domain.SniperConfig{
		StakePerLeg:   c.Sniper.StakePerLeg,
		CostCeiling:   c.Sniper.CostCeiling,
		DropThreshold: c.Sniper.DropThreshold,
		EntryWindow:   c.Sniper.EntryWindow.Duration,
		DumpHorizon:   c.Sniper.DumpHorizon.Duration,
		AutoRepeat:    c.Sniper.AutoRepeat,
		MinShares:     c.Sniper.MinShares,
		Timeframe:     tf,
		TickInterval:  c.Sniper.TickInterval.Duration,
		OrderTimeout:  c.Sniper.OrderTimeout.Duration,
	}, nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: snipe, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Only live sniping signs orders.
	if mode == "snipe" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode snipe")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Polymarket.ClobHost == "" {
			errs = append(errs, "polymarket: clob_host must not be empty")
		}
	}
	ak := c.Wallet.APIKey != ""
	as := c.Wallet.APISecret != ""
	ap := c.Wallet.APIPassphrase != ""
	if (ak || as || ap) && !(ak && as && ap) {
		errs = append(errs, "wallet: api_key, api_secret and api_passphrase must be set together")
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if strings.TrimSpace(c.Polymarket.Coin) == "" {
		errs = append(errs, "polymarket: coin must not be empty")
	}

	// Sniper
	if eng, err := c.Engine(); err != nil {
		errs = append(errs, "sniper: "+err.Error())
	} else if err := sniper.ValidateConfig(eng); err != nil {
		errs = append(errs, err.Error())
	}
	source := strings.ToLower(c.Sniper.FeedSource)
	if !validFeedSources[source] {
		errs = append(errs, fmt.Sprintf("sniper: unknown feed_source %q (valid: ws, redis)", c.Sniper.FeedSource))
	}
	if source == "ws" && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty for feed_source ws")
	}
	if source == "redis" && !c.Redis.Enabled {
		errs = append(errs, "sniper: feed_source redis requires redis.enabled")
	}
	if c.Sniper.PaperLatency.Duration < 0 {
		errs = append(errs, "sniper: paper_latency must not be negative")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if c.Notify.RateLimit < 0 {
		errs = append(errs, "notify: rate_limit must be >= 0")
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		errs = append(errs, "log: max_size_mb must be > 0 when file is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
