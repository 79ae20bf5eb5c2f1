package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DUMPSNIPER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DUMPSNIPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DUMPSNIPER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DUMPSNIPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DUMPSNIPER_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.APIKey, "DUMPSNIPER_WALLET_API_KEY")
	setStr(&cfg.Wallet.APISecret, "DUMPSNIPER_WALLET_API_SECRET")
	setStr(&cfg.Wallet.APIPassphrase, "DUMPSNIPER_WALLET_API_PASSPHRASE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "DUMPSNIPER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "DUMPSNIPER_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "DUMPSNIPER_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "DUMPSNIPER_POLYMARKET_CHAIN_ID")
	setStr(&cfg.Polymarket.Exchange, "DUMPSNIPER_POLYMARKET_EXCHANGE")
	setStr(&cfg.Polymarket.Coin, "DUMPSNIPER_POLYMARKET_COIN")

	// ── Sniper ──
	setFloat64(&cfg.Sniper.StakePerLeg, "DUMPSNIPER_SNIPER_STAKE_PER_LEG")
	setFloat64(&cfg.Sniper.CostCeiling, "DUMPSNIPER_SNIPER_COST_CEILING")
	setFloat64(&cfg.Sniper.DropThreshold, "DUMPSNIPER_SNIPER_DROP_THRESHOLD")
	setDuration(&cfg.Sniper.EntryWindow, "DUMPSNIPER_SNIPER_ENTRY_WINDOW")
	setDuration(&cfg.Sniper.DumpHorizon, "DUMPSNIPER_SNIPER_DUMP_HORIZON")
	setBool(&cfg.Sniper.AutoRepeat, "DUMPSNIPER_SNIPER_AUTO_REPEAT")
	setInt64(&cfg.Sniper.MinShares, "DUMPSNIPER_SNIPER_MIN_SHARES")
	setStr(&cfg.Sniper.Timeframe, "DUMPSNIPER_SNIPER_TIMEFRAME")
	setDuration(&cfg.Sniper.TickInterval, "DUMPSNIPER_SNIPER_TICK_INTERVAL")
	setDuration(&cfg.Sniper.OrderTimeout, "DUMPSNIPER_SNIPER_ORDER_TIMEOUT")
	setBool(&cfg.Sniper.AutoStart, "DUMPSNIPER_SNIPER_AUTO_START")
	setStr(&cfg.Sniper.FeedSource, "DUMPSNIPER_SNIPER_FEED_SOURCE")
	setDuration(&cfg.Sniper.PaperLatency, "DUMPSNIPER_SNIPER_PAPER_LATENCY")
	setDuration(&cfg.Sniper.LockGrace, "DUMPSNIPER_SNIPER_LOCK_GRACE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DUMPSNIPER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DUMPSNIPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform convention
	setStr(&cfg.Postgres.Host, "DUMPSNIPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DUMPSNIPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DUMPSNIPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DUMPSNIPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DUMPSNIPER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DUMPSNIPER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DUMPSNIPER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DUMPSNIPER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DUMPSNIPER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DUMPSNIPER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DUMPSNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DUMPSNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DUMPSNIPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DUMPSNIPER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DUMPSNIPER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DUMPSNIPER_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.LockRounds, "DUMPSNIPER_REDIS_LOCK_ROUNDS")
	setStr(&cfg.Redis.Namespace, "DUMPSNIPER_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DUMPSNIPER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DUMPSNIPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DUMPSNIPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "DUMPSNIPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DUMPSNIPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DUMPSNIPER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DUMPSNIPER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DUMPSNIPER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DUMPSNIPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DUMPSNIPER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DUMPSNIPER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "DUMPSNIPER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "DUMPSNIPER_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DUMPSNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DUMPSNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DUMPSNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DUMPSNIPER_NOTIFY_EVENTS")
	setInt(&cfg.Notify.RateLimit, "DUMPSNIPER_NOTIFY_RATE_LIMIT")

	// ── Log ──
	setStr(&cfg.Log.File, "DUMPSNIPER_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "DUMPSNIPER_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "DUMPSNIPER_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "DUMPSNIPER_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "DUMPSNIPER_LOG_COMPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "DUMPSNIPER_MODE")
	setStr(&cfg.LogLevel, "DUMPSNIPER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
