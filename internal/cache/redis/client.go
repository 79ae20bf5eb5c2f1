// Package redis backs the engine's side outputs with go-redis/v9: the
// latest-price mirror, the pub/sub bus and event stream, a per-round
// trading lock and a rate limiter for outbound alerts and the API.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace prefixes every key this package writes. Channels and
	// streams are left as given so other processes can subscribe by name.
	Namespace string
}

// Client is a connected go-redis client plus the key namespace shared by
// the stores built on it.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New dials Redis and fails fast when the server does not answer a PING
// within five seconds.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := &Client{rdb: redis.NewClient(opts), ns: cfg.Namespace}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// Ping reports whether the server is reachable. It doubles as the health
// check for /api/health.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// key joins parts under the client namespace.
func (c *Client) key(kind, id string) string {
	if c.ns == "" {
		return kind + ":" + id
	}
	return c.ns + ":" + kind + ":" + id
}
