package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/aegis/fusion/pkg/config"
)

// ClientName identifies fusion connections in CLIENT LIST
const ClientName = "aegis-fusion"

// pingTimeout bounds the startup connectivity check
const pingTimeout = 3 * time.Second

// Client is the optional Redis connection shared by the ledger cache and the
// API / evaluator rate limiters. A disabled client turns both into no-ops
// (cache always misses, limiter always allows), so Redis is never required.
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New connects when REDIS_ENABLED is set; an unreachable server is an error
// rather than a silent fallback
func New(cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{enabled: false}, nil
	}

	addr := fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		ClientName: ClientName,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}

	return &Client{
		rdb:     rdb,
		enabled: true,
	}, nil
}

// Close releases the connection (no-op when disabled)
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled reports whether cache and limiter calls reach Redis
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis exposes the go-redis client for scripts (rate limiter, conditional cache fills)
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
