package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client holds the shared Redis connection the guards run on.
type Client struct {
	rdb *redis.Client
}

// NewClient connects using a redis:// URL.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Client{rdb: redis.NewClient(opts)}, nil
}

// Ping verifies the connection is usable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// ReplayGuard returns a message-id dedup guard on this connection.
func (c *Client) ReplayGuard() *ReplayGuard {
	return &ReplayGuard{rdb: c.rdb}
}

// ClickCooldown returns a per-viewer vote throttle on this connection.
func (c *Client) ClickCooldown() *ClickCooldown {
	return &ClickCooldown{rdb: c.rdb}
}
