package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

// Client keeps the live board of running games and relays their events.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewClient connects to the Redis server at redisURL.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return Wrap(rdb), nil
}

// Wrap uses an existing connection.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, ttl: defaultTTL, now: time.Now}
}

// WithTTL sets how long a board outlives its game's last update.
func (c *Client) WithTTL(ttl time.Duration) *Client {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
