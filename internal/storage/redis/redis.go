// Package redis implements the durable transaction cache and log store on Redis.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Key prefixes.
const (
	txPrefix  = "tx:"
	logPrefix = "log:"
)

// Client wraps redis.Client for dependency injection.
type Client struct {
	*redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{Client: c}, nil
}

// Close closes the client.
func (c *Client) Close() error {
	return c.Client.Close()
}

// mget loads the values of keys in chunks. Missing keys are skipped.
func (c *Client) mget(ctx context.Context, keys []string) ([]string, error) {
	const chunk = 500

	values := make([]string, 0, len(keys))
	for start := 0; start < len(keys); start += chunk {
		end := min(start+chunk, len(keys))
		res, err := c.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("mget: %w", err)
		}
		for _, v := range res {
			if s, ok := v.(string); ok {
				values = append(values, s)
			}
		}
	}
	return values, nil
}
