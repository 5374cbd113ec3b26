package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// Connect parses redisURL, creates a client, and verifies connectivity with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", opts.Addr, err)
	}

	return client, nil
}

// Open returns a Cache for redisURL, or a disabled Cache when redisURL is empty.
// The returned close func releases the Redis client, if any.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Cache, func() error, error) {
	if redisURL == "" {
		return NewCache(nil, ttl), func() error { return nil }, nil
	}

	client, err := Connect(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	return NewCache(client, ttl), client.Close, nil
}
