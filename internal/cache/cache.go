package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 10 * time.Minute

// Cache stores normalized upstream responses in Redis as JSON.
// A Cache built with a nil client is disabled: every Get misses and Set is a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache with the given TTL (10 minutes when ttl <= 0).
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether the cache is backed by Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Get decodes the cached value for key into dst.
// Returns false, nil on a cache miss (not an error). An entry that cannot be
// decoded is evicted and reported as an error.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dst); err != nil {
		// Evict the unreadable entry so the next request refills it.
		if delErr := c.Delete(ctx, key); delErr != nil {
			return false, fmt.Errorf("unmarshaling cached value %s: %w (evict: %v)", key, err, delErr)
		}
		return false, fmt.Errorf("unmarshaling cached value %s: %w", key, err)
	}

	return true, nil
}

// Set stores v under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v any) error {
	if !c.Enabled() || v == nil {
		return nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling value for %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	return nil
}

// Delete removes the entry for key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// GeocodeKey returns the key for a location search. The query is trimmed the
// same way the geocoding client trims it; case is preserved.
func GeocodeKey(query string, limit int) string {
	return "geocode:" + strings.TrimSpace(query) + ":" + strconv.Itoa(limit)
}

// CurrentKey returns the key for current conditions at a coordinate.
func CurrentKey(lat, lon float64, units string) string {
	return "current:" + coord(lat) + ":" + coord(lon) + ":" + units
}

// ForecastKey returns the key for a daily forecast at a coordinate.
func ForecastKey(lat, lon float64, days int, units string) string {
	return "forecast:" + coord(lat) + ":" + coord(lon) + ":" + strconv.Itoa(days) + ":" + units
}
