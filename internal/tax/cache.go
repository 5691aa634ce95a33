package tax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyNamespace prefixes every key the engine writes so a full flush can be
// scoped to the engine's own entries.
const keyNamespace = "tax:"

// Cache wraps Redis JSON helpers for calculation and jurisdiction results.
// A nil Cache (or nil client) disables caching without changing behaviour.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache with the given TTL. A non-positive TTL falls
// back to one hour.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached payload into dst, reporting whether the key
// existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores v as JSON under key with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Clear removes cached entries. A non-empty pattern performs a best-effort
// SCAN over the engine namespace and deletes matches; an empty pattern is
// the guaranteed fallback and flushes the whole namespace. Callers must not
// assume pattern clearing caught every entry.
func (c *Cache) Clear(ctx context.Context, pattern string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	match := keyNamespace + "*"
	if p := strings.TrimSpace(pattern); p != "" && p != "*" {
		match = keyNamespace + "*" + p + "*"
	}

	var removed int64
	iter := c.client.Scan(ctx, 0, match, 256).Iterator()
	batch := make([]string, 0, 256)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 256 {
			n, err := c.client.Del(ctx, batch...).Result()
			removed += n
			if err != nil {
				return removed, fmt.Errorf("delete cache keys: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan cache keys: %w", err)
	}
	if len(batch) > 0 {
		n, err := c.client.Del(ctx, batch...).Result()
		removed += n
		if err != nil {
			return removed, fmt.Errorf("delete cache keys: %w", err)
		}
	}
	return removed, nil
}
