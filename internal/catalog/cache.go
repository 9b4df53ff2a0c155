package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoClient is returned by writes on a Cache without a Redis client.
var ErrNoClient = errors.New("catalog: redis client not configured")

// Cache stores JSON documents in Redis. A zero TTL keeps keys until they
// are overwritten.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: max(ttl, 0)}
}

func (c *Cache) ready() bool { return c != nil && c.client != nil }

// GetJSON decodes the document at key into dst and reports whether it
// existed. A cache without a client behaves as empty.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if !c.ready() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON overwrites key with v.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	raw, err := c.encode(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// SetJSONIfAbsent writes v only when key does not exist and reports whether
// it did.
func (c *Cache) SetJSONIfAbsent(ctx context.Context, key string, v any) (bool, error) {
	raw, err := c.encode(v)
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, raw, c.ttl).Result()
}

func (c *Cache) encode(v any) ([]byte, error) {
	if !c.ready() {
		return nil, ErrNoClient
	}
	return json.Marshal(v)
}
