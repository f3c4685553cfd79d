package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisCache shares resolved capability sets between instances. Keys embed a
// generation counter so InvalidateAll is a single INCR instead of a scan:
// bumping the generation orphans every old entry, and per-key TTLs reclaim
// the orphans.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache constructs a redis-backed cache. ttl must be positive; it
// bounds both staleness after a missed invalidation and the lifetime of
// entries orphaned by a generation bump.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "havenlist:perms"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *RedisCache) entryKey(ctx context.Context, userID uuid.UUID) (string, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("rbac: redis cache generation: %w", err)
	}
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, userID), nil
}

// Get fetches and decodes one entry.
func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) (CapabilitySet, bool, error) {
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("rbac: redis cache get: %w", err)
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false, fmt.Errorf("rbac: redis cache decode: %w", err)
	}
	return NewCapabilitySet(keys...), true, nil
}

// Put encodes the set and stores it under the current generation.
func (c *RedisCache) Put(ctx context.Context, userID uuid.UUID, set CapabilitySet) error {
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(set.Keys())
	if err != nil {
		return fmt.Errorf("rbac: redis cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("rbac: redis cache put: %w", err)
	}
	return nil
}

// InvalidateUser deletes the user's entry in the current generation.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID uuid.UUID) error {
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("rbac: redis cache invalidate user: %w", err)
	}
	return nil
}

// InvalidateAll advances the generation, orphaning every cached entry.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("rbac: redis cache invalidate all: %w", err)
	}
	return nil
}
