// Package cache provides a Redis-backed caching layer with JSON
// serialization. It backs the daemon's user read path and the geolocation
// lookups in the sessions list.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache wraps a Redis client with JSON marshaling for arbitrary structs.
type Cache struct {
	client *redis.Client
}

// NewCache creates a cache on top of an existing Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get retrieves a value and unmarshals it into target, which must be a
// pointer. Returns ErrCacheMiss if the key doesn't exist.
//
// Example:
//
//	var user models.User
//	err := c.Get(ctx, cache.UserKey(userID), &user)
//	if err == cache.ErrCacheMiss {
//	    // load from database
//	}
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		log.Error().Err(err).Str("key", key).Msg("Failed to get from cache")
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached data")
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}

// Set stores a value with the given TTL, marshaling it to JSON.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to set cache")
		return fmt.Errorf("cache set error: %w", err)
	}

	return nil
}

// Delete removes one or more keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("Failed to delete from cache")
		return fmt.Errorf("cache delete error: %w", err)
	}

	return nil
}

// DeletePattern removes all keys matching a Redis glob pattern. Uses SCAN
// cursor iteration rather than KEYS, so it is safe on a live instance.
//
// Example:
//
//	c.DeletePattern(ctx, cache.UserAllPattern())
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan error: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache delete error: %w", err)
			}
			deletedCount += len(keys)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	log.Debug().Str("pattern", pattern).Int("count", deletedCount).Msg("Deleted keys by pattern")
	return nil
}

// Exists reports whether a key is present without fetching its value.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// GetOrSet implements the cache-aside pattern: on a miss the loader runs and
// its result is cached. A failed Set is logged but does not fail the call
// since the data is already in hand.
//
// Example:
//
//	var user models.User
//	err := c.GetOrSet(ctx, cache.UserKey(userID), 15*time.Minute, &user, func() (interface{}, error) {
//	    return db.GetUserByID(ctx, userID)
//	})
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, target interface{}, loader func() (interface{}, error)) error {
	err := c.Get(ctx, key, target)
	if err == nil {
		return nil
	}
	if err != ErrCacheMiss {
		return err
	}

	data, err := loader()
	if err != nil {
		return fmt.Errorf("loader error: %w", err)
	}

	if err := c.Set(ctx, key, data, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to cache loaded data")
	}

	// Round-trip through JSON to populate target with a consistent shape.
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := json.Unmarshal(bytes, target); err != nil {
		return fmt.Errorf("unmarshal error: %w", err)
	}

	return nil
}
