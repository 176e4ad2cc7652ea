package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestCacheSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", testValue{Name: "rider", Count: 3}, time.Minute))

	var got testValue
	require.NoError(t, c.Get(ctx, "key", &got))
	assert.Equal(t, testValue{Name: "rider", Count: 3}, got)
}

func TestCacheGetMiss(t *testing.T) {
	c, _ := newTestCache(t)

	var got testValue
	err := c.Get(context.Background(), "missing", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", testValue{Name: "rider"}, time.Second))
	mr.FastForward(2 * time.Second)

	var got testValue
	assert.ErrorIs(t, c.Get(ctx, "key", &got), ErrCacheMiss)
}

func TestCacheDelete(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", testValue{}, time.Minute))
	require.NoError(t, c.Set(ctx, "b", testValue{}, time.Minute))

	require.NoError(t, c.Delete(ctx, "a", "b"))

	var got testValue
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "b", &got), ErrCacheMiss)

	// Deleting nothing is fine.
	assert.NoError(t, c.Delete(ctx))
}

func TestCacheDeletePattern(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "user:1", testValue{}, time.Minute))
	require.NoError(t, c.Set(ctx, "user:2", testValue{}, time.Minute))
	require.NoError(t, c.Set(ctx, "geo:1", testValue{}, time.Minute))

	require.NoError(t, c.DeletePattern(ctx, "user:*"))

	var got testValue
	assert.ErrorIs(t, c.Get(ctx, "user:1", &got), ErrCacheMiss)
	assert.ErrorIs(t, c.Get(ctx, "user:2", &got), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "geo:1", &got))
}

func TestCacheExists(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, "key", testValue{}, time.Minute))

	exists, err = c.Exists(ctx, "key")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGetOrSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func() (interface{}, error) {
		loads++
		return testValue{Name: "loaded", Count: loads}, nil
	}

	var first testValue
	require.NoError(t, c.GetOrSet(ctx, "key", time.Minute, &first, loader))
	assert.Equal(t, "loaded", first.Name)
	assert.Equal(t, 1, loads)

	// Second call is served from the cache; the loader doesn't run again.
	var second testValue
	require.NoError(t, c.GetOrSet(ctx, "key", time.Minute, &second, loader))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)
}

func TestGetOrSetLoaderError(t *testing.T) {
	c, _ := newTestCache(t)

	sentinel := errors.New("database down")
	var got testValue
	err := c.GetOrSet(context.Background(), "key", time.Minute, &got, func() (interface{}, error) {
		return nil, sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	// Failures are not cached.
	exists, _ := c.Exists(context.Background(), "key")
	assert.False(t, exists)
}
