package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/pkg/config"
)

// SetupMiniRedis starts a miniredis instance and returns it with a cleanup
// function.
func SetupMiniRedis(t *testing.T) (*miniredis.Miniredis, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	return mr, func() { mr.Close() }
}

// NewTestRedisDB creates a RedisDB connected to miniredis.
func NewTestRedisDB(t *testing.T, mr *miniredis.Miniredis) *database.RedisDB {
	t.Helper()

	cfg := &config.RedisConfig{
		Host: mr.Host(),
		Port: mr.Port(),
	}

	db, err := database.NewRedisDB(cfg)
	if err != nil {
		t.Fatalf("Failed to create test Redis DB: %v", err)
	}

	return db
}

// NewTestRedisClient creates a bare Redis client connected to miniredis.
func NewTestRedisClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()

	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
