package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/pkg/config"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// RedisDB wraps a Redis client for the daemon's volatile state:
//   - Refresh token storage and rotation
//   - Token blacklisting for revocation
//   - Server-side session tracking with device info
//   - One-time verification and recovery tokens
//   - Rate limiting per IP address
//
// All keys use structured naming patterns for organization and monitoring.
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB creates a Redis connection with the same exponential-backoff
// retry behavior as the Postgres connection.
//
// Example:
//
//	redisDB, err := database.NewRedisDB(&cfg.Redis)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Redis connection failed")
//	}
//	defer redisDB.Close()
func NewRedisDB(cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	err := utils.Retry(ctx, retryConfig, func() error {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to ping Redis, retrying...")
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	log.Info().Msg("Successfully connected to Redis")
	return &RedisDB{client: client}, nil
}

// NewRedisDBFromClient wraps an existing client. Tests use this with
// miniredis.
func NewRedisDBFromClient(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

// Client exposes the underlying Redis client for layers that build on it
// directly, like the cache package.
func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is alive. Used by the health endpoint.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// SetRefreshToken stores a refresh token ID (the JWT's JTI claim) mapped to
// a user ID, expiring with the token itself.
//
// Key pattern: "refresh_token:{tokenID}"
func (r *RedisDB) SetRefreshToken(ctx context.Context, tokenID, userID string, expiry time.Duration) error {
	key := fmt.Sprintf("refresh_token:%s", tokenID)
	if err := r.client.Set(ctx, key, userID, expiry).Err(); err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves the user ID for a refresh token. Returns
// ErrNotFound when the token is unknown or expired, which is how rotation
// detects replay of an already-consumed token.
func (r *RedisDB) GetRefreshToken(ctx context.Context, tokenID string) (string, error) {
	key := fmt.Sprintf("refresh_token:%s", tokenID)
	userID, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get refresh token: %w", err)
	}
	return userID, nil
}

// DeleteRefreshToken removes a refresh token. Called during rotation to
// invalidate the consumed token.
func (r *RedisDB) DeleteRefreshToken(ctx context.Context, tokenID string) error {
	key := fmt.Sprintf("refresh_token:%s", tokenID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// BlacklistToken revokes a token by JTI. The entry expires when the token
// would naturally expire, so the blacklist cannot grow without bound.
//
// Key pattern: "blacklist:{jti}"
func (r *RedisDB) BlacklistToken(ctx context.Context, jti string, expiry time.Duration) error {
	key := fmt.Sprintf("blacklist:%s", jti)
	if err := r.client.Set(ctx, key, "true", expiry).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// IsTokenBlacklisted reports whether a JTI has been revoked. Called on every
// JWT validation.
func (r *RedisDB) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	key := fmt.Sprintf("blacklist:%s", jti)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist: %w", err)
	}
	return exists > 0, nil
}

// SetSession stores session metadata as a hash with automatic expiry.
//
// Key pattern: "session:{userID}:{sessionID}"
func (r *RedisDB) SetSession(ctx context.Context, userID, sessionID, deviceInfo, ipAddress string, expiry time.Duration) error {
	key := fmt.Sprintf("session:%s:%s", userID, sessionID)
	sessionData := map[string]interface{}{
		"device_info": deviceInfo,
		"ip_address":  ipAddress,
		"created_at":  time.Now().Unix(),
	}

	if err := r.client.HSet(ctx, key, sessionData).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	if err := r.client.Expire(ctx, key, expiry).Err(); err != nil {
		return fmt.Errorf("set session expiry: %w", err)
	}
	return nil
}

// GetSession retrieves session metadata. Returns ErrNotFound when the
// session doesn't exist or has expired.
func (r *RedisDB) GetSession(ctx context.Context, userID, sessionID string) (map[string]string, error) {
	key := fmt.Sprintf("session:%s:%s", userID, sessionID)
	result, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// DeleteSession removes a session, logging that device out.
func (r *RedisDB) DeleteSession(ctx context.Context, userID, sessionID string) error {
	key := fmt.Sprintf("session:%s:%s", userID, sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListUserSessions returns all session IDs for a user. Uses SCAN rather
// than KEYS so it never blocks Redis.
func (r *RedisDB) ListUserSessions(ctx context.Context, userID string) ([]string, error) {
	pattern := fmt.Sprintf("session:%s:*", userID)
	prefix := fmt.Sprintf("session:%s:", userID)

	var sessions []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan sessions: %w", err)
		}
		for _, key := range keys {
			if len(key) > len(prefix) {
				sessions = append(sessions, key[len(prefix):])
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return sessions, nil
}

// SetOTPToken stores a one-time verification or recovery token mapped to a
// user ID, expiring after the configured token lifetime.
//
// Key pattern: "otp:{type}:{token}"
func (r *RedisDB) SetOTPToken(ctx context.Context, otpType, token, userID string, expiry time.Duration) error {
	key := fmt.Sprintf("otp:%s:%s", otpType, token)
	if err := r.client.Set(ctx, key, userID, expiry).Err(); err != nil {
		return fmt.Errorf("set otp token: %w", err)
	}
	return nil
}

// ConsumeOTPToken atomically fetches and deletes a one-time token, returning
// the user ID it was issued for. A token can only ever be consumed once;
// unknown or expired tokens return ErrNotFound.
func (r *RedisDB) ConsumeOTPToken(ctx context.Context, otpType, token string) (string, error) {
	key := fmt.Sprintf("otp:%s:%s", otpType, token)
	userID, err := r.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume otp token: %w", err)
	}
	return userID, nil
}

// IncrementRateLimit bumps the fixed-window counter for an IP+endpoint pair
// and returns the count including this request. The window timer starts on
// the first request and the counter resets when it expires.
//
// Key pattern: "ratelimit:{ip}:{endpoint}"
func (r *RedisDB) IncrementRateLimit(ctx context.Context, ip, endpoint string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", ip, endpoint)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("set rate limit expiry: %w", err)
		}
	}
	return count, nil
}

// GetRateLimitCount reads the current counter without incrementing, for the
// X-RateLimit-Remaining response header.
func (r *RedisDB) GetRateLimitCount(ctx context.Context, ip, endpoint string) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", ip, endpoint)
	count, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get rate limit count: %w", err)
	}
	return count, nil
}
