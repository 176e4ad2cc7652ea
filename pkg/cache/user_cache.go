package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/models"
)

// cachedUser is the cache-internal serialization of a user. models.User
// excludes the password hash from JSON so it can never leak through an API
// response, but the cached copy must keep it: the login path compares
// against the hash and may be served entirely from the cache.
type cachedUser struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"password_hash"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

func toCached(u *models.User) *cachedUser {
	return &cachedUser{
		ID:               u.ID,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
		LastLogin:        u.LastLogin,
	}
}

func (c *cachedUser) toUser() *models.User {
	return &models.User{
		ID:               c.ID,
		Email:            c.Email,
		PasswordHash:     c.PasswordHash,
		EmailConfirmedAt: c.EmailConfirmedAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		LastLogin:        c.LastLogin,
	}
}

// UserDatabase defines the user operations the cache decorates. PostgresDB
// satisfies it.
type UserDatabase interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ConfirmEmail(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// UserCache is a caching decorator around the user store. Reads go through
// the cache-aside pattern; writes invalidate by user ID so the next read is
// fresh. Email-keyed entries are left to expire via TTL.
//
// Confirmation polling reads the user on every poll tick, so the cached read
// path matters: keep the TTL short enough that a confirmed flag shows up
// within one poll interval.
type UserCache struct {
	cache *Cache
	db    UserDatabase
	ttl   time.Duration
}

// NewUserCache creates the decorator. The result satisfies the same
// interface as the underlying store, so it can be swapped in wherever a user
// store is needed.
func NewUserCache(cache *Cache, db UserDatabase, ttl time.Duration) *UserCache {
	return &UserCache{
		cache: cache,
		db:    db,
		ttl:   ttl,
	}
}

// GetUserByID retrieves a user with caching.
func (uc *UserCache) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var cached cachedUser
	key := UserKey(id)

	err := uc.cache.GetOrSet(ctx, key, uc.ttl, &cached, func() (interface{}, error) {
		user, err := uc.db.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return toCached(user), nil
	})
	if err != nil {
		return nil, err
	}

	return cached.toUser(), nil
}

// GetUserByEmail retrieves a user by email with caching, and also primes the
// ID-keyed entry for subsequent lookups.
func (uc *UserCache) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var cached cachedUser
	key := UserByEmailKey(email)

	err := uc.cache.GetOrSet(ctx, key, uc.ttl, &cached, func() (interface{}, error) {
		user, err := uc.db.GetUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return toCached(user), nil
	})
	if err != nil {
		return nil, err
	}

	if err := uc.cache.Set(ctx, UserKey(cached.ID), &cached, uc.ttl); err != nil {
		log.Warn().Err(err).Msg("Failed to cache user by ID")
	}

	return cached.toUser(), nil
}

// CreateUser writes through to the database and primes the cache.
func (uc *UserCache) CreateUser(ctx context.Context, user *models.User) error {
	if err := uc.db.CreateUser(ctx, user); err != nil {
		return err
	}

	if err := uc.cacheUser(ctx, user); err != nil {
		log.Warn().Err(err).Msg("Failed to cache newly created user")
	}

	return nil
}

// ConfirmEmail marks the account confirmed and invalidates the cached user
// so the next poll sees the flag.
func (uc *UserCache) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	if err := uc.db.ConfirmEmail(ctx, id); err != nil {
		return err
	}
	return uc.InvalidateUser(ctx, id)
}

// UpdatePassword writes through and invalidates both keyed entries. The
// email-keyed entry matters here: it carries the hash the login path
// compares against, and a stale one would reject the new password.
func (uc *UserCache) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if err := uc.db.UpdatePassword(ctx, id, passwordHash); err != nil {
		return err
	}

	keys := []string{UserKey(id)}
	if user, err := uc.db.GetUserByID(ctx, id); err == nil {
		keys = append(keys, UserByEmailKey(user.Email))
	}
	return uc.cache.Delete(ctx, keys...)
}

// UpdateLastLogin writes through and invalidates.
func (uc *UserCache) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	if err := uc.db.UpdateLastLogin(ctx, id); err != nil {
		return err
	}

	if err := uc.InvalidateUser(ctx, id); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate user cache")
	}

	return nil
}

// InvalidateUser removes the ID-keyed cache entry for a user.
func (uc *UserCache) InvalidateUser(ctx context.Context, id uuid.UUID) error {
	return uc.cache.Delete(ctx, UserKey(id))
}

func (uc *UserCache) cacheUser(ctx context.Context, user *models.User) error {
	cached := toCached(user)
	if err := uc.cache.Set(ctx, UserKey(user.ID), cached, uc.ttl); err != nil {
		return err
	}
	if err := uc.cache.Set(ctx, UserByEmailKey(user.Email), cached, uc.ttl); err != nil {
		log.Warn().Err(err).Msg("Failed to cache user by email")
	}
	return nil
}
