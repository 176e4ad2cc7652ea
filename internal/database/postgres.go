// Package database provides the persistence layers of the provider daemon:
// PostgreSQL for accounts and the social tables, Redis for tokens, server
// sessions, one-time codes, and rate limiting.
//
// PostgreSQL access comes in two shapes: typed account operations used by
// the auth services, and a generic filtered row store backing the table
// endpoints the SDK's query builder talks to.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/models"
	"github.com/MasterY0das/BikeForU/pkg/config"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// TxFunc is a function that runs within a database transaction.
type TxFunc func(tx *sql.Tx) error

// PostgresDB wraps a PostgreSQL connection pool with the daemon's account
// operations and the generic row store.
type PostgresDB struct {
	db *sql.DB
}

// NewPostgresDB connects to PostgreSQL with exponential-backoff retry, which
// covers the common case of the database container still starting when the
// daemon comes up.
//
// Example:
//
//	db, err := database.NewPostgresDB(&cfg.Database)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Database connection failed")
//	}
//	defer db.Close()
func NewPostgresDB(cfg *config.DatabaseConfig) (*PostgresDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	retryConfig := utils.DatabaseRetryConfig()
	retryConfig.InitialDelay = 100 * time.Millisecond
	retryConfig.MaxDelay = 3 * time.Second

	var db *sql.DB
	err := utils.Retry(ctx, retryConfig, func() error {
		var err error
		db, err = sql.Open("postgres", cfg.DSN())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open database connection, retrying...")
			return err
		}

		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns / 2)
		db.SetConnMaxLifetime(time.Hour)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()

		if err := db.PingContext(pingCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to ping database, retrying...")
			db.Close()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	log.Info().Msg("Successfully connected to PostgreSQL")
	return &PostgresDB{db: db}, nil
}

// Close releases the connection pool.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping checks if the database connection is alive. Used by the health
// endpoint.
func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrations is the idempotent schema for the daemon. The unique index on
// the unordered (sender, receiver) pair is what makes duplicate friend
// requests impossible even under concurrent inserts; the application-level
// pre-check only exists for friendlier error messages.
const Migrations = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    email_confirmed_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS profiles (
    id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    name VARCHAR(255) NOT NULL DEFAULT '',
    username VARCHAR(64) UNIQUE NOT NULL,
    avatar_url TEXT NOT NULL DEFAULT '',
    interests JSONB NOT NULL DEFAULT '[]',
    colour_theme VARCHAR(32) NOT NULL DEFAULT 'light',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS friend_requests (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    sender_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    receiver_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (sender_id <> receiver_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS friend_requests_pair_idx
    ON friend_requests (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id));

CREATE TABLE IF NOT EXISTS routes (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    sender_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    receiver_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
    title VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    route_id UUID NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
    sender_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
    body TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// RunMigrations applies the schema. Safe to run on every startup.
func (p *PostgresDB) RunMigrations(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations completed successfully")
	return nil
}

const userColumns = "id, email, password_hash, email_confirmed_at, created_at, updated_at, last_login"

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.EmailConfirmedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new unconfirmed account and fills in the
// server-assigned fields (ID, timestamps) on the caller's struct. Returns
// ErrDuplicate when the email is already registered.
func (p *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING ` + userColumns

	created, err := scanUser(p.db.QueryRowContext(ctx, query, user.Email, user.PasswordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	*user = *created

	log.Info().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("User created")
	return nil
}

// GetUserByID retrieves a user by UUID. Returns ErrNotFound when absent.
func (p *PostgresDB) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(p.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email. Returns ErrNotFound when absent.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(p.db.QueryRowContext(ctx, query, email))
}

// ConfirmEmail stamps the confirmation timestamp if it is not already set.
// Idempotent: a second link click is a no-op, not an error.
func (p *PostgresDB) ConfirmEmail(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE users
		SET email_confirmed_at = COALESCE(email_confirmed_at, NOW()), updated_at = NOW()
		WHERE id = $1
	`
	result, err := p.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (p *PostgresDB) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	result, err := p.db.ExecContext(ctx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastLogin records a successful authentication.
func (p *PostgresDB) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`
	if _, err := p.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// WithTransaction executes fn within a transaction, committing on success
// and rolling back on error or panic.
//
// Example:
//
//	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
//	    if _, err := tx.ExecContext(ctx, insertProfile, id, username); err != nil {
//	        return err // automatic rollback
//	    }
//	    return nil // automatic commit
//	})
func (p *PostgresDB) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to rollback transaction after panic")
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
