// Package models defines the core domain models for the provider daemon:
// user accounts, server-side sessions, and the wire types shared with the
// SDK.
//
// All models include appropriate JSON and database struct tags for
// serialization and mapping. Sensitive fields are marked with `json:"-"`
// to prevent accidental exposure in API responses.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account authenticated by email and password.
//
// EmailConfirmedAt is nil until the user consumes their verification link or
// code; the SDK's verification poller watches for it to appear. PasswordHash
// is a bcrypt hash and never leaves the server.
//
// JSON example:
//
//	{
//	  "id": "550e8400-e29b-41d4-a716-446655440000",
//	  "email": "rider@example.com",
//	  "email_confirmed_at": "2024-01-20T14:45:00Z",
//	  "created_at": "2024-01-15T10:30:00Z",
//	  "updated_at": "2024-01-15T10:30:00Z"
//	}
type User struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"` // bcrypt hash, NEVER exposed
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty" db:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	LastLogin        *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// Confirmed reports whether the account's email has been verified.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// Session represents an active server-side session backed by Redis storage.
// Sessions are created after successful password authentication or OTP
// verification and record the device that holds the refresh token.
//
// The RefreshToken field is intentionally excluded from JSON serialization
// to prevent exposure in API responses or logs. Sessions expire in Redis
// together with the refresh token they track.
type Session struct {
	ID           string    `json:"id"`          // Unique session identifier
	UserID       uuid.UUID `json:"user_id"`     // User this session belongs to
	RefreshToken string    `json:"-"`           // JWT refresh token (NEVER exposed in JSON)
	DeviceInfo   string    `json:"device_info"` // Parsed User-Agent summary
	IPAddress    string    `json:"ip_address"`  // Client IP address (IPv4/IPv6)
	CreatedAt    time.Time `json:"created_at"`  // Session creation timestamp
	ExpiresAt    time.Time `json:"expires_at"`  // Session expiration timestamp
}

// SessionInfo is a sanitized version of Session for public API responses.
// It excludes RefreshToken and UserID, making it safe to return from
// session listing endpoints.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"device_info"`
	IPAddress  string    `json:"ip_address"`
	Location   string    `json:"location"` // Resolved from IPAddress, e.g. "Oslo, 🇳🇴 Norway"
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// WireSession is the session payload returned to the SDK: the token pair
// plus the user it authenticates. It mirrors client.Session.
type WireSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}
