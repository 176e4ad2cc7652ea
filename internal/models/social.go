package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public face of an account, one-to-one with a User by ID.
// Username is immutable after creation; the table handler rejects attempts
// to change it.
type Profile struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Username    string    `json:"username" db:"username"`
	AvatarURL   string    `json:"avatar_url,omitempty" db:"avatar_url"`
	Interests   []string  `json:"interests" db:"interests"`
	ColourTheme string    `json:"colour_theme" db:"colour_theme"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// FriendRequest is a directed edge between two profiles. The database holds
// a unique index over the unordered (sender, receiver) pair, so at most one
// request can ever exist between two profiles regardless of direction.
// Cancellation deletes the row.
type FriendRequest struct {
	ID         uuid.UUID `json:"id" db:"id"`
	SenderID   uuid.UUID `json:"sender_id" db:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id" db:"receiver_id"`
	Status     string    `json:"status" db:"status"` // pending | accepted | rejected
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Route is a shared ride. ReceiverID is nil for feed-only routes; IsPublic
// routes appear in the public feed regardless of receiver.
type Route struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	SenderID    uuid.UUID  `json:"sender_id" db:"sender_id"`
	ReceiverID  *uuid.UUID `json:"receiver_id,omitempty" db:"receiver_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	DistanceKM  float64    `json:"distance_km" db:"distance_km"`
	IsPublic    bool       `json:"is_public" db:"is_public"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Message is a comment on a shared route.
type Message struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RouteID   uuid.UUID `json:"route_id" db:"route_id"`
	SenderID  uuid.UUID `json:"sender_id" db:"sender_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
