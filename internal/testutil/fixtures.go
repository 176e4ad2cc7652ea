// Package testutil provides fixtures, HTTP helpers, a miniredis harness,
// and in-memory stores shared by tests across the project.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/MasterY0das/BikeForU/internal/models"
)

// TestUser creates an unconfirmed user with default values. The password
// hash corresponds to the literal password "secret1" with bcrypt cost 10.
func TestUser() *models.User {
	return &models.User{
		ID:           uuid.New(),
		Email:        "rider@example.com",
		PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// TestUserWithEmail creates a test user with a specific email.
func TestUserWithEmail(email string) *models.User {
	user := TestUser()
	user.Email = email
	return user
}

// ConfirmedUser creates a user whose email is already confirmed.
func ConfirmedUser(email string) *models.User {
	user := TestUserWithEmail(email)
	user.EmailConfirmedAt = TimePtr(time.Now())
	return user
}

// TestProfileRow creates a profiles row keyed to the given user ID, in the
// generic row shape the table store traffics in.
func TestProfileRow(id uuid.UUID, username string) map[string]any {
	return map[string]any{
		"id":           id.String(),
		"name":         "Test Rider",
		"username":     username,
		"avatar_url":   "",
		"interests":    []any{"trail", "gravel"},
		"colour_theme": "default",
		"created_at":   time.Now().UTC().Format(time.RFC3339Nano),
		"updated_at":   time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// TestFriendRequestRow creates a pending friend_requests row.
func TestFriendRequestRow(sender, receiver uuid.UUID) map[string]any {
	return map[string]any{
		"id":          uuid.New().String(),
		"sender_id":   sender.String(),
		"receiver_id": receiver.String(),
		"status":      "pending",
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// TestSessionInfo creates a session info record for the given user.
func TestSessionInfo(userID uuid.UUID) *models.SessionInfo {
	return &models.SessionInfo{
		ID:         uuid.New().String(),
		DeviceInfo: "Chrome 120 · Windows 11 · Desktop",
		IPAddress:  "203.0.113.42",
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(7 * 24 * time.Hour),
	}
}

// TimePtr returns a pointer to the given time.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// UserAgents provides common user agent strings for device-info tests.
var UserAgents = struct {
	Chrome       string
	Safari       string
	MobileSafari string
	Unknown      string
}{
	Chrome:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	Safari:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	MobileSafari: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	Unknown:      "",
}

// IPAddresses provides test IP addresses.
var IPAddresses = struct {
	Public    string
	Private   string
	Localhost string
}{
	Public:    "203.0.113.42",
	Private:   "192.168.1.100",
	Localhost: "127.0.0.1",
}
