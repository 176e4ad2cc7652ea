package client

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated account as reported by the provider.
// EmailConfirmedAt is nil until the verification link or OTP code has been
// consumed; the verification poller watches for it to become non-nil.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Confirmed reports whether the account's email address has been verified.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// Session is the authoritative proof of an authenticated identity, owned by
// the provider. The application only ever holds a read-only, possibly-stale
// copy; GetSession and the auth-state subscription are the ways to observe
// the current one.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user"`
}

// Expired reports whether the access token has passed its expiry.
func (s *Session) Expired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}

// AuthEvent identifies the kind of session change delivered to
// OnAuthStateChange subscribers.
type AuthEvent string

const (
	// EventSignedIn is emitted after a successful sign-in, sign-up with an
	// immediate session, or OTP verification.
	EventSignedIn AuthEvent = "SIGNED_IN"
	// EventSignedOut is emitted after SignOut, including repeated calls.
	EventSignedOut AuthEvent = "SIGNED_OUT"
	// EventTokenRefreshed is emitted after a silent token refresh.
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	// EventUserUpdated is emitted after UpdateUser changes account data.
	EventUserUpdated AuthEvent = "USER_UPDATED"
)

// OTPType selects which kind of one-time token an operation concerns.
type OTPType string

const (
	// OTPTypeSignup is the email-confirmation token issued at signup.
	OTPTypeSignup OTPType = "signup"
	// OTPTypeRecovery is the password-recovery token issued by RecoverPassword.
	OTPTypeRecovery OTPType = "recovery"
)

// VerifyOTPParams carries the inputs for VerifyOTP. Email is required for
// signup confirmations where the token alone does not identify the account.
type VerifyOTPParams struct {
	Type  OTPType `json:"type"`
	Token string  `json:"token"`
	Email string  `json:"email,omitempty"`
}

// UpdateUserParams carries the mutable account attributes for UpdateUser.
// Zero-valued fields are left unchanged.
type UpdateUserParams struct {
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
}

// SignUpResult is returned by SignUp. Session may be nil when the provider
// defers it until email confirmation.
type SignUpResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session,omitempty"`
}
