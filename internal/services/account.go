package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/internal/models"
)

// One-time token kinds stored in Redis. The kind is part of the key, so a
// recovery token can never confirm an email and vice versa.
const (
	OTPTypeSignup   = "signup"
	OTPTypeRecovery = "recovery"
)

// Sentinel errors returned by AccountService. Handlers map these to HTTP
// status codes.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidOTP         = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStore defines the Postgres operations the account service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ConfirmEmail(ctx context.Context, id uuid.UUID) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// OTPStore defines the Redis operations for one-time tokens.
type OTPStore interface {
	SetOTPToken(ctx context.Context, tokenType, token, userID string, expiry time.Duration) error
	ConsumeOTPToken(ctx context.Context, tokenType, token string) (string, error)
}

// AccountService handles the account lifecycle: registration, password
// authentication, email confirmation, and password recovery.
//
// Registration issues tokens immediately so a fresh account can read its own
// user record while the confirmation email is still in flight. Confirmation
// only flips email_confirmed_at; it never gates login.
type AccountService struct {
	users      UserStore
	otp        OTPStore
	mailer     Mailer
	siteURL    string
	otpExpiry  time.Duration
	bcryptCost int
}

// NewAccountService creates an account service.
//
// Example:
//
//	accountSvc := services.NewAccountService(postgresDB, redisDB, mailer, cfg.Server.SiteURL, cfg.Verify.TokenExpiry)
func NewAccountService(users UserStore, otp OTPStore, mailer Mailer, siteURL string, otpExpiry time.Duration) *AccountService {
	return &AccountService{
		users:      users,
		otp:        otp,
		mailer:     mailer,
		siteURL:    siteURL,
		otpExpiry:  otpExpiry,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// SignUp registers a new account and sends the verification email. Returns
// the created user; token issuance is the handler's job.
func (s *AccountService) SignUp(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		// The account exists; the client's resend flow recovers from a
		// failed first email.
		log.Error().Err(err).Str("email", email).Msg("Failed to send verification email")
	}

	log.Info().
		Str("user_id", user.ID.String()).
		Str("email", email).
		Msg("Account registered")

	return user, nil
}

// Authenticate checks email/password credentials. Returns
// ErrInvalidCredentials for both unknown emails and wrong passwords so the
// response doesn't reveal which emails are registered.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to update last login")
	}

	return user, nil
}

// GetUser fetches the current account state. This backs the client's
// confirmation polling, so it must always reflect the latest
// email_confirmed_at.
func (s *AccountService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	return user, nil
}

// ConfirmEmail consumes a signup token and marks the account confirmed.
// Tokens are single-use; a replay returns ErrInvalidOTP.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) (*models.User, error) {
	userIDStr, err := s.otp.ConsumeOTPToken(ctx, OTPTypeSignup, token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}

	if err := s.users.ConfirmEmail(ctx, userID); err != nil {
		return nil, fmt.Errorf("confirm email: %w", err)
	}

	log.Info().Str("user_id", userIDStr).Msg("Email confirmed")
	return s.GetUser(ctx, userID)
}

// ResendVerification issues a fresh signup token and re-sends the email.
// Already-confirmed accounts are a no-op so repeated clicks on the resend
// button stay harmless.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Don't reveal whether the email is registered.
			return nil
		}
		return fmt.Errorf("look up user: %w", err)
	}
	if user.Confirmed() {
		return nil
	}
	return s.sendVerification(ctx, user)
}

// RecoverPassword sends a password recovery email. Unknown emails succeed
// silently for the same enumeration reason as ResendVerification.
func (s *AccountService) RecoverPassword(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("look up user: %w", err)
	}

	token := GenerateOTP()
	if err := s.otp.SetOTPToken(ctx, OTPTypeRecovery, token, user.ID.String(), s.otpExpiry); err != nil {
		return fmt.Errorf("store recovery token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.siteURL, token)
	if err := s.mailer.SendRecovery(ctx, user.Email, link); err != nil {
		return fmt.Errorf("send recovery email: %w", err)
	}

	log.Info().Str("user_id", user.ID.String()).Msg("Recovery email sent")
	return nil
}

// VerifyRecovery consumes a recovery token and returns the account it
// belongs to. The handler issues a session from it; the client then sets the
// new password through the normal authenticated update.
func (s *AccountService) VerifyRecovery(ctx context.Context, token string) (*models.User, error) {
	userIDStr, err := s.otp.ConsumeOTPToken(ctx, OTPTypeRecovery, token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}

	log.Info().Str("user_id", userIDStr).Msg("Recovery token verified")
	return s.GetUser(ctx, userID)
}

// UpdatePassword changes the password for an authenticated user.
func (s *AccountService) UpdatePassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}
	log.Info().Str("user_id", userID.String()).Msg("Password updated")
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AccountService) sendVerification(ctx context.Context, user *models.User) error {
	token := GenerateOTP()
	if err := s.otp.SetOTPToken(ctx, OTPTypeSignup, token, user.ID.String(), s.otpExpiry); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	link := fmt.Sprintf("%s/api/v1/auth/verify?token=%s", s.siteURL, token)
	return s.mailer.SendVerification(ctx, user.Email, link)
}
