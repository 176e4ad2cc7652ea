package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/middleware"
	"github.com/MasterY0das/BikeForU/internal/models"
	"github.com/MasterY0das/BikeForU/internal/services"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

const minPasswordLength = 6

// AccountService defines the account operations the handler needs.
// Abstracts the service layer for testing and dependency injection.
type AccountService interface {
	SignUp(ctx context.Context, email, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ConfirmEmail(ctx context.Context, token string) (*models.User, error)
	ResendVerification(ctx context.Context, email string) error
	RecoverPassword(ctx context.Context, email string) error
	VerifyRecovery(ctx context.Context, token string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, newPassword string) error
}

// TokenService defines the token operations the handler needs.
type TokenService interface {
	GenerateTokenPair(ctx context.Context, userID uuid.UUID, email string) (*services.TokenPair, error)
	ValidateToken(ctx context.Context, token string) (*services.Claims, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	RevokeToken(ctx context.Context, token string) error
}

// SessionService defines the session tracking operations the handler needs.
type SessionService interface {
	CreateSession(ctx context.Context, userID uuid.UUID, deviceInfo, ipAddress string) (string, error)
	ListUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.SessionInfo, error)
	RevokeSession(ctx context.Context, userID uuid.UUID, sessionID string) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error
}

// AuthHandler implements the authentication endpoints under /api/v1/auth.
//
// The surface is shaped for the SDK's session reconciliation: signup returns
// tokens immediately so a fresh client can poll GET /user for the
// email-confirmation timestamp, verify exchanges one-time tokens for
// sessions, and refresh rotates token pairs.
type AuthHandler struct {
	account  AccountService
	tokens   TokenService
	sessions SessionService
	siteURL  string
}

// NewAuthHandler creates the handler.
//
// Example:
//
//	authHandler := handlers.NewAuthHandler(accountSvc, tokenSvc, sessionSvc, cfg.Server.SiteURL)
func NewAuthHandler(account AccountService, tokens TokenService, sessions SessionService, siteURL string) *AuthHandler {
	return &AuthHandler{
		account:  account,
		tokens:   tokens,
		sessions: sessions,
		siteURL:  siteURL,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new account.
//
// POST /api/v1/auth/signup
// Body: {"email": "...", "password": "..."}
//
// Responds 201 with the user and an immediately usable session. The session
// is issued before the email is confirmed; confirmation only gates whatever
// the frontend chooses to gate on it.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateCredentials(req.Email, req.Password); msg != "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, msg)
		return
	}

	user, err := h.account.SignUp(r.Context(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			middleware.IncrementAuthAttempts("email_taken")
			utils.RespondWithError(w, r, http.StatusConflict, "email already registered")
			return
		}
		log.Error().Err(err).Msg("Signup failed")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "signup failed")
		return
	}

	session, err := h.issueSession(r, user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to issue signup session")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "signup failed")
		return
	}

	middleware.IncrementAuthAttempts("signup_success")
	utils.RespondWithJSON(w, r, http.StatusCreated, map[string]any{
		"user":    user,
		"session": session,
	})
}

// Login authenticates with email and password.
//
// POST /api/v1/auth/login
// Body: {"email": "...", "password": "..."}
//
// Responds 200 with the session. Unknown emails and wrong passwords are
// indistinguishable in the response.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.account.Authenticate(r.Context(), strings.ToLower(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			middleware.IncrementAuthAttempts("invalid_credentials")
			utils.RespondWithError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		log.Error().Err(err).Msg("Login failed")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	session, err := h.issueSession(r, user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to issue login session")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	middleware.IncrementAuthAttempts("success")
	utils.RespondWithJSON(w, r, http.StatusOK, session)
}

// Logout revokes the caller's access token.
//
// POST /api/v1/auth/logout (authenticated)
//
// Responds 204. Revocation blacklists the token for its remaining lifetime;
// a second logout with the same token fails auth, which the SDK treats as
// best-effort.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if err := h.tokens.RevokeToken(r.Context(), token); err != nil {
		log.Warn().Err(err).Msg("Failed to revoke token on logout")
	}
	utils.RespondNoContent(w)
}

// GetUser returns the caller's current account record.
//
// GET /api/v1/auth/user (authenticated)
//
// This backs the SDK's confirmation polling: email_confirmed_at in the
// response always reflects the database, including confirmations performed
// in another browser tab.
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.account.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			utils.RespondWithError(w, r, http.StatusNotFound, "user not found")
			return
		}
		log.Error().Err(err).Msg("Failed to load user")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to load user")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, map[string]any{"user": user})
}

// UpdateUser changes account attributes for the caller.
//
// PUT /api/v1/auth/user (authenticated)
// Body: {"password": "..."}
//
// A password change revokes every tracked session so other devices must log
// in again. Email changes are not supported.
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Password string `json:"password,omitempty"`
		Email    string `json:"email,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email != "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, "email changes are not supported")
		return
	}
	if req.Password == "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, "nothing to update")
		return
	}
	if len(req.Password) < minPasswordLength {
		utils.RespondWithError(w, r, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	if err := h.account.UpdatePassword(r.Context(), userID, req.Password); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to update password")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to update password")
		return
	}

	if err := h.sessions.RevokeAllSessions(r.Context(), userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to revoke sessions after password change")
	}

	user, err := h.account.GetUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load user after update")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to load user")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, map[string]any{"user": user})
}

// Resend re-issues a verification or recovery email.
//
// POST /api/v1/auth/resend
// Body: {"type": "signup" | "recovery", "email": "..."}
//
// Responds 200 regardless of whether the email is registered, so the
// endpoint can't be used to enumerate accounts.
func (h *AuthHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  string `json:"type"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.ToLower(req.Email)
	var err error
	switch req.Type {
	case services.OTPTypeSignup:
		err = h.account.ResendVerification(r.Context(), email)
	case services.OTPTypeRecovery:
		err = h.account.RecoverPassword(r.Context(), email)
	default:
		utils.RespondWithError(w, r, http.StatusBadRequest, "unknown resend type")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("type", req.Type).Msg("Failed to resend email")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to send email")
		return
	}

	utils.RespondWithMessage(w, r, http.StatusOK, "email sent")
}

// Verify consumes a one-time token and issues a session.
//
// POST /api/v1/auth/verify
// Body: {"type": "signup" | "recovery", "token": "..."}
//
// For signup tokens the account is marked confirmed first. For recovery
// tokens the session lets the client set a new password through PUT /user.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  string `json:"type"`
		Token string `json:"token"`
		Email string `json:"email,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		user *models.User
		err  error
	)
	switch req.Type {
	case services.OTPTypeSignup:
		user, err = h.account.ConfirmEmail(r.Context(), req.Token)
		if err == nil {
			middleware.IncrementEmailConfirmations()
		}
	case services.OTPTypeRecovery:
		user, err = h.account.VerifyRecovery(r.Context(), req.Token)
	default:
		utils.RespondWithError(w, r, http.StatusBadRequest, "unknown verification type")
		return
	}
	if err != nil {
		if errors.Is(err, services.ErrInvalidOTP) {
			utils.RespondWithError(w, r, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		log.Error().Err(err).Str("type", req.Type).Msg("Verification failed")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "verification failed")
		return
	}

	session, err := h.issueSession(r, user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Failed to issue session after verification")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "verification failed")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, session)
}

// VerifyLink handles the link embedded in verification emails.
//
// GET /api/v1/auth/verify?token=...
//
// Confirms the account and redirects the browser to the frontend login
// page. The SDK's poller notices the confirmation on its next tick; this
// endpoint never returns tokens to the browser tab that opened the link.
func (h *AuthHandler) VerifyLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, h.siteURL+"/signup", http.StatusFound)
		return
	}

	if _, err := h.account.ConfirmEmail(r.Context(), token); err != nil {
		log.Warn().Err(err).Msg("Email-link verification failed")
		http.Redirect(w, r, h.siteURL+"/signup", http.StatusFound)
		return
	}

	middleware.IncrementEmailConfirmations()
	http.Redirect(w, r, h.siteURL+"/login", http.StatusFound)
}

// Recover starts the password-recovery flow.
//
// POST /api/v1/auth/recover
// Body: {"email": "..."}
//
// Always responds 200; see Resend for the enumeration rationale.
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.account.RecoverPassword(r.Context(), strings.ToLower(req.Email)); err != nil {
		log.Error().Err(err).Msg("Failed to start recovery")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to send email")
		return
	}

	utils.RespondWithMessage(w, r, http.StatusOK, "email sent")
}

// Refresh exchanges a refresh token for a new pair.
//
// POST /api/v1/auth/refresh
// Body: {"refresh_token": "..."}
//
// Refresh tokens rotate: the presented token is consumed whether or not the
// response reaches the client.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, "missing refresh token")
		return
	}

	pair, err := h.tokens.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.IncrementTokenRefresh("invalid_token")
		utils.RespondWithError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	claims, err := h.tokens.ValidateToken(r.Context(), pair.AccessToken)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read claims from fresh token")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		utils.RespondWithError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	user, err := h.account.GetUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load user during refresh")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	middleware.IncrementTokenRefresh("success")
	utils.RespondWithJSON(w, r, http.StatusOK, &models.WireSession{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		User:         user,
	})
}

// ListSessions returns the caller's active sessions.
//
// GET /api/v1/auth/sessions (authenticated)
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.sessions.ListUserSessions(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list sessions")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

// RevokeSession logs out a specific device.
//
// DELETE /api/v1/auth/sessions/{sessionID} (authenticated)
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondWithError(w, r, http.StatusBadRequest, "missing session ID")
		return
	}

	if err := h.sessions.RevokeSession(r.Context(), userID, sessionID); err != nil {
		log.Error().Err(err).Msg("Failed to revoke session")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	utils.RespondNoContent(w)
}

// issueSession generates a token pair and records the login.
func (h *AuthHandler) issueSession(r *http.Request, user *models.User) (*models.WireSession, error) {
	ctx := r.Context()

	pair, err := h.tokens.GenerateTokenPair(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	deviceInfo := services.ExtractDeviceInfo(r.UserAgent())
	ipAddress := utils.ExtractClientIP(r)
	if _, err := h.sessions.CreateSession(ctx, user.ID, deviceInfo, ipAddress); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record session")
	}

	return &models.WireSession{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
		User:         user,
	}, nil
}

// authedUserID pulls the authenticated user's UUID out of the context set by
// the auth middleware.
func authedUserID(r *http.Request) (uuid.UUID, bool) {
	idStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// validateCredentials returns an error message for bad signup input, or ""
// when the input is acceptable.
func validateCredentials(email, password string) string {
	if email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "invalid email address"
	}
	if len(password) < minPasswordLength {
		return "password must be at least 6 characters"
	}
	return ""
}
