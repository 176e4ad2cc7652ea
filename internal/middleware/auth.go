// Package middleware provides HTTP middleware for the provider daemon:
// bearer-token authentication, request logging with correlation IDs,
// Prometheus metrics, and per-IP rate limiting. All of it composes with the
// Chi router.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/services"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// contextKey is a private type for context keys to avoid collisions with
// other packages.
type contextKey string

const (
	// UserIDKey holds the authenticated user's ID, set by TokenAuth.
	UserIDKey contextKey = "user_id"

	// UserEmailKey holds the authenticated user's email, set by TokenAuth.
	UserEmailKey contextKey = "email"
)

// TokenAuth validates the Authorization bearer token and puts the user's
// identity in the request context. Protects every endpoint that operates on
// the caller's account or data.
//
// Validation covers signature, expiry, and the revocation blacklist.
// Failures get a 401 with the standard error body so SDK clients decode a
// proper APIError.
//
// Usage:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(middleware.TokenAuth(tokenSvc))
//	    r.Get("/user", authHandler.GetUser)
//	})
func TokenAuth(tokenService *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				utils.RespondWithError(w, r, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := tokenService.ValidateToken(r.Context(), token)
			if err != nil {
				log.Warn().Err(err).Msg("Invalid token")
				utils.RespondWithError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the authenticated user's ID from the context.
//
// Example:
//
//	userID, ok := middleware.GetUserID(r.Context())
//	if !ok {
//	    utils.RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
//	    return
//	}
//	uid, _ := uuid.Parse(userID)
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUserEmail extracts the authenticated user's email from the context.
func GetUserEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(UserEmailKey).(string)
	return email, ok
}
