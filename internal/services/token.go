// Package services contains the provider daemon's business logic: account
// lifecycle (signup, confirmation, recovery), token issuance and rotation,
// and server-side session tracking.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/pkg/config"
)

// RedisStore defines the Redis operations the token service needs.
// Abstracts storage for testing and dependency injection.
type RedisStore interface {
	SetRefreshToken(ctx context.Context, tokenID, userID string, expiry time.Duration) error
	GetRefreshToken(ctx context.Context, tokenID string) (string, error)
	DeleteRefreshToken(ctx context.Context, tokenID string) error
	BlacklistToken(ctx context.Context, jti string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// TokenService handles JWT generation, validation, rotation, and revocation.
// Tokens use HS256 signing with custom claims. Refresh tokens are stored in
// Redis for single-use rotation; revoked tokens are blacklisted for their
// remaining lifetime.
type TokenService struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	redis         RedisStore
}

// TokenPair is a complete authentication token set: an access token for API
// requests and a refresh token for renewing it.
//
// Example JSON response:
//
//	{
//	  "access_token": "eyJhbGciOiJIUzI1NiIs...",
//	  "refresh_token": "eyJhbGciOiJIUzI1NiIs...",
//	  "expires_at": "2024-01-20T15:00:00Z"
//	}
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"` // Access token expiration
}

// Claims are the custom JWT claims embedded in both token kinds.
type Claims struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	JTI                  string `json:"jti"` // Unique token ID for blacklisting
	jwt.RegisteredClaims        // Standard claims (exp, iat, nbf)
}

// NewTokenService creates a token service signing with the configured
// secret.
//
// Example:
//
//	tokenSvc := services.NewTokenService(&cfg.Token, redisDB)
func NewTokenService(cfg *config.TokenConfig, redis RedisStore) *TokenService {
	return &TokenService{
		secret:        cfg.Secret,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		redis:         redis,
	}
}

// GenerateTokenPair creates the access/refresh pair issued after successful
// authentication. The refresh token's JTI is stored in Redis so rotation can
// verify each refresh token is used at most once.
func (s *TokenService) GenerateTokenPair(ctx context.Context, userID uuid.UUID, email string) (*TokenPair, error) {
	accessJTI := generateJTI()
	accessToken, expiresAt, err := s.generateToken(userID.String(), email, accessJTI, s.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshJTI := generateJTI()
	refreshToken, _, err := s.generateToken(userID.String(), email, refreshJTI, s.refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.redis.SetRefreshToken(ctx, refreshJTI, userID.String(), s.refreshExpiry); err != nil {
		log.Error().Err(err).Msg("Failed to store refresh token in Redis")
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("access_jti", accessJTI).
		Str("refresh_jti", refreshJTI).
		Msg("Token pair generated")

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// generateToken signs a JWT with the given identity and lifetime.
func (s *TokenService) generateToken(userID, email, jti string, expiry time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(expiry)

	claims := Claims{
		UserID: userID,
		Email:  email,
		JTI:    jti,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ValidateToken verifies signature, expiry, and revocation status, and
// returns the claims. Used by the auth middleware on every protected
// request.
func (s *TokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	blacklisted, err := s.redis.IsTokenBlacklisted(ctx, claims.JTI)
	if err != nil {
		log.Error().Err(err).Str("jti", claims.JTI).Msg("Failed to check token blacklist")
		return nil, fmt.Errorf("verify token status: %w", err)
	}
	if blacklisted {
		return nil, fmt.Errorf("token has been revoked")
	}

	return claims, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new pair. The
// consumed token is deleted from Redis, so each refresh token works exactly
// once; a replayed token fails the Redis lookup even with a valid signature.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	claims, err := s.ValidateToken(ctx, refreshTokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	storedUserID, err := s.redis.GetRefreshToken(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("refresh token not found or expired: %w", err)
	}
	if storedUserID != claims.UserID {
		return nil, fmt.Errorf("token user mismatch")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	tokenPair, err := s.GenerateTokenPair(ctx, userID, claims.Email)
	if err != nil {
		return nil, err
	}

	if err := s.redis.DeleteRefreshToken(ctx, claims.JTI); err != nil {
		log.Warn().Err(err).Str("jti", claims.JTI).Msg("Failed to delete old refresh token")
	}

	log.Debug().Str("user_id", claims.UserID).Msg("Access token refreshed")
	return tokenPair, nil
}

// RevokeToken blacklists a token for its remaining lifetime. Already-expired
// or unparsable tokens are a no-op: there is nothing left to revoke.
func (s *TokenService) RevokeToken(ctx context.Context, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse token for revocation")
		return nil
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return fmt.Errorf("invalid token claims")
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.BlacklistToken(ctx, claims.JTI, ttl); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	log.Debug().
		Str("jti", claims.JTI).
		Str("user_id", claims.UserID).
		Msg("Token revoked")
	return nil
}

// generateJTI returns a URL-safe unique token ID from 16 random bytes.
func generateJTI() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateOTP returns a URL-safe one-time token for email verification and
// password recovery links.
func GenerateOTP() string {
	b := make([]byte, 24)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
