package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/models"
	"github.com/MasterY0das/BikeForU/pkg/cache"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// SessionStore defines the Redis operations for session tracking.
type SessionStore interface {
	SetSession(ctx context.Context, userID, sessionID, deviceInfo, ipAddress string, expiry time.Duration) error
	GetSession(ctx context.Context, userID, sessionID string) (map[string]string, error)
	ListUserSessions(ctx context.Context, userID string) ([]string, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// SessionService tracks where each account is signed in. Every login records
// a session with device and IP metadata so users can review and revoke
// logins on other devices. Sessions live in Redis and expire with the
// refresh token.
type SessionService struct {
	redis         SessionStore
	cache         *cache.Cache // geolocation lookups
	sessionExpiry time.Duration
}

// NewSessionService creates a session service.
//
// Example:
//
//	sessionSvc := services.NewSessionService(redisDB, cacheInstance, cfg.Token.RefreshExpiry)
func NewSessionService(redis SessionStore, cache *cache.Cache, sessionExpiry time.Duration) *SessionService {
	return &SessionService{
		redis:         redis,
		cache:         cache,
		sessionExpiry: sessionExpiry,
	}
}

// CreateSession records a new login. Called after successful password
// authentication and after signup, which issues tokens immediately.
//
// Example:
//
//	deviceInfo := services.ExtractDeviceInfo(r.UserAgent())
//	ipAddress := utils.ExtractClientIP(r)
//	sessionID, err := sessionSvc.CreateSession(ctx, user.ID, deviceInfo, ipAddress)
func (s *SessionService) CreateSession(ctx context.Context, userID uuid.UUID, deviceInfo, ipAddress string) (string, error) {
	sessionID := uuid.New().String()

	err := s.redis.SetSession(ctx, userID.String(), sessionID, deviceInfo, ipAddress, s.sessionExpiry)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Msg("Failed to create session")
		return "", fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("session_id", sessionID).
		Str("device", deviceInfo).
		Msg("Session created")

	return sessionID, nil
}

// GetSession returns sanitized metadata for one session. No tokens are
// included.
func (s *SessionService) GetSession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.SessionInfo, error) {
	sessionData, err := s.redis.GetSession(ctx, userID.String(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	createdAtUnix, err := strconv.ParseInt(sessionData["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid session data: %w", err)
	}
	createdAt := time.Unix(createdAtUnix, 0)

	return &models.SessionInfo{
		ID:         sessionID,
		DeviceInfo: sessionData["device_info"],
		IPAddress:  sessionData["ip_address"],
		Location:   s.GetGeoLocation(ctx, sessionData["ip_address"]),
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(s.sessionExpiry),
	}, nil
}

// ListUserSessions returns all active sessions for a user, for the account
// page's "where you're logged in" view. Sessions that fail to load are
// skipped.
func (s *SessionService) ListUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.SessionInfo, error) {
	sessionIDs, err := s.redis.ListUserSessions(ctx, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*models.SessionInfo, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		sessionInfo, err := s.GetSession(ctx, userID, sessionID)
		if err != nil {
			log.Warn().
				Err(err).
				Str("user_id", userID.String()).
				Str("session_id", sessionID).
				Msg("Failed to get session info")
			continue
		}
		sessions = append(sessions, sessionInfo)
	}

	return sessions, nil
}

// RevokeSession deletes one session, logging out that device while keeping
// others active.
func (s *SessionService) RevokeSession(ctx context.Context, userID uuid.UUID, sessionID string) error {
	if err := s.redis.DeleteSession(ctx, userID.String(), sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("session_id", sessionID).
		Msg("Session revoked")

	return nil
}

// RevokeAllSessions logs a user out everywhere. Called after a password
// change. Individual deletion failures are logged but don't stop the sweep.
func (s *SessionService) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	sessionIDs, err := s.redis.ListUserSessions(ctx, userID.String())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	for _, sessionID := range sessionIDs {
		if err := s.redis.DeleteSession(ctx, userID.String(), sessionID); err != nil {
			log.Warn().
				Err(err).
				Str("user_id", userID.String()).
				Str("session_id", sessionID).
				Msg("Failed to delete session")
		}
	}

	log.Info().
		Str("user_id", userID.String()).
		Int("count", len(sessionIDs)).
		Msg("All sessions revoked")

	return nil
}

// ExtractDeviceInfo formats a User-Agent header into a friendly string for
// the sessions list, like "Chrome 120 · Windows 11 · Desktop".
func ExtractDeviceInfo(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgent)

	var parts []string
	if ua.Name != "" {
		browser := ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
		parts = append(parts, browser)
	}
	if ua.OS != "" {
		os := ua.OS
		if ua.OSVersion != "" {
			os += " " + ua.OSVersion
		}
		parts = append(parts, os)
	}
	if ua.Mobile {
		parts = append(parts, "Mobile")
	} else if ua.Tablet {
		parts = append(parts, "Tablet")
	} else if ua.Desktop {
		parts = append(parts, "Desktop")
	}

	if len(parts) == 0 {
		if len(userAgent) > 100 {
			return userAgent[:100] + "..."
		}
		return userAgent
	}

	return strings.Join(parts, " · ")
}

// GetGeoLocation resolves an IP address to a human-readable location for the
// sessions list. Results are cached for 24 hours; private IPs short-circuit
// to "Local Network". Lookup failures fall back to the bare IP.
func (s *SessionService) GetGeoLocation(ctx context.Context, ipAddress string) string {
	if utils.IsPrivateIP(ipAddress) {
		return "Local Network"
	}

	cacheKey := cache.GeoLocationKey(ipAddress)
	var cachedLocation string

	err := s.cache.Get(ctx, cacheKey, &cachedLocation)
	if err == nil {
		log.Debug().Str("ip", ipAddress).Msg("Geolocation cache hit")
		return cachedLocation
	}
	if err != cache.ErrCacheMiss {
		log.Warn().Err(err).Str("ip", ipAddress).Msg("Failed to get from cache, fetching")
	}

	location := s.fetchGeoLocationFromAPI(ipAddress)

	if err := s.cache.Set(ctx, cacheKey, location, 24*time.Hour); err != nil {
		log.Warn().Err(err).Str("ip", ipAddress).Msg("Failed to cache geolocation")
	}

	return location
}

// fetchGeoLocationFromAPI queries the free ip-api.com service (no API key,
// 45 requests/minute). Returns the bare IP on any failure.
func (s *SessionService) fetchGeoLocationFromAPI(ipAddress string) string {
	url := fmt.Sprintf("http://ip-api.com/json/%s?fields=status,message,country,countryCode,city", ipAddress)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return ipAddress
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ipAddress
	}

	var result struct {
		Status      string `json:"status"`
		Message     string `json:"message"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
		City        string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ipAddress
	}
	if result.Status != "success" {
		return ipAddress
	}

	var location []string
	if result.City != "" {
		location = append(location, result.City)
	}
	if result.Country != "" {
		flag := countryCodeToFlag(result.CountryCode)
		location = append(location, flag+" "+result.Country)
	}
	if len(location) == 0 {
		return ipAddress
	}
	return strings.Join(location, ", ")
}

// countryCodeToFlag converts an ISO 3166-1 alpha-2 code to an emoji flag
// using Unicode regional indicator symbols.
func countryCodeToFlag(code string) string {
	if len(code) != 2 {
		return ""
	}
	code = strings.ToUpper(code)
	flag := ""
	for _, r := range code {
		if r >= 'A' && r <= 'Z' {
			flag += string(rune(0x1F1E6 + (r - 'A')))
		}
	}
	return flag
}
