package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// Key prefixes. All keys follow the pattern "prefix:identifier".
const (
	UserPrefix        = "user:"
	GeoLocationPrefix = "geo:"
)

// UserKey is the cache key for a user record by ID.
//
// Example: "user:123e4567-e89b-12d3-a456-426614174000"
func UserKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s", UserPrefix, userID.String())
}

// UserByEmailKey is the cache key for a user lookup by email.
//
// Example: "user:email:rider@example.com"
func UserByEmailKey(email string) string {
	return fmt.Sprintf("%semail:%s", UserPrefix, email)
}

// UserPattern matches every cache key for one user.
func UserPattern(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s*", UserPrefix, userID.String())
}

// UserAllPattern matches every user cache key. Use with caution.
func UserAllPattern() string {
	return fmt.Sprintf("%s*", UserPrefix)
}

// GeoLocationKey is the cache key for geolocation data by IP address.
// Lookups hit an external API, so these are cached with a long TTL.
//
// Example: "geo:203.0.113.7"
func GeoLocationKey(ipAddress string) string {
	return fmt.Sprintf("%s%s", GeoLocationPrefix, ipAddress)
}
