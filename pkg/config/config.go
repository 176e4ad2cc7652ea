// Package config provides application configuration management with environment
// variable loading, validation, and sensible defaults. It supports .env files
// for local development and validates all required settings on startup to
// prevent runtime configuration errors.
//
// Configuration is loaded from environment variables with the Load() function,
// which returns a validated Config struct or an error if required variables
// are missing or invalid.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Failed to load configuration")
//	}
//
//	// Use configuration
//	server := &http.Server{
//	    Addr: ":" + cfg.Server.Port,
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the BikeForU provider daemon.
// It aggregates all configuration sections into a single struct
// for easy access throughout the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Token     TokenConfig
	Mail      MailConfig
	Verify    VerifyConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-specific configuration including port,
// environment, and the public site URL embedded in email links.
type ServerConfig struct {
	Port        string
	Environment string
	SiteURL     string // URL the frontend is served from; used in verification links
}

// DatabaseConfig holds PostgreSQL database configuration including
// connection parameters and pool settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	MaxConns int
}

// RedisConfig holds Redis configuration including connection parameters,
// authentication, database selection, and pool size.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// TokenConfig holds JWT configuration: the signing secret and the
// access and refresh token lifetimes.
type TokenConfig struct {
	Secret        []byte
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// MailConfig controls outgoing verification and recovery mail.
// In dev mode messages are logged instead of delivered, which is also
// how the end-to-end tests capture verification tokens.
type MailConfig struct {
	FromAddress string
	DevMode     bool
}

// VerifyConfig tunes the email-verification flow: how long confirmation
// tokens stay valid, and the client-side polling schedule.
type VerifyConfig struct {
	TokenExpiry  time.Duration // OTP token lifetime (signup and recovery)
	PollInterval time.Duration // Client poll cadence while waiting for confirmation
	MaxPolls     int           // Poll attempts before giving up; 0 polls until cancelled
}

// CORSConfig holds Cross-Origin Resource Sharing configuration
// to control which origins can access the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig holds rate limiting configuration protecting the
// auth endpoints against abuse.
type RateLimitConfig struct {
	RequestsPerMinute int
	WindowDuration    time.Duration
}

// Load reads and validates configuration from environment variables.
// It attempts to load a .env file if present (for local development)
// but doesn't fail if the file is missing (for production deployments).
//
// Required environment variables:
//   - POSTGRES_PASSWORD: Database password
//   - TOKEN_SECRET: Secret for JWT signing (>=32 bytes)
//
// Optional environment variables have sensible defaults.
//
// Returns an error if any required variable is missing or if
// validation fails.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	postgresPassword, err := getEnvRequired("POSTGRES_PASSWORD")
	if err != nil {
		return nil, err
	}

	tokenSecret, err := getEnvRequired("TOKEN_SECRET")
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENV", "development"),
			SiteURL:     getEnv("SITE_URL", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			Database: getEnv("POSTGRES_DB", "bikeforu"),
			User:     getEnv("POSTGRES_USER", "bikeforu"),
			Password: postgresPassword,
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 25),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 100),
		},
		Token: TokenConfig{
			Secret:        []byte(tokenSecret),
			AccessExpiry:  getEnvAsDuration("TOKEN_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("TOKEN_REFRESH_EXPIRY", 168*time.Hour), // 7 days
		},
		Mail: MailConfig{
			FromAddress: getEnv("MAIL_FROM", "no-reply@bikeforu.app"),
			DevMode:     getEnv("MAIL_DEV_MODE", "true") == "true",
		},
		Verify: VerifyConfig{
			TokenExpiry:  getEnvAsDuration("VERIFY_TOKEN_EXPIRY", 24*time.Hour),
			PollInterval: getEnvAsDuration("VERIFY_POLL_INTERVAL", 2*time.Second),
			MaxPolls:     getEnvAsInt("VERIFY_MAX_POLLS", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			WindowDuration:    getEnvAsDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if all required configuration is present and valid.
// This method is called automatically by Load() but can also be called
// independently for testing or validation purposes.
//
// Returns an error describing the first validation failure encountered,
// or nil if all configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port must be a valid integer: %w", err)
	}

	if _, err := strconv.Atoi(c.Database.Port); err != nil {
		return fmt.Errorf("database port must be a valid integer: %w", err)
	}

	if _, err := strconv.Atoi(c.Redis.Port); err != nil {
		return fmt.Errorf("redis port must be a valid integer: %w", err)
	}

	if _, err := url.ParseRequestURI(c.Server.SiteURL); err != nil {
		return fmt.Errorf("invalid site URL: %w", err)
	}

	if len(c.Token.Secret) < 32 {
		return fmt.Errorf("token secret must be at least 32 bytes")
	}

	if c.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if c.Verify.PollInterval <= 0 {
		return fmt.Errorf("verification poll interval must be positive")
	}

	return nil
}

// DSN returns the PostgreSQL Data Source Name (connection string)
// formatted for use with the lib/pq driver.
//
// Note: SSL is disabled for local development. In production,
// consider enabling SSL and configuring appropriate certificates.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database,
	)
}

// Address returns the Redis server address in "host:port" format.
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Helper functions for environment variable parsing

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired retrieves a required environment variable.
// Returns an error if the variable is not set or is empty.
//
// Use this for configuration that has no sensible default and
// must be explicitly provided by the operator.
func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s is not set", key)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an integer with a
// default fallback. If the variable is not set or cannot be parsed,
// returns defaultValue.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
// with a default fallback. Supports Go duration strings: "300ms",
// "1.5h", "2h45m", etc.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice retrieves an environment variable as a comma-separated
// string slice with a default fallback.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
