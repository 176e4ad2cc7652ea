package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// RateLimiter implements per-IP, per-endpoint rate limiting with Redis
// counters, so limits hold across multiple daemon instances.
//
// Confirmation polling hits GET /user every couple of seconds per pending
// signup, so the limit on that endpoint must leave comfortable headroom
// above the poll rate.
//
// Redis key pattern: "ratelimit:{ip}:{endpoint}" with TTL equal to the
// window.
type RateLimiter struct {
	redis          *database.RedisDB
	requestsPerMin int
	window         time.Duration
}

// NewRateLimiter creates a rate limiter.
//
// Example:
//
//	limiter := middleware.NewRateLimiter(redisDB, 60, time.Minute)
//	r.With(limiter.Limit("login")).Post("/login", handler.Login)
func NewRateLimiter(redis *database.RedisDB, requestsPerMin int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:          redis,
		requestsPerMin: requestsPerMin,
		window:         window,
	}
}

// Limit applies rate limiting under the given endpoint identifier. Each
// identifier gets an independent counter, so sensitive endpoints can be
// stricter than the general API.
//
// Standard headers are set on every response; exceeding the limit returns
// 429 with Retry-After. Redis errors let the request through rather than
// blocking legitimate traffic.
func (rl *RateLimiter) Limit(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ExtractClientIP(r)

			count, err := rl.redis.IncrementRateLimit(r.Context(), ip, endpoint, rl.window)
			if err != nil {
				log.Error().Err(err).Str("ip", ip).Msg("Failed to check rate limit")
				next.ServeHTTP(w, r)
				return
			}

			if count > int64(rl.requestsPerMin) {
				log.Warn().
					Str("ip", ip).
					Str("endpoint", endpoint).
					Int64("count", count).
					Msg("Rate limit exceeded")

				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requestsPerMin))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))

				utils.RespondWithError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			remaining := rl.requestsPerMin - int(count)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requestsPerMin))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

			next.ServeHTTP(w, r)
		})
	}
}
