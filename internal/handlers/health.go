// Package handlers provides the HTTP handlers for the provider daemon:
// authentication endpoints, the generic table data plane, and health checks.
// Handlers parse and validate requests, call into services, and format
// responses; they hold no business logic of their own.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/pkg/utils"
)

// HealthHandler serves liveness and readiness probes. Readiness verifies
// PostgreSQL and Redis connectivity.
type HealthHandler struct {
	postgres *database.PostgresDB
	redis    *database.RedisDB
}

// NewHealthHandler creates the handler.
//
// Example:
//
//	healthHandler := handlers.NewHealthHandler(postgresDB, redisDB)
//	r.Get("/health", healthHandler.Health)
//	r.Get("/ready", healthHandler.Ready)
func NewHealthHandler(postgres *database.PostgresDB, redis *database.RedisDB) *HealthHandler {
	return &HealthHandler{
		postgres: postgres,
		redis:    redis,
	}
}

// HealthResponse is the body of both probes.
//
// JSON example:
//
//	{
//	  "status": "ok",
//	  "timestamp": "2026-08-29T14:30:00Z",
//	  "services": {"postgres": "healthy", "redis": "healthy"}
//	}
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services,omitempty"`
}

// Health is the liveness probe: it only reports that the process is up,
// never touching dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready is the readiness probe: 200 when PostgreSQL and Redis both respond,
// 503 with per-service detail otherwise. Checks are bounded by a 5-second
// timeout so a hung dependency can't hang the probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	allHealthy := true

	if err := h.postgres.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("PostgreSQL health check failed")
		services["postgres"] = "unhealthy"
		allHealthy = false
	} else {
		services["postgres"] = "healthy"
	}

	if err := h.redis.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Redis health check failed")
		services["redis"] = "unhealthy"
		allHealthy = false
	} else {
		services["redis"] = "healthy"
	}

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Services:  services,
	}

	statusCode := http.StatusOK
	if !allHealthy {
		response.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	utils.RespondWithJSON(w, r, statusCode, response)
}
