// Package server assembles the provider daemon: services, handlers,
// middleware, and routes. The same assembly serves the binary and the
// end-to-end tests, which swap in in-memory stores.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/MasterY0das/BikeForU/internal/database"
	"github.com/MasterY0das/BikeForU/internal/handlers"
	"github.com/MasterY0das/BikeForU/internal/middleware"
	"github.com/MasterY0das/BikeForU/internal/services"
	"github.com/MasterY0das/BikeForU/pkg/cache"
	"github.com/MasterY0das/BikeForU/pkg/config"
)

// Options carries the server's dependencies. Users, Tables, and Mailer
// default to Postgres-backed and log-backed implementations when nil, which
// is what the binary uses; tests provide their own.
type Options struct {
	Postgres *database.PostgresDB
	Redis    *database.RedisDB
	Users    services.UserStore
	Tables   handlers.TableStore
	Mailer   services.Mailer
}

// Server is the assembled HTTP server.
type Server struct {
	cfg    *config.Config
	router chi.Router
	http   *http.Server
}

// New wires services, handlers, and routes.
//
// Example:
//
//	srv := server.New(cfg, server.Options{Postgres: postgresDB, Redis: redisDB})
//	if err := srv.Start(); err != nil {
//	    log.Fatal().Err(err).Msg("Server failed")
//	}
func New(cfg *config.Config, opts Options) *Server {
	cacheInstance := cache.NewCache(opts.Redis.Client())

	users := opts.Users
	if users == nil {
		// The cache decorator keeps the polling-heavy user read path off
		// Postgres.
		users = cache.NewUserCache(cacheInstance, opts.Postgres, cfg.Verify.PollInterval)
	}

	mailer := opts.Mailer
	if mailer == nil {
		mailer = services.NewLogMailer(&cfg.Mail)
	}

	var tables handlers.TableStore = opts.Tables
	if tables == nil {
		tables = opts.Postgres
	}

	tokenSvc := services.NewTokenService(&cfg.Token, opts.Redis)
	sessionSvc := services.NewSessionService(opts.Redis, cacheInstance, cfg.Token.RefreshExpiry)
	accountSvc := services.NewAccountService(users, opts.Redis, mailer, cfg.Server.SiteURL, cfg.Verify.TokenExpiry)

	authHandler := handlers.NewAuthHandler(accountSvc, tokenSvc, sessionSvc, cfg.Server.SiteURL)
	tablesHandler := handlers.NewTablesHandler(tables)
	healthHandler := handlers.NewHealthHandler(opts.Postgres, opts.Redis)

	rateLimiter := middleware.NewRateLimiter(opts.Redis, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.WindowDuration)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", healthHandler.Health)
	if opts.Postgres != nil {
		r.Get("/ready", healthHandler.Ready)
	}
	r.Handle("/metrics", middleware.MetricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Public endpoints, rate limited against credential stuffing
			// and email floods.
			r.Group(func(r chi.Router) {
				r.Use(rateLimiter.Limit("auth"))
				r.Post("/signup", authHandler.SignUp)
				r.Post("/login", authHandler.Login)
				r.Post("/resend", authHandler.Resend)
				r.Post("/recover", authHandler.Recover)
				r.Post("/refresh", authHandler.Refresh)
				r.Post("/verify", authHandler.Verify)
				r.Get("/verify", authHandler.VerifyLink)
			})

			// Protected endpoints. GET /user carries the confirmation
			// polling traffic, so it sits under the roomier api limit.
			r.Group(func(r chi.Router) {
				r.Use(middleware.TokenAuth(tokenSvc))
				r.Use(rateLimiter.Limit("api"))
				r.Get("/user", authHandler.GetUser)
				r.Put("/user", authHandler.UpdateUser)
				r.Post("/logout", authHandler.Logout)
				r.Get("/sessions", authHandler.ListSessions)
				r.Delete("/sessions/{sessionID}", authHandler.RevokeSession)
			})
		})

		r.Route("/tables/{table}", func(r chi.Router) {
			r.Use(middleware.TokenAuth(tokenSvc))
			r.Use(rateLimiter.Limit("api"))
			r.Get("/", tablesHandler.List)
			r.Post("/", tablesHandler.Insert)
			r.Patch("/", tablesHandler.Update)
			r.Delete("/", tablesHandler.Delete)
		})
	})

	return &Server{
		cfg:    cfg,
		router: r,
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Handler returns the assembled router. Tests mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until Shutdown. Blocks.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("Server started")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
