// Package server provides the control HTTP surface for the Brain.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/brain/internal/allocation"
	"github.com/aristath/brain/internal/auth"
	"github.com/aristath/brain/internal/config"
	"github.com/aristath/brain/internal/hft"
	"github.com/aristath/brain/internal/performance"
	"github.com/aristath/brain/internal/repository"
	"github.com/aristath/brain/internal/treasury"
)

// Config bundles the dependencies the control surface needs to answer read
// projections and to forward operator actions into the engines that own
// them.
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool
	Auth    config.AuthConfig

	AllocationEngine *allocation.Engine
	Treasury         *treasury.Manager
	Processor        *hft.Processor
	Performance      *performance.Tracker

	AllocationRepo repository.AllocationRepository
	PositionRepo   repository.PositionRepository
	DecisionRepo   repository.DecisionRepository
	TreasuryRepo   repository.TreasuryRepository
}

// Server is the chi-routed HTTP control surface.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New builds a Server and wires its middleware and routes. The returned
// Server is ready for Start.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware installs the request-handling chain shared by every route.
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes registers the liveness check and the bearer/HMAC gated
// control surface.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.BearerMiddleware(s.cfg.Auth, s.log))

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/treasury", s.handleTreasury)
		r.Get("/allocation", s.handleAllocation)
		r.Get("/breaker", s.handleBreaker)
		r.Get("/phases/status", s.handlePhasesStatus)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.HMACMiddleware(s.cfg.Auth, s.log))
		r.Post("/risk/halt", s.handleRiskHalt)
		r.Post("/breaker/reset", s.handleBreakerReset)
		r.Post("/admin/override", s.handleAdminOverride)
	})
}

// Start starts the HTTP server. Blocks until Shutdown is called elsewhere.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting control HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down control HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs every request's method, path, status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
