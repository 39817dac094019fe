// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of onestep-auth.
//
// onestep-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/onestep-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/onestep-auth/pkg/avv"
	avvhttp "github.com/jeremyhahn/onestep-auth/pkg/avv/http"
	"github.com/jeremyhahn/onestep-auth/pkg/ceremony"
	ceremonyhttp "github.com/jeremyhahn/onestep-auth/pkg/ceremony/http"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
	"github.com/jeremyhahn/onestep-auth/pkg/health"
	"github.com/jeremyhahn/onestep-auth/pkg/metrics"
	"github.com/jeremyhahn/onestep-auth/pkg/ratelimit"
	"github.com/jeremyhahn/onestep-auth/pkg/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the REST API server.
type Server struct {
	server    *http.Server
	port      int
	tlsConfig *tls.Config
	logger    logger.Logger
	limiter   *ratelimit.Limiter
	checker   *health.Checker

	ceremonyHandler *ceremonyhttp.Handler
	riskHandler     *avvhttp.Handler

	metricsEnabled bool
	metricsPath    string
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the interface to bind to (default: all interfaces)
	Host string

	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// CeremonyEngine drives the WebAuthn registration and login ceremonies (required)
	CeremonyEngine *ceremony.Engine

	// RiskEngine evaluates verification checks (required)
	RiskEngine *avv.Engine

	// Registry is the credential store backing the credential management
	// endpoints (required)
	Registry credential.Registry

	// SessionIssuer mints tokens after verified ceremonies (optional)
	SessionIssuer *session.Issuer

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Logger is the logging adapter (optional, slog-backed default)
	Logger logger.Logger

	// RateLimiter throttles per-client request rates (optional)
	RateLimiter *ratelimit.Limiter

	// HealthChecker provides Kubernetes-style probe results (optional)
	HealthChecker *health.Checker

	// MetricsEnabled exposes the Prometheus metrics endpoint
	MetricsEnabled bool

	// MetricsPath is the metrics endpoint path (default: /metrics)
	MetricsPath string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.CeremonyEngine == nil {
		return nil, fmt.Errorf("ceremony engine is required")
	}
	if cfg.RiskEngine == nil {
		return nil, fmt.Errorf("risk engine is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("credential registry is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	// Set up logger (default to stdlib if not provided)
	log := cfg.Logger
	if log == nil {
		log = logger.NewSlogAdapter(&logger.SlogConfig{
			Level: logger.LevelInfo,
		})
	}

	ceremonyHandler := ceremonyhttp.NewHandler(cfg.CeremonyEngine, cfg.Registry)
	if cfg.SessionIssuer != nil {
		ceremonyHandler.WithSessionIssuer(cfg.SessionIssuer)
	}

	server := &Server{
		port:            cfg.Port,
		tlsConfig:       cfg.TLSConfig,
		logger:          log,
		limiter:         cfg.RateLimiter,
		checker:         cfg.HealthChecker,
		ceremonyHandler: ceremonyHandler,
		riskHandler:     avvhttp.NewHandler(cfg.RiskEngine),
		metricsEnabled:  cfg.MetricsEnabled,
		metricsPath:     cfg.MetricsPath,
	}

	router := server.setupRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	server.server = httpServer

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware()) // Add correlation ID before logging
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware)
	if s.limiter != nil {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	// Legacy health endpoint (backwards compatibility)
	r.Get("/healthz", s.HealthHandler)
	r.Head("/healthz", s.HealthHandler)

	// Kubernetes-style health probes (no auth required)
	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)
	r.Get("/health/startup", s.StartupHandler)

	if s.metricsEnabled {
		r.Handle(s.metricsPath, promhttp.Handler())
	}

	// Ceremony and credential endpoints
	r.Route("/api/v1/auth", func(r chi.Router) {
		ceremonyhttp.MountChi(r, s.ceremonyHandler)
	})

	// Risk evaluation endpoints
	r.Route("/api/v1/risk", func(r chi.Router) {
		avvhttp.MountChi(r, s.riskHandler)
	})

	return r
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server",
			logger.Int("port", s.port))

		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server",
			logger.Int("port", s.port))

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the configured router, usable with httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
