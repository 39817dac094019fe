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

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/onestep-auth/internal/config"
	"github.com/jeremyhahn/onestep-auth/internal/rest"
	"github.com/jeremyhahn/onestep-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/onestep-auth/pkg/avv"
	"github.com/jeremyhahn/onestep-auth/pkg/ceremony"
	"github.com/jeremyhahn/onestep-auth/pkg/challenge"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
	"github.com/jeremyhahn/onestep-auth/pkg/health"
	"github.com/jeremyhahn/onestep-auth/pkg/metrics"
	"github.com/jeremyhahn/onestep-auth/pkg/ratelimit"
	"github.com/jeremyhahn/onestep-auth/pkg/session"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/onestep/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("onestep-auth REST server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("ONESTEP_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	log := buildLogger(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("Starting REST server",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.WebAuthn.RPID,
		"port", cfg.Server.Port)

	srv, cleanup, err := buildServer(cfg, log)
	if err != nil {
		slog.Error("Failed to create server", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler()

	// Start the REST server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	slog.Info("REST server started successfully", "port", srv.Port())

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errChan:
		slog.Error("Server error", slog.Any("error", err))
	}

	// Gracefully shutdown
	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownTimeout); err != nil {
		slog.Error("Error during REST server shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("REST server stopped successfully")
}

// loadConfig reads the YAML configuration, falling back to defaults when no
// config file exists at the default location.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == "/etc/onestep/config.yaml" {
		slog.Warn("No configuration file found, using defaults", "path", path)
		return config.Default(), nil
	}
	return nil, err
}

// buildLogger constructs the process-wide slog logger from the logging config.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// buildServer assembles the challenge store, credential registry, ceremony
// and risk engines, and the REST server from the loaded configuration. The
// returned cleanup function stops background workers.
func buildServer(cfg *config.Config, log *slog.Logger) (*rest.Server, func(), error) {
	var storeOpts []challenge.MemoryStoreOption
	if cfg.WebAuthn.ChallengeTTL > 0 {
		storeOpts = append(storeOpts, challenge.WithTTL(cfg.WebAuthn.ChallengeTTL))
	}
	store := challenge.NewMemoryStore(storeOpts...)
	registry := credential.NewMemoryRegistry()

	cleanups := []func(){store.Stop}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	ceremonyEngine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config: &ceremony.Config{
			RPID:          cfg.WebAuthn.RPID,
			RPDisplayName: cfg.WebAuthn.RPDisplayName,
			RPOrigin:      cfg.WebAuthn.RPOrigin,
			StrictOrigin:  cfg.WebAuthn.StrictOrigin,
		},
		ChallengeStore: store,
		Registry:       registry,
		Logger:         log,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create ceremony engine: %w", err)
	}

	denylist := avv.DefaultDenylist
	if len(cfg.Risk.ExtraDenylist) > 0 {
		denylist = append(append([]string{}, avv.DefaultDenylist...), cfg.Risk.ExtraDenylist...)
	}
	riskEngine := avv.NewEngine(avv.EngineParams{
		Denylist: denylist,
		Logger:   log,
	})

	var issuer *session.Issuer
	if cfg.Session.Enabled {
		key, err := session.LoadPrivateKeyFile(cfg.Session.KeyFile)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to load session signing key: %w", err)
		}
		issuer, err = session.NewIssuer(&session.IssuerConfig{
			PrivateKey: key,
			Issuer:     cfg.Session.Issuer,
			Audience:   cfg.Session.Audience,
			ExpiresIn:  cfg.Session.ExpiresIn,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create session issuer: %w", err)
		}
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		tlsConfig, err = cfg.TLS.LoadTLSConfig()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to load TLS configuration: %w", err)
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
			Burst:             cfg.RateLimit.Burst,
		})
		cleanups = append(cleanups, limiter.Stop)
	}

	if cfg.Metrics.Enabled {
		metrics.Enable()
		collector := metrics.StartResourceCollector(context.Background(), 30*time.Second)
		cleanups = append(cleanups, collector.Stop)
	}

	checker := health.NewChecker()
	checker.MarkStarted()

	srv, err := rest.NewServer(&rest.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		CeremonyEngine: ceremonyEngine,
		RiskEngine:     riskEngine,
		Registry:       registry,
		SessionIssuer:  issuer,
		TLSConfig:      tlsConfig,
		Logger:         logger.NewSlogAdapter(&logger.SlogConfig{Logger: log}),
		RateLimiter:    limiter,
		HealthChecker:  checker,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
