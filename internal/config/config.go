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

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Health    HealthConfig    `yaml:"health"`
	WebAuthn  WebAuthnConfig  `yaml:"webauthn"`
	Risk      RiskConfig      `yaml:"risk"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TLSConfig controls TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Client certificate verification (mTLS)
	ClientAuth string `yaml:"client_auth"` // none, request, require, verify, require_and_verify

	// TLS version and cipher suites
	MinVersion   string   `yaml:"min_version"` // TLS1.2, TLS1.3
	MaxVersion   string   `yaml:"max_version"` // TLS1.2, TLS1.3
	CipherSuites []string `yaml:"cipher_suites"`
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health check endpoint
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebAuthnConfig contains the relying-party settings for WebAuthn
// ceremonies.
type WebAuthnConfig struct {
	RPID          string `yaml:"rp_id"`
	RPDisplayName string `yaml:"rp_display_name"`
	RPOrigin      string `yaml:"rp_origin"`

	// StrictOrigin rejects assertions from non-matching origins when true.
	// Defaults to true; set false only for development setups behind
	// proxies that rewrite the origin.
	StrictOrigin *bool `yaml:"strict_origin,omitempty"`

	// ChallengeTTL is how long an issued challenge stays valid.
	ChallengeTTL time.Duration `yaml:"challenge_ttl"`
}

// RiskConfig contains risk engine settings
type RiskConfig struct {
	// ExtraDenylist adds passcodes to the built-in denylist.
	ExtraDenylist []string `yaml:"extra_denylist,omitempty"`
}

// SessionConfig controls session token issuance after a verified ceremony
type SessionConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Issuer    string        `yaml:"issuer"`
	Audience  []string      `yaml:"audience,omitempty"`
	ExpiresIn time.Duration `yaml:"expires_in"`

	// KeyFile is a PEM-encoded private key used to sign session tokens.
	KeyFile string `yaml:"key_file"`
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	// #nosec G304 - Config file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8443,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			Burst:          30,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
			Path:    "/healthz",
		},
		WebAuthn: WebAuthnConfig{
			RPID:          "localhost",
			RPDisplayName: "OneStep",
			RPOrigin:      "http://localhost:8443",
			ChallengeTTL:  5 * time.Minute,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("ONESTEP_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("ONESTEP_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid ONESTEP_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid ONESTEP_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("ONESTEP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("ONESTEP_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Relying party
	if rpID := os.Getenv("ONESTEP_RP_ID"); rpID != "" {
		cfg.WebAuthn.RPID = rpID
	}
	if rpOrigin := os.Getenv("ONESTEP_RP_ORIGIN"); rpOrigin != "" {
		cfg.WebAuthn.RPOrigin = rpOrigin
	}

	// Session signing key
	if keyFile := os.Getenv("ONESTEP_SESSION_KEY_FILE"); keyFile != "" {
		cfg.Session.KeyFile = keyFile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, error, or fatal)", c.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or console)", c.Logging.Format)
	}

	// Validate TLS settings
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	// Validate relying party settings
	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn rp_id must be specified")
	}
	if c.WebAuthn.RPOrigin == "" {
		return fmt.Errorf("webauthn rp_origin must be specified")
	}
	if c.WebAuthn.ChallengeTTL < 0 {
		return fmt.Errorf("webauthn challenge_ttl must not be negative")
	}

	// Validate rate limiting
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("ratelimit requests_per_min must be positive when enabled")
	}

	// Validate session settings
	if c.Session.Enabled {
		if c.Session.KeyFile == "" {
			return fmt.Errorf("session key_file is required when session issuance is enabled")
		}
		if c.Session.ExpiresIn < 0 {
			return fmt.Errorf("session expires_in must not be negative")
		}
	}

	return nil
}
