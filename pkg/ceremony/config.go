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

package ceremony

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/onestep-auth/pkg/challenge"
)

// Config configures the ceremony engine.
type Config struct {
	// RPID is the Relying Party identifier, typically the domain name.
	// Example: "onestep.example"
	RPID string `yaml:"id" json:"id"`

	// RPDisplayName is the human-readable name of the Relying Party.
	RPDisplayName string `yaml:"display_name" json:"display_name"`

	// RPOrigin is the expected web origin a client response must echo
	// back. Compared with exact string equality, never by prefix; origin
	// confusion is a spoofing vector.
	// Example: "https://onestep.example"
	RPOrigin string `yaml:"origin" json:"origin"`

	// StrictOrigin controls origin enforcement. When false, origin
	// mismatches are logged but not rejected. Only ever disable this in
	// non-production configurations.
	// Default: true
	StrictOrigin *bool `yaml:"strict_origin" json:"strict_origin"`

	// ChallengeTTL is the validity window for issued challenges.
	// Default: 5 minutes
	ChallengeTTL time.Duration `yaml:"challenge_ttl" json:"challenge_ttl"`
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("RPID is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("RPDisplayName is required")
	}
	if c.RPOrigin == "" {
		return fmt.Errorf("RPOrigin is required")
	}
	if !strings.HasPrefix(c.RPOrigin, "https://") && !strings.HasPrefix(c.RPOrigin, "http://localhost") {
		return fmt.Errorf("RPOrigin must be an https origin (or http://localhost for development): %s", c.RPOrigin)
	}
	if strings.HasSuffix(c.RPOrigin, "/") {
		return fmt.Errorf("RPOrigin must not carry a trailing slash: %s", c.RPOrigin)
	}
	if c.ChallengeTTL < 0 {
		return fmt.Errorf("ChallengeTTL must be positive")
	}
	return nil
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.StrictOrigin == nil {
		strict := true
		c.StrictOrigin = &strict
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = challenge.DefaultTTL
	}
}

// OriginStrict reports whether origin mismatches reject the ceremony.
func (c *Config) OriginStrict() bool {
	return c.StrictOrigin == nil || *c.StrictOrigin
}
