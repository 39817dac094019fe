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

// Package session mints signed session tokens once the ceremony and risk
// engines have approved an authentication attempt. Token persistence and
// revocation belong to the surrounding platform; this package only issues
// and verifies.
package session

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ClaimLoginMethod carries how the owner authenticated (biometric,
	// registration).
	ClaimLoginMethod = "login_method"

	defaultIssuer    = "onestep-auth"
	defaultExpiresIn = time.Hour
)

// Issuer mints JWT session tokens for verified owners.
type Issuer struct {
	privateKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	method     jwt.SigningMethod
	issuer     string
	audience   []string
	expiresIn  time.Duration
	now        func() time.Time
}

// IssuerConfig contains configuration for the session issuer.
type IssuerConfig struct {
	// PrivateKey is the key used to sign tokens (required). ECDSA,
	// Ed25519, and RSA keys are supported.
	PrivateKey crypto.PrivateKey

	// PublicKey is the key used to verify tokens (optional, derived from
	// PrivateKey if not set).
	PublicKey crypto.PublicKey

	// Issuer is the JWT issuer claim (default: "onestep-auth").
	Issuer string

	// Audience is the JWT audience claim (default: ["onestep-auth"]).
	Audience []string

	// ExpiresIn is how long tokens are valid (default: 1 hour).
	ExpiresIn time.Duration

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// NewIssuer creates a session issuer with the given configuration.
func NewIssuer(config *IssuerConfig) (*Issuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	method, err := signingMethodFor(config.PrivateKey)
	if err != nil {
		return nil, err
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}

	audience := config.Audience
	if len(audience) == 0 {
		audience = []string{defaultIssuer}
	}

	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = defaultExpiresIn
	}

	publicKey := config.PublicKey
	if publicKey == nil {
		type publicKeyGetter interface {
			Public() crypto.PublicKey
		}
		if pk, ok := config.PrivateKey.(publicKeyGetter); ok {
			publicKey = pk.Public()
		}
	}

	now := config.Clock
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		privateKey: config.PrivateKey,
		publicKey:  publicKey,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		expiresIn:  expiresIn,
		now:        now,
	}, nil
}

// Issue mints a signed token for a verified owner, tagged with the login
// method the ceremony or risk flow reported.
func (i *Issuer) Issue(ctx context.Context, ownerID string, loginMethod string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id is required")
	}

	now := i.now()
	claims := jwt.MapClaims{
		"iss":            i.issuer,
		"aud":            i.audience,
		"sub":            ownerID,
		"iat":            now.Unix(),
		"exp":            now.Add(i.expiresIn).Unix(),
		"nbf":            now.Unix(),
		ClaimLoginMethod: loginMethod,
	}

	token := jwt.NewWithClaims(i.method, claims)
	signed, err := token.SignedString(i.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and registered claims and returns the
// claim set.
func (i *Issuer) Verify(tokenString string) (jwt.MapClaims, error) {
	if i.publicKey == nil {
		return nil, fmt.Errorf("public key not available for verification")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience[0]),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	token, err := parser.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return i.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	return claims, nil
}

// PublicKey returns the public key for token verification.
func (i *Issuer) PublicKey() crypto.PublicKey {
	return i.publicKey
}

// IssuerClaim returns the configured issuer claim.
func (i *Issuer) IssuerClaim() string {
	return i.issuer
}

// ExpiresIn returns the token expiration duration.
func (i *Issuer) ExpiresIn() time.Duration {
	return i.expiresIn
}

// signingMethodFor selects the JWT algorithm matching the key type.
func signingMethodFor(key crypto.PrivateKey) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return jwt.SigningMethodES256, nil
		case 384:
			return jwt.SigningMethodES384, nil
		case 521:
			return jwt.SigningMethodES512, nil
		}
		return nil, fmt.Errorf("unsupported ECDSA curve: %s", k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("unsupported key type %T", key)
	}
}
