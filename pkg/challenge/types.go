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

// Package challenge provides single-use, time-boxed cryptographic challenges
// that bind a WebAuthn ceremony instance to a subject. A challenge is issued
// for a (subject, purpose) pair, round-tripped through the client, and
// consumed exactly once on the first verification attempt.
package challenge

import "time"

// Purpose identifies the ceremony a challenge was issued for.
type Purpose string

const (
	// PurposeRegister binds a challenge to a registration ceremony.
	PurposeRegister Purpose = "REGISTER"

	// PurposeAuthenticate binds a challenge to an authentication ceremony.
	PurposeAuthenticate Purpose = "AUTHENTICATE"
)

// Valid reports whether the purpose is one of the defined ceremony purposes.
func (p Purpose) Valid() bool {
	return p == PurposeRegister || p == PurposeAuthenticate
}

// NonceSize is the number of random bytes in a challenge nonce.
// The WebAuthn specification requires at least 16 bytes; 32 is used
// throughout for extra margin.
const NonceSize = 32

// DefaultTTL is how long an issued challenge remains consumable.
const DefaultTTL = 5 * time.Minute

// Challenge is a single-use nonce bound to a subject and ceremony purpose.
// The nonce is opaque to the client beyond round-tripping it back inside
// the signed client data.
type Challenge struct {
	// SubjectKey is the identity the challenge is bound to. During
	// registration this may be a provisional identifier when no user
	// exists yet.
	SubjectKey string `json:"subject_key"`

	// Purpose is the ceremony the challenge was issued for.
	Purpose Purpose `json:"purpose"`

	// Nonce is the cryptographically random challenge value.
	Nonce []byte `json:"nonce"`

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the challenge stops being consumable.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its validity window.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
