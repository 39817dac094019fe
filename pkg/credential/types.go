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

// Package credential provides the durable registry of biometric WebAuthn
// credentials. Credential IDs are globally unique across all owners per the
// WebAuthn specification, each owner is capped at a fixed number of active
// credentials, and signature counters are monotonically non-decreasing so a
// regression can be treated as evidence of a cloned authenticator.
package credential

import "time"

// MaxActivePerOwner is the maximum number of active credentials an owner
// may hold. Registration beyond this cap fails with ErrLimitExceeded.
const MaxActivePerOwner = 3

// DeviceClass is the categorical device/biometric type reported at
// registration. Informational only; it never participates in verification.
type DeviceClass string

const (
	DeviceClassTouch    DeviceClass = "touch"
	DeviceClassFace     DeviceClass = "face"
	DeviceClassSecurity DeviceClass = "security_key"
	DeviceClassUnknown  DeviceClass = "unknown"
)

// Credential is a registered public-key authenticator record tied to one owner.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Globally unique across all owners.
	ID []byte `json:"id"`

	// OwnerID is the user that exclusively owns this credential.
	OwnerID []byte `json:"owner_id"`

	// PublicKey is the credential public key in COSE format, used to
	// verify future assertions.
	PublicKey []byte `json:"public_key"`

	// SignatureCounter is the monotonically non-decreasing counter used
	// for clone detection.
	SignatureCounter uint32 `json:"signature_counter"`

	// DeviceClass is the device/biometric type reported at registration.
	DeviceClass DeviceClass `json:"device_class"`

	// Active is false once the credential has been revoked. Deactivated
	// credentials are retained for audit and excluded from authentication.
	Active bool `json:"active"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication
	// ceremony.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// Clone returns a deep copy so callers can't mutate registry state through
// a returned credential.
func (c *Credential) Clone() *Credential {
	out := *c
	out.ID = append([]byte(nil), c.ID...)
	out.OwnerID = append([]byte(nil), c.OwnerID...)
	out.PublicKey = append([]byte(nil), c.PublicKey...)
	return &out
}
