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
	"errors"
	"fmt"

	"github.com/jeremyhahn/onestep-auth/pkg/challenge"
	"github.com/jeremyhahn/onestep-auth/pkg/credential"
)

// Sentinel errors for ceremony verification. Every rejection reason is
// distinguishable so the caller can decide between re-issuing a challenge
// and hard-failing.
var (
	// ErrTypeMismatch is returned when the client data type does not match
	// the ceremony being finished (e.g. a "webauthn.get" payload sent to
	// the registration flow).
	ErrTypeMismatch = errors.New("client data type mismatch")

	// ErrOriginMismatch is returned when the origin echoed in the client
	// data does not exactly equal the configured relying-party origin.
	ErrOriginMismatch = errors.New("origin mismatch")

	// ErrUnknownCredential is returned when the assertion references a
	// credential that does not resolve for the authenticating owner.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrInactiveCredential is returned when the referenced credential has
	// been revoked.
	ErrInactiveCredential = errors.New("credential deactivated")

	// ErrSignatureInvalid is returned when the assertion signature does
	// not verify against the stored public key.
	ErrSignatureInvalid = errors.New("assertion signature invalid")

	// ErrUserPresenceRequired is returned when the authenticator data does
	// not carry the user-presence flag.
	ErrUserPresenceRequired = errors.New("user presence flag not set")

	// ErrMalformedResponse is returned when the client response cannot be
	// interpreted (undecodable challenge, unparsable public key, missing
	// attestation data).
	ErrMalformedResponse = errors.New("malformed authenticator response")

	// ErrNotConfigured is returned when the engine was not built through
	// NewEngine.
	ErrNotConfigured = errors.New("ceremony engine not configured")
)

// CeremonyError wraps an error with the verification step that produced it.
type CeremonyError struct {
	Op  string // Verification step that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapErr wraps an error with a verification step name if it's not nil.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CeremonyError{Op: op, Err: err}
}

// IsChallengeError returns true when the rejection is recoverable by
// requesting a fresh challenge.
func IsChallengeError(err error) bool {
	return errors.Is(err, challenge.ErrNotFound) ||
		errors.Is(err, challenge.ErrExpired) ||
		errors.Is(err, challenge.ErrMismatch)
}

// IsSecurityCritical returns true for rejections that must be routed to
// security-event logging rather than surfaced as ordinary failures.
func IsSecurityCritical(err error) bool {
	return errors.Is(err, credential.ErrCounterRegression) ||
		errors.Is(err, credential.ErrDuplicateCredential)
}
