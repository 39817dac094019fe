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

package credential

import "errors"

// Sentinel errors for registry operations.
var (
	// ErrNotFound is returned when a credential cannot be found.
	ErrNotFound = errors.New("credential not found")

	// ErrDuplicateCredential is returned when the credential ID already
	// exists anywhere in the system, including under a different owner.
	// Callers must report this generically; the colliding owner's identity
	// is never part of the message.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrLimitExceeded is returned when the owner already holds the
	// maximum number of active credentials.
	ErrLimitExceeded = errors.New("active credential limit exceeded")

	// ErrCounterRegression is returned when an assertion presents a
	// counter lower than the stored one. A strict decrease signals a
	// cloned authenticator and is a security incident, not an ordinary
	// validation failure.
	ErrCounterRegression = errors.New("signature counter regression")

	// ErrInvalidCredential is returned when credential data is malformed.
	ErrInvalidCredential = errors.New("invalid credential")
)

// IsNotFound returns true if the error indicates a missing credential.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate returns true if the error indicates a credential ID collision.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateCredential)
}

// IsCounterRegression returns true if the error indicates a cloned
// authenticator signal.
func IsCounterRegression(err error) bool {
	return errors.Is(err, ErrCounterRegression)
}
