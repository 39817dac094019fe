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

package challenge

import "errors"

// Sentinel errors for challenge operations. All three are recoverable by
// issuing a fresh challenge; none are retried automatically.
var (
	// ErrNotFound is returned when no live challenge exists for the
	// (subject, purpose) pair, including when it was already consumed.
	ErrNotFound = errors.New("challenge not found")

	// ErrExpired is returned when the challenge exists but its validity
	// window has passed.
	ErrExpired = errors.New("challenge expired")

	// ErrMismatch is returned when the presented nonce does not match the
	// stored nonce.
	ErrMismatch = errors.New("challenge mismatch")

	// ErrInvalidPurpose is returned when a purpose outside the defined set
	// is supplied.
	ErrInvalidPurpose = errors.New("invalid challenge purpose")

	// ErrInvalidSubject is returned when the subject key is empty.
	ErrInvalidSubject = errors.New("invalid subject key")
)

// IsNotFound returns true if the error indicates a missing or consumed challenge.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsExpired returns true if the error indicates an expired challenge.
func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}

// IsMismatch returns true if the error indicates a nonce mismatch.
func IsMismatch(err error) bool {
	return errors.Is(err, ErrMismatch)
}
