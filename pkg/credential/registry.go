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

import "context"

// Registry is the durable lookup and mutation surface for credentials.
//
// Implementations must make Register's uniqueness check atomic with the
// insert, so two concurrent registrations of the same credential ID cannot
// both pass the duplicate check, and must never mutate the stored counter
// when RecordSuccessfulAssertion rejects a regression.
type Registry interface {
	// FindActiveByOwner returns the owner's active credentials.
	// Deactivated credentials are excluded. Returns an empty slice when
	// the owner has none.
	FindActiveByOwner(ctx context.Context, ownerID []byte) ([]*Credential, error)

	// FindByCredentialID returns the credential with the given ID,
	// active or not. Returns ErrNotFound if it does not exist.
	FindByCredentialID(ctx context.Context, credID []byte) (*Credential, error)

	// Register inserts a new active credential with a zero signature
	// counter. Fails with ErrDuplicateCredential if the ID exists anywhere
	// in the system, or ErrLimitExceeded if the owner already holds
	// MaxActivePerOwner active credentials.
	Register(ctx context.Context, ownerID, credID, publicKey []byte, class DeviceClass) (*Credential, error)

	// RecordSuccessfulAssertion accepts the counter presented by a
	// verified assertion. Fails with ErrCounterRegression when newCounter
	// is strictly less than the stored counter (equal is tolerated for
	// authenticators without counter support); otherwise stores the new
	// counter and stamps LastUsedAt.
	RecordSuccessfulAssertion(ctx context.Context, credID []byte, newCounter uint32) error

	// Deactivate flips the credential to inactive. The record is retained
	// for audit; it is never physically deleted.
	Deactivate(ctx context.Context, credID []byte) error
}
