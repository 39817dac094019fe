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

import "context"

// Store issues and consumes single-use ceremony challenges.
//
// Implementations must serialize concurrent Issue calls for the same subject
// (last writer wins, no torn state) and make Consume atomic with respect to
// deletion: two racing Consume calls on the same challenge see exactly one
// success and one ErrNotFound.
type Store interface {
	// Issue creates a fresh challenge for the (subjectKey, purpose) pair.
	// Any existing live challenge for the same pair is invalidated.
	Issue(ctx context.Context, subjectKey string, purpose Purpose) (*Challenge, error)

	// Consume validates and removes the challenge for the pair.
	// Returns ErrNotFound if absent, ErrExpired if past its window, or
	// ErrMismatch if presentedNonce differs from the stored nonce.
	// The entry is removed on every outcome except ErrNotFound, making
	// challenges strictly one-shot.
	Consume(ctx context.Context, subjectKey string, purpose Purpose, presentedNonce []byte) error
}
