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

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/jeremyhahn/onestep-auth/pkg/metrics"
)

// MemoryRegistry is an in-memory implementation of Registry. A single mutex
// makes the check-then-insert in Register and the counter update in
// RecordSuccessfulAssertion atomic. Production deployments back the Registry
// interface with a durable store honoring the same guarantees.
type MemoryRegistry struct {
	mu      sync.RWMutex
	byID    map[string]*Credential
	byOwner map[string][]string // owner key -> credential keys, insertion order
	now     func() time.Time
}

// MemoryRegistryOption configures a MemoryRegistry.
type MemoryRegistryOption func(*MemoryRegistry)

// WithRegistryClock overrides the time source, for tests.
func WithRegistryClock(now func() time.Time) MemoryRegistryOption {
	return func(r *MemoryRegistry) {
		r.now = now
	}
}

// NewMemoryRegistry creates a new in-memory credential registry.
func NewMemoryRegistry(opts ...MemoryRegistryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		byID:    make(map[string]*Credential),
		byOwner: make(map[string][]string),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindActiveByOwner returns the owner's active credentials.
func (r *MemoryRegistry) FindActiveByOwner(ctx context.Context, ownerID []byte) ([]*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*Credential{}
	for _, credKey := range r.byOwner[hex.EncodeToString(ownerID)] {
		if cred := r.byID[credKey]; cred != nil && cred.Active {
			result = append(result, cred.Clone())
		}
	}
	return result, nil
}

// FindByCredentialID returns the credential with the given ID, active or not.
func (r *MemoryRegistry) FindByCredentialID(ctx context.Context, credID []byte) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrNotFound
	}
	return cred.Clone(), nil
}

// Register inserts a new active credential with a zero signature counter.
func (r *MemoryRegistry) Register(ctx context.Context, ownerID, credID, publicKey []byte, class DeviceClass) (*Credential, error) {
	if len(credID) == 0 || len(ownerID) == 0 || len(publicKey) == 0 {
		return nil, ErrInvalidCredential
	}
	if class == "" {
		class = DeviceClassUnknown
	}

	credKey := hex.EncodeToString(credID)
	ownerKey := hex.EncodeToString(ownerID)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Uniqueness is global, regardless of who owns the colliding record.
	if _, exists := r.byID[credKey]; exists {
		return nil, ErrDuplicateCredential
	}

	active := 0
	for _, key := range r.byOwner[ownerKey] {
		if c := r.byID[key]; c != nil && c.Active {
			active++
		}
	}
	if active >= MaxActivePerOwner {
		return nil, ErrLimitExceeded
	}

	cred := &Credential{
		ID:               append([]byte(nil), credID...),
		OwnerID:          append([]byte(nil), ownerID...),
		PublicKey:        append([]byte(nil), publicKey...),
		SignatureCounter: 0,
		DeviceClass:      class,
		Active:           true,
		CreatedAt:        r.now().UTC(),
	}

	r.byID[credKey] = cred
	r.byOwner[ownerKey] = append(r.byOwner[ownerKey], credKey)
	metrics.SetCredentialsTotal(float64(len(r.byID)))
	return cred.Clone(), nil
}

// RecordSuccessfulAssertion accepts the counter presented by a verified
// assertion. The stored counter is untouched when the update is rejected.
func (r *MemoryRegistry) RecordSuccessfulAssertion(ctx context.Context, credID []byte, newCounter uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrNotFound
	}
	if newCounter < cred.SignatureCounter {
		return ErrCounterRegression
	}

	cred.SignatureCounter = newCounter
	cred.LastUsedAt = r.now().UTC()
	return nil
}

// Deactivate flips the credential to inactive, retaining it for audit.
func (r *MemoryRegistry) Deactivate(ctx context.Context, credID []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred, ok := r.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrNotFound
	}
	cred.Active = false
	return nil
}

// Count returns the total number of credentials, active and inactive.
func (r *MemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Clear removes all credentials from the registry.
func (r *MemoryRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]*Credential)
	r.byOwner = make(map[string][]string)
}
