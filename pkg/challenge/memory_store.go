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

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/jeremyhahn/onestep-auth/pkg/metrics"
)

// MemoryStore is an in-memory implementation of Store. A single mutex guards
// the challenge map, giving the linearizability the Store contract requires
// within one process. Production deployments back the same interface with a
// shared store.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[storeKey]*Challenge
	ttl        time.Duration
	now        func() time.Time

	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopOnce      sync.Once
}

type storeKey struct {
	subject string
	purpose Purpose
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithTTL overrides the default 5-minute challenge TTL.
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithSweepInterval overrides how often the expiry sweep runs.
func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.sweepInterval = interval
	}
}

// NewMemoryStore creates a new in-memory challenge store and starts its
// background expiry sweep. Call Stop to terminate the sweep.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		challenges:    make(map[storeKey]*Challenge),
		ttl:           DefaultTTL,
		now:           time.Now,
		sweepInterval: time.Minute,
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepWorker()
	return s
}

// Issue creates a fresh challenge for the (subjectKey, purpose) pair,
// overwriting any existing live challenge for the same pair.
func (s *MemoryStore) Issue(ctx context.Context, subjectKey string, purpose Purpose) (*Challenge, error) {
	if subjectKey == "" {
		return nil, ErrInvalidSubject
	}
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	now := s.now()
	ch := &Challenge{
		SubjectKey: subjectKey,
		Purpose:    purpose,
		Nonce:      nonce,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[storeKey{subjectKey, purpose}] = ch
	metrics.SetChallengesActive(float64(len(s.challenges)))
	return ch, nil
}

// Consume validates and removes the challenge for the pair. The entry is
// removed on every outcome except ErrNotFound; a second Consume with the
// same nonce always returns ErrNotFound.
func (s *MemoryStore) Consume(ctx context.Context, subjectKey string, purpose Purpose, presentedNonce []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{subjectKey, purpose}
	ch, ok := s.challenges[key]
	if !ok {
		return ErrNotFound
	}

	// One-shot: the entry is gone whether validation succeeds or fails.
	delete(s.challenges, key)
	metrics.SetChallengesActive(float64(len(s.challenges)))

	if ch.Expired(s.now()) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare(ch.Nonce, presentedNonce) != 1 {
		return ErrMismatch
	}
	return nil
}

// Count returns the number of live challenges in the store.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Clear removes all challenges from the store.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = make(map[storeKey]*Challenge)
}

// Sweep removes expired challenges that were never consumed and returns the
// number removed. The background worker calls this on a fixed interval;
// it is exported so network-backed deployments can trigger it directly.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, ch := range s.challenges {
		if ch.Expired(now) {
			delete(s.challenges, key)
			removed++
		}
	}
	metrics.SetChallengesActive(float64(len(s.challenges)))
	return removed
}

// Stop terminates the background expiry sweep. Safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)
	})
}

// sweepWorker periodically removes expired entries, bounding store growth
// when clients abandon ceremonies.
func (s *MemoryStore) sweepWorker() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopSweep:
			return
		}
	}
}
