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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner      = []byte("owner-1")
	otherOwner = []byte("owner-2")
	testPubKey = []byte{0xa5, 0x01, 0x02} // opaque COSE bytes as far as the registry cares
)

func TestMemoryRegistry_Register(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	cred, err := reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), cred.SignatureCounter)
	assert.True(t, cred.Active)
	assert.Equal(t, DeviceClassTouch, cred.DeviceClass)
	assert.False(t, cred.CreatedAt.IsZero())
	assert.True(t, cred.LastUsedAt.IsZero())
}

func TestMemoryRegistry_Register_InvalidInput(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.Register(ctx, owner, nil, testPubKey, DeviceClassTouch)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = reg.Register(ctx, nil, []byte("cred-1"), testPubKey, DeviceClassTouch)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = reg.Register(ctx, owner, []byte("cred-1"), nil, DeviceClassTouch)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestMemoryRegistry_Register_DuplicateAcrossOwners(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)

	// Same owner.
	_, err = reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	assert.ErrorIs(t, err, ErrDuplicateCredential)

	// Different owner: credential IDs are globally unique.
	_, err = reg.Register(ctx, otherOwner, []byte("cred-1"), testPubKey, DeviceClassFace)
	assert.ErrorIs(t, err, ErrDuplicateCredential)
}

func TestMemoryRegistry_Register_LimitExceeded(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	for i := 0; i < MaxActivePerOwner; i++ {
		_, err := reg.Register(ctx, owner, []byte(fmt.Sprintf("cred-%d", i)), testPubKey, DeviceClassTouch)
		require.NoError(t, err)
	}

	_, err := reg.Register(ctx, owner, []byte("cred-overflow"), testPubKey, DeviceClassTouch)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	// The cap counts active credentials only; deactivating frees a slot.
	require.NoError(t, reg.Deactivate(ctx, []byte("cred-0")))
	_, err = reg.Register(ctx, owner, []byte("cred-overflow"), testPubKey, DeviceClassTouch)
	assert.NoError(t, err)
}

func TestMemoryRegistry_Register_ConcurrentSameID(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	const racers = 16
	var successes atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < racers; i++ {
		owner := []byte(fmt.Sprintf("owner-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := reg.Register(ctx, owner, []byte("contended"), testPubKey, DeviceClassTouch); err == nil {
				successes.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "check-then-insert must be atomic")
	assert.Equal(t, 1, reg.Count())
}

func TestMemoryRegistry_FindActiveByOwner(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	creds, err := reg.FindActiveByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, creds)

	_, err = reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)
	_, err = reg.Register(ctx, owner, []byte("cred-2"), testPubKey, DeviceClassFace)
	require.NoError(t, err)
	_, err = reg.Register(ctx, otherOwner, []byte("cred-3"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)

	require.NoError(t, reg.Deactivate(ctx, []byte("cred-2")))

	creds, err = reg.FindActiveByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, []byte("cred-1"), creds[0].ID)
}

func TestMemoryRegistry_FindByCredentialID(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.FindByCredentialID(ctx, []byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)

	cred, err := reg.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, owner, cred.OwnerID)

	// Deactivated credentials remain findable for audit.
	require.NoError(t, reg.Deactivate(ctx, []byte("cred-1")))
	cred, err = reg.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.False(t, cred.Active)
}

func TestMemoryRegistry_RecordSuccessfulAssertion(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)

	require.NoError(t, reg.RecordSuccessfulAssertion(ctx, []byte("cred-1"), 5))

	cred, err := reg.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), cred.SignatureCounter)
	assert.False(t, cred.LastUsedAt.IsZero())

	// Equal counter is tolerated (authenticators without counter support).
	require.NoError(t, reg.RecordSuccessfulAssertion(ctx, []byte("cred-1"), 5))
}

func TestMemoryRegistry_RecordSuccessfulAssertion_Regression(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)
	require.NoError(t, reg.RecordSuccessfulAssertion(ctx, []byte("cred-1"), 10))

	err = reg.RecordSuccessfulAssertion(ctx, []byte("cred-1"), 9)
	assert.ErrorIs(t, err, ErrCounterRegression)

	// The stored counter is never mutated by a rejected update.
	cred, err := reg.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(10), cred.SignatureCounter)
}

func TestMemoryRegistry_RecordSuccessfulAssertion_NotFound(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	err := reg.RecordSuccessfulAssertion(ctx, []byte("missing"), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRegistry_Deactivate(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	err := reg.Deactivate(ctx, []byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)
	require.NoError(t, reg.Deactivate(ctx, []byte("cred-1")))

	// Never physically deleted.
	assert.Equal(t, 1, reg.Count())
}

func TestMemoryRegistry_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	reg := NewMemoryRegistry()

	_, err := reg.Register(ctx, owner, []byte("cred-1"), testPubKey, DeviceClassTouch)
	require.NoError(t, err)

	cred, err := reg.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	cred.SignatureCounter = 999
	cred.PublicKey[0] = 0xff

	stored, err := reg.FindByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), stored.SignatureCounter)
	assert.Equal(t, testPubKey[0], stored.PublicKey[0])
}
