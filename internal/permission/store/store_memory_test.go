package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentgate/internal/permission"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
)

func TestSnapshotDefaultsToAllowed(t *testing.T) {
	st := NewMemoryStore()
	snap, err := st.Snapshot(context.Background(), id.NewUserID())
	require.NoError(t, err)

	assert.Equal(t, int64(0), snap.Version)
	assert.Empty(t, snap.States)
	assert.True(t, snap.Allowed("user.income"))
}

func TestApplyBumpsVersion(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	userID := id.NewUserID()
	now := time.Now().UTC()

	v, err := st.Apply(ctx, userID, []permission.Change{{AttributeID: "user.income", Allowed: false}}, 0, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	snap, err := st.Snapshot(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.False(t, snap.Allowed("user.income"))
	assert.True(t, snap.Allowed("user.email"))

	v, err = st.Apply(ctx, userID, []permission.Change{{AttributeID: "user.income", Allowed: true}}, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	snap, err = st.Snapshot(ctx, userID)
	require.NoError(t, err)
	assert.True(t, snap.Allowed("user.income"))
}

func TestApplyStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	userID := id.NewUserID()
	now := time.Now().UTC()

	_, err := st.Apply(ctx, userID, []permission.Change{{AttributeID: "user.income", Allowed: false}}, 0, now)
	require.NoError(t, err)

	_, err = st.Apply(ctx, userID, []permission.Change{{AttributeID: "user.email", Allowed: false}}, 0, now)
	require.ErrorIs(t, err, sentinel.ErrVersionConflict)

	// The losing write left no trace.
	snap, err := st.Snapshot(ctx, userID)
	require.NoError(t, err)
	assert.True(t, snap.Allowed("user.email"))
}

func TestConcurrentAppliesSerialize(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	userID := id.NewUserID()
	now := time.Now().UTC()

	const writers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := st.Snapshot(ctx, userID)
			require.NoError(t, err)
			_, err = st.Apply(ctx, userID,
				[]permission.Change{{AttributeID: "user.income", Allowed: false}},
				snap.Version, now)
			if err != nil {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	snap, err := st.Snapshot(ctx, userID)
	require.NoError(t, err)
	// Every successful write bumped the version exactly once.
	assert.Equal(t, int64(writers-conflicts), snap.Version)
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	userID := id.NewUserID()

	_, err := st.Apply(ctx, userID, []permission.Change{{AttributeID: "user.income", Allowed: false}}, 0, time.Now())
	require.NoError(t, err)

	snap, err := st.Snapshot(ctx, userID)
	require.NoError(t, err)
	snap.States["user.income"] = true

	fresh, err := st.Snapshot(ctx, userID)
	require.NoError(t, err)
	assert.False(t, fresh.Allowed("user.income"))
}
