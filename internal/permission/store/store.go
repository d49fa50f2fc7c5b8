// Package store persists per-user attribute permission state. Batch updates
// are guarded by an optimistic per-user version so concurrent writers cannot
// silently overwrite each other.
package store

import (
	"context"
	"time"

	"consentgate/internal/permission"
	id "consentgate/pkg/domain"
)

// Store is the persistence boundary for attribute permissions.
//
// Snapshot returns the current state for a user, version 0 and no entries for
// users who never changed anything.
//
// Apply writes a batch of toggles if and only if the stored version still
// equals expectedVersion, then bumps the version and returns the new one.
// A stale expectedVersion yields sentinel.ErrVersionConflict; callers re-read
// and retry.
type Store interface {
	Snapshot(ctx context.Context, userID id.UserID) (*permission.Snapshot, error)
	Apply(ctx context.Context, userID id.UserID, changes []permission.Change, expectedVersion int64, now time.Time) (int64, error)
}
