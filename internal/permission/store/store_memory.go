package store

import (
	"context"
	"sync"
	"time"

	"consentgate/internal/permission"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
)

// MemoryStore keeps permission state in process memory. Used in tests and
// local development.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*userState
}

type userState struct {
	states  map[string]bool
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[id.UserID]*userState)}
}

func (s *MemoryStore) Snapshot(ctx context.Context, userID id.UserID) (*permission.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &permission.Snapshot{
		UserID: userID,
		States: make(map[string]bool),
	}
	if us, ok := s.users[userID]; ok {
		snap.Version = us.version
		for attrID, allowed := range us.states {
			snap.States[attrID] = allowed
		}
	}
	return snap, nil
}

func (s *MemoryStore) Apply(ctx context.Context, userID id.UserID, changes []permission.Change, expectedVersion int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	us, ok := s.users[userID]
	if !ok {
		us = &userState{states: make(map[string]bool)}
		s.users[userID] = us
	}
	if us.version != expectedVersion {
		return 0, sentinel.ErrVersionConflict
	}

	for _, c := range changes {
		us.states[c.AttributeID] = c.Allowed
	}
	us.version++
	return us.version, nil
}
