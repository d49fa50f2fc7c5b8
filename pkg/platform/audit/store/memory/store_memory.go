package memory

import (
	"context"
	"sync"

	id "consentgate/pkg/domain"
	audit "consentgate/pkg/platform/audit"
)

// InMemoryStore holds audit events for unit tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.UserID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.UserID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.UserID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.UserID] = append(s.events[event.UserID], event)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}

// ActionsByUser returns the actions recorded for a user in append order.
// Convenience for asserting audit trails in tests.
func (s *InMemoryStore) ActionsByUser(userID id.UserID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]string, 0, len(s.events[userID]))
	for _, event := range s.events[userID] {
		actions = append(actions, event.Action)
	}
	return actions
}
