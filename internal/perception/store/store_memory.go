package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentgate/internal/perception"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
)

type attrKey struct {
	userID   id.UserID
	category string
	label    string
}

// MemoryStore keeps perception state in process memory. Used in tests and
// local development.
type MemoryStore struct {
	mu       sync.RWMutex
	attrs    map[attrKey]*perception.Attribute
	disputes []*perception.Dispute
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attrs: make(map[attrKey]*perception.Attribute)}
}

func (s *MemoryStore) Upsert(_ context.Context, attr *perception.Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attrKey{attr.UserID, attr.Category, attr.Label}
	if existing, ok := s.attrs[key]; ok {
		existing.Confidence = attr.Confidence
		existing.Evidence = append([]string(nil), attr.Evidence...)
		existing.UpdatedAt = attr.UpdatedAt
		return nil
	}

	cp := cloneAttribute(attr)
	s.attrs[key] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, userID id.UserID) ([]perception.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []perception.Attribute
	for key, attr := range s.attrs {
		if key.userID == userID {
			out = append(out, cloneAttribute(attr))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, userID id.UserID, category, label string) (*perception.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attr, ok := s.attrs[attrKey{userID, category, label}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := cloneAttribute(attr)
	return &cp, nil
}

func (s *MemoryStore) MarkDisputed(_ context.Context, userID id.UserID, category, label, reason, correction string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, ok := s.attrs[attrKey{userID, category, label}]
	if !ok {
		return sentinel.ErrNotFound
	}
	if attr.Status != perception.StatusActive {
		return sentinel.ErrInvalidState
	}

	attr.Status = perception.StatusDisputed
	attr.DisputeReason = reason
	attr.ProposedCorrection = correction
	attr.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SetResolution(_ context.Context, userID id.UserID, category, label, newLabel string, newStatus perception.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := attrKey{userID, category, label}
	attr, ok := s.attrs[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	if attr.Status != perception.StatusDisputed {
		return sentinel.ErrInvalidState
	}

	attr.Status = newStatus
	attr.DisputeReason = ""
	attr.ProposedCorrection = ""
	attr.UpdatedAt = now
	if newLabel != "" && newLabel != label {
		attr.Label = newLabel
		delete(s.attrs, key)
		s.attrs[attrKey{userID, category, newLabel}] = attr
	}
	return nil
}

func (s *MemoryStore) AppendEvidence(_ context.Context, userID id.UserID, category, label string, evidence []string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attr, ok := s.attrs[attrKey{userID, category, label}]
	if !ok {
		return sentinel.ErrNotFound
	}

	attr.Evidence = append(attr.Evidence, evidence...)
	attr.UpdatedAt = now
	return nil
}

func (s *MemoryStore) AppendDispute(_ context.Context, d *perception.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneDispute(d)
	s.disputes = append(s.disputes, &cp)
	return nil
}

func (s *MemoryStore) OpenDispute(_ context.Context, userID id.UserID, category, label string) (*perception.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.disputes) - 1; i >= 0; i-- {
		d := s.disputes[i]
		if d.UserID == userID && d.Category == category && d.Label == label && d.ResolvedAt == nil {
			cp := cloneDispute(d)
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListDisputes(_ context.Context, userID id.UserID) ([]perception.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []perception.Dispute
	for _, d := range s.disputes {
		if d.UserID == userID {
			out = append(out, cloneDispute(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) ResolveDispute(_ context.Context, disputeID id.DisputeID, resolvedBy string, outcome perception.ResolveOutcome, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.disputes {
		if d.ID != disputeID {
			continue
		}
		if d.ResolvedAt != nil {
			return sentinel.ErrInvalidState
		}
		d.ResolvedBy = resolvedBy
		d.Outcome = outcome
		at := resolvedAt
		d.ResolvedAt = &at
		return nil
	}
	return sentinel.ErrNotFound
}

func cloneAttribute(a *perception.Attribute) perception.Attribute {
	cp := *a
	cp.Evidence = append([]string(nil), a.Evidence...)
	return cp
}

func cloneDispute(d *perception.Dispute) perception.Dispute {
	cp := *d
	if d.ResolvedAt != nil {
		at := *d.ResolvedAt
		cp.ResolvedAt = &at
	}
	return cp
}
