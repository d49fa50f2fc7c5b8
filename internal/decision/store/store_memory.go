package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentgate/internal/decision"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
)

// MemoryStore keeps decisions in process memory. Used in tests and local
// development.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions map[id.DecisionID]*decision.Decision
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: make(map[id.DecisionID]*decision.Decision)}
}

func (s *MemoryStore) Insert(_ context.Context, d *decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decisions[d.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := cloneDecision(d)
	s.decisions[d.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, decisionID id.DecisionID) (*decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.decisions[decisionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := cloneDecision(d)
	return &cp, nil
}

func (s *MemoryStore) ListForReview(_ context.Context, filter ReviewFilter) ([]decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []decision.Decision
	for _, d := range s.decisions {
		if d.HumanReview != nil {
			continue
		}
		if !matchesReviewFilter(d, filter) {
			continue
		}
		out = append(out, cloneDecision(d))
	}

	// Oldest first, ID as a stable tie break.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesReviewFilter(d *decision.Decision, filter ReviewFilter) bool {
	lowConfidence := d.Model.Confidence < ReviewConfidenceThreshold
	flagged := d.Status == decision.StatusFlagged

	switch {
	case filter.FlaggedOnly:
		return flagged
	case filter.LowConfidence:
		return lowConfidence
	default:
		return lowConfidence || flagged
	}
}

func (s *MemoryStore) SetHumanReview(_ context.Context, decisionID id.DecisionID, review decision.HumanReview, newStatus decision.Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[decisionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if d.HumanReview != nil {
		return sentinel.ErrConflict
	}

	r := review
	d.HumanReview = &r
	d.Status = newStatus
	d.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SetFeedback(_ context.Context, decisionID id.DecisionID, feedback decision.Feedback, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[decisionID]
	if !ok {
		return sentinel.ErrNotFound
	}

	f := feedback
	d.Feedback = &f
	d.UpdatedAt = now
	return nil
}

func cloneDecision(d *decision.Decision) decision.Decision {
	cp := *d
	cp.AttributesUsed = append([]string(nil), d.AttributesUsed...)
	cp.Explanation.Factors = append([]decision.Factor(nil), d.Explanation.Factors...)
	cp.Explanation.Recommendations = append([]string(nil), d.Explanation.Recommendations...)
	if d.HumanReview != nil {
		r := *d.HumanReview
		cp.HumanReview = &r
	}
	if d.Feedback != nil {
		f := *d.Feedback
		cp.Feedback = &f
	}
	return cp
}
