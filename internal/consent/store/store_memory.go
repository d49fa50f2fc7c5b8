package store

import (
	"context"
	"sort"
	"sync"

	"consentgate/internal/consent"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
)

type seqKey struct {
	userID      id.UserID
	consentType id.ConsentType
}

// MemoryStore is the in-memory ledger used by unit tests and local runs.
// It enforces the same Seq discipline as the postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[id.UserID][]consent.Record
	seqs    map[seqKey]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[id.UserID][]consent.Record),
		seqs:    make(map[seqKey]int64),
	}
}

func (s *MemoryStore) Append(_ context.Context, rec *consent.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seqKey{userID: rec.UserID, consentType: rec.ConsentType}
	s.seqs[key]++
	rec.Seq = s.seqs[key]

	s.records[rec.UserID] = append(s.records[rec.UserID], *rec)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, userID id.UserID, consentType id.ConsentType) (*consent.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *consent.Record
	for i := range s.records[userID] {
		rec := s.records[userID][i]
		if rec.ConsentType != consentType {
			continue
		}
		if latest == nil || rec.Seq > latest.Seq {
			cp := rec
			latest = &cp
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) List(_ context.Context, userID id.UserID, consentType *id.ConsentType, limit int) ([]consent.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]consent.Record, 0, len(s.records[userID]))
	for _, rec := range s.records[userID] {
		if consentType != nil && rec.ConsentType != *consentType {
			continue
		}
		out = append(out, rec)
	}

	// Reverse chronological with a stable tiebreak on Seq then ID so repeated
	// reads return identical order.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].Seq != out[j].Seq {
			return out[i].Seq > out[j].Seq
		}
		return out[i].ID.String() > out[j].ID.String()
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkExpired(_ context.Context, recordID id.ConsentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID := range s.records {
		for i := range s.records[userID] {
			if s.records[userID][i].ID == recordID {
				if s.records[userID][i].Status != consent.StatusGranted {
					return sentinel.ErrConflict
				}
				s.records[userID][i].Status = consent.StatusExpired
				return nil
			}
		}
	}
	return sentinel.ErrNotFound
}
