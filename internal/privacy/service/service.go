// Package service computes privacy scores from permission state, with a
// read-through cache in front.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"consentgate/internal/catalog"
	"consentgate/internal/permission/store"
	"consentgate/internal/platform/metrics"
	"consentgate/internal/privacy"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/sentinel"
)

// Cache is the score cache. Misses are sentinel.ErrNotFound.
type Cache interface {
	Get(ctx context.Context, userID id.UserID) (*privacy.Score, time.Duration, error)
	Set(ctx context.Context, userID id.UserID, score privacy.Score) error
	Invalidate(ctx context.Context, userID id.UserID) error
}

// Service derives privacy scores. Cache and metrics may be nil.
type Service struct {
	registry catalog.Registry
	store    store.Store
	cache    Cache
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(registry catalog.Registry, st store.Store, cache Cache, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		store:    st,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// Result is a score plus its cache provenance.
type Result struct {
	privacy.Score
	Cached   bool
	CacheAge time.Duration
}

// GetScore returns the user's privacy score, from cache when fresh. Two reads
// with no intervening permission change return the same score.
func (s *Service) GetScore(ctx context.Context, userID id.UserID, refresh bool) (*Result, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}

	if !refresh && s.cache != nil {
		cached, age, err := s.cache.Get(ctx, userID)
		if err == nil {
			s.metrics.IncScoreCacheHit()
			return &Result{Score: *cached, Cached: true, CacheAge: age}, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "privacy score cache read failed",
				"user_id", userID, "error", err)
		}
		s.metrics.IncScoreCacheMiss()
	}

	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load permissions")
	}

	allowed := 0
	for _, cat := range s.registry.Categories() {
		for _, attr := range cat.Attributes {
			if snap.Allowed(attr.ID) {
				allowed++
			}
		}
	}
	score := privacy.Compute(allowed, s.registry.Size())

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, score); err != nil {
			s.logger.WarnContext(ctx, "privacy score cache write failed",
				"user_id", userID, "error", err)
		}
	}
	return &Result{Score: score}, nil
}

// Invalidate drops the cached score. The permission service calls it after
// every committed change.
func (s *Service) Invalidate(ctx context.Context, userID id.UserID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}
