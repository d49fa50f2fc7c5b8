// Package store persists AI decision records. Rows are insert-only; the only
// mutations are the write-once human review (check-and-set) and the
// repeatable feedback annotation.
package store

import (
	"context"
	"time"

	"consentgate/internal/decision"
	id "consentgate/pkg/domain"
)

// ReviewFilter selects decisions for the review queue.
type ReviewFilter struct {
	LowConfidence bool
	FlaggedOnly   bool
	Limit         int
}

// ReviewConfidenceThreshold marks decisions as low-confidence for the
// review queue.
const ReviewConfidenceThreshold = 0.7

// Store is the persistence boundary for decisions.
//
// SetHumanReview atomically sets the review and the resulting status if and
// only if no review exists yet; a second reviewer gets
// sentinel.ErrConflict. SetFeedback replaces any prior feedback.
type Store interface {
	Insert(ctx context.Context, d *decision.Decision) error
	Get(ctx context.Context, decisionID id.DecisionID) (*decision.Decision, error)
	ListForReview(ctx context.Context, filter ReviewFilter) ([]decision.Decision, error)
	SetHumanReview(ctx context.Context, decisionID id.DecisionID, review decision.HumanReview, newStatus decision.Status, now time.Time) error
	SetFeedback(ctx context.Context, decisionID id.DecisionID, feedback decision.Feedback, now time.Time) error
}
