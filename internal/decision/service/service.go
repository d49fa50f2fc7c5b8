// Package service orchestrates the AI decision recorder: validation,
// record-then-respond persistence, the review queue, the write-once human
// review, and the repeatable feedback annotation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"consentgate/internal/decision"
	"consentgate/internal/decision/store"
	"consentgate/internal/platform/metrics"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/sentinel"
	pstrings "consentgate/pkg/platform/strings"
	"consentgate/pkg/requestcontext"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 200
)

// AttributeFilter resolves which attributes an AI computation may read.
// The permission service implements it.
type AttributeFilter interface {
	FilterAllowed(ctx context.Context, userID id.UserID, requested []string) (allowed, denied []string, err error)
}

// Auditor emits compliance audit events. Decision writes are fail-closed:
// a decision the audit trail cannot account for must not be reported as
// recorded.
type Auditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// OpsTracker emits fire-and-forget operational events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.OpsEvent)
}

// Service records and annotates AI decisions.
type Service struct {
	store       store.Store
	permissions AttributeFilter
	auditor     Auditor
	ops         OpsTracker
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(st store.Store, permissions AttributeFilter, auditor Auditor, ops OpsTracker, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:       st,
		permissions: permissions,
		auditor:     auditor,
		ops:         ops,
		metrics:     m,
		logger:      logger,
	}
}

// Record validates and persists a decision. Nothing invalid reaches the
// store; nothing recorded goes unaudited.
func (s *Service) Record(ctx context.Context, d *decision.Decision) (*decision.Decision, error) {
	if d.ID.IsNil() {
		d.ID = id.NewDecisionID()
	}
	now := requestcontext.Now(ctx)
	d.CreatedAt = now
	d.UpdatedAt = now
	d.AttributesUsed = pstrings.DedupeAndTrim(d.AttributesUsed)
	d.HumanReview = nil
	d.Feedback = nil

	if err := decision.Validate(d); err != nil {
		return nil, err
	}

	if err := s.store.Insert(ctx, d); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to record decision")
	}

	if err := s.emitAudit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		UserID:    d.UserID,
		Subject:   d.ID.String(),
		Action:    string(audit.EventDecisionRecorded),
		Purpose:   string(d.DecisionType),
		Decision:  string(d.Status),
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}

	s.metrics.IncDecisionRecorded(string(d.DecisionType), string(d.Status))
	return d, nil
}

// Get returns one decision.
//
// Errors: CodeNotFound for unknown IDs.
func (s *Service) Get(ctx context.Context, decisionID id.DecisionID) (*decision.Decision, error) {
	d, err := s.store.Get(ctx, decisionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load decision")
	}
	return d, nil
}

// FilterAllowed is the only sanctioned way an AI computation resolves which
// attributes it may read. The allowed subset, not the requested list, is what
// gets recorded as AttributesUsed.
func (s *Service) FilterAllowed(ctx context.Context, userID id.UserID, requested []string) (allowed, denied []string, err error) {
	allowed, denied, err = s.permissions.FilterAllowed(ctx, userID, pstrings.DedupeAndTrim(requested))
	if err != nil {
		return nil, nil, err
	}

	s.metrics.AddAttributesDenied(len(denied))
	if s.ops != nil {
		s.ops.Track(ctx, audit.OpsEvent{
			Timestamp: requestcontext.Now(ctx),
			UserID:    userID,
			Subject:   "data_attributes",
			Action:    string(audit.EventAttributeFiltered),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return allowed, denied, nil
}

// ListForReview returns unreviewed decisions that are flagged or below the
// confidence threshold, oldest first.
func (s *Service) ListForReview(ctx context.Context, filter store.ReviewFilter) ([]decision.Decision, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultReviewLimit
	}
	if filter.Limit > maxReviewLimit {
		filter.Limit = maxReviewLimit
	}

	out, err := s.store.ListForReview(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list review queue")
	}
	return out, nil
}

// AddHumanReview applies the one-time reviewer verdict. An override flips
// the status deterministically; a confirm leaves it unchanged.
//
// Errors: CodeConflict when a review already exists, CodeNotFound for
// unknown decisions.
func (s *Service) AddHumanReview(ctx context.Context, decisionID id.DecisionID, reviewedBy string, verdict decision.ReviewDecision, notes string) (*decision.Decision, error) {
	if reviewedBy == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewedBy is required")
	}
	if !verdict.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "review decision must be confirmed or overridden")
	}

	current, err := s.Get(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	newStatus := current.Status
	if verdict == decision.ReviewOverridden {
		newStatus = decision.OverriddenStatus(current.Status)
	}

	now := requestcontext.Now(ctx)
	review := decision.HumanReview{
		ReviewedBy: reviewedBy,
		ReviewedAt: now,
		Decision:   verdict,
		Notes:      notes,
	}

	// The store's check-and-set decides between concurrent reviewers; the
	// status read above is safe because status only moves through this path.
	err = s.store.SetHumanReview(ctx, decisionID, review, newStatus, now)
	if errors.Is(err, sentinel.ErrConflict) {
		return nil, dErrors.New(dErrors.CodeConflict, "decision has already been reviewed")
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to set human review")
	}

	if err := s.emitAudit(ctx, audit.ComplianceEvent{
		Timestamp: now,
		UserID:    current.UserID,
		Subject:   decisionID.String(),
		Action:    string(audit.EventHumanReviewAdded),
		Decision:  string(newStatus),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   reviewedBy,
	}); err != nil {
		return nil, err
	}

	s.metrics.IncReviewCompleted(string(verdict))
	return s.Get(ctx, decisionID)
}

// UpdateFeedback records the user's annotation. Repeatable; never changes
// status.
func (s *Service) UpdateFeedback(ctx context.Context, decisionID id.DecisionID, userFeedback string, correctOutcome *bool, note string) (*decision.Decision, error) {
	if userFeedback == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "userFeedback is required")
	}

	now := requestcontext.Now(ctx)
	feedback := decision.Feedback{
		UserFeedback:   userFeedback,
		CorrectOutcome: correctOutcome,
		Note:           note,
		SubmittedAt:    now,
	}

	err := s.store.SetFeedback(ctx, decisionID, feedback, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to set feedback")
	}

	updated, err := s.Get(ctx, decisionID)
	if err != nil {
		return nil, err
	}

	if s.ops != nil {
		s.ops.Track(ctx, audit.OpsEvent{
			Timestamp: now,
			UserID:    updated.UserID,
			Subject:   decisionID.String(),
			Action:    string(audit.EventFeedbackRecorded),
			RequestID: requestcontext.RequestID(ctx),
		})
	}
	return updated, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.ComplianceEvent) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to write decision audit trail")
	}
	return nil
}
