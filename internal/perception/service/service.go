// Package service orchestrates the perception dispute workflow: snapshot
// writes, the active -> disputed transition with its append-only log entry,
// and the explicit reviewer resolution.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"consentgate/internal/perception"
	"consentgate/internal/perception/store"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/sentinel"
	"consentgate/pkg/platform/tx"
	"consentgate/pkg/requestcontext"
)

// Auditor emits compliance audit events. Dispute transitions are fail-closed.
type Auditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Reevaluator asks the AI pipeline to recompute a contested perception.
// Fire-and-forget: failures are logged and never fail the dispute.
type Reevaluator interface {
	TriggerReevaluation(ctx context.Context, userID id.UserID, category, label string) error
}

// AttributeInput is one attribute of an AI perception snapshot.
type AttributeInput struct {
	Category   string
	Label      string
	Confidence float64
	Evidence   []string
}

// Service manages perception attributes and their disputes.
type Service struct {
	store   store.Store
	runner  tx.Runner
	auditor Auditor
	trigger Reevaluator
	logger  *slog.Logger
}

func New(st store.Store, runner tx.Runner, auditor Auditor, trigger Reevaluator, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		runner:  runner,
		auditor: auditor,
		trigger: trigger,
		logger:  logger,
	}
}

// Upsert writes an AI perception snapshot. Rows already under dispute keep
// their status; only confidence and evidence refresh.
func (s *Service) Upsert(ctx context.Context, userID id.UserID, inputs []AttributeInput) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if len(inputs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "no attributes to write")
	}
	for _, in := range inputs {
		if in.Category == "" || in.Label == "" {
			return dErrors.New(dErrors.CodeValidation, "category and label are required")
		}
		if in.Confidence < 0 || in.Confidence > 1 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("attribute %s/%s: confidence must be within [0, 1]", in.Category, in.Label))
		}
	}

	now := requestcontext.Now(ctx)
	for _, in := range inputs {
		err := s.store.Upsert(ctx, &perception.Attribute{
			UserID:     userID,
			Category:   in.Category,
			Label:      in.Label,
			Status:     perception.StatusActive,
			Confidence: in.Confidence,
			Evidence:   in.Evidence,
			UpdatedAt:  now,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "failed to write perception snapshot")
		}
	}
	return nil
}

// List returns everything the AI currently believes about the user.
func (s *Service) List(ctx context.Context, userID id.UserID) ([]perception.Attribute, error) {
	attrs, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load perception attributes")
	}
	return attrs, nil
}

// Dispute contests an active perception attribute. The status transition, the
// dispute log entry, and the audit event commit atomically; the re-evaluation
// trigger fires afterwards and never fails the dispute.
//
// Errors: CodeNotFound for unknown attributes, CodeConflict when the
// attribute is not active.
func (s *Service) Dispute(ctx context.Context, userID id.UserID, category, label, reason, correction string) (*perception.Attribute, error) {
	if category == "" || label == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category and label are required")
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	now := requestcontext.Now(ctx)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.MarkDisputed(ctx, userID, category, label, reason, correction, now); err != nil {
			return err
		}
		if err := s.store.AppendDispute(ctx, &perception.Dispute{
			ID:                 id.NewDisputeID(),
			UserID:             userID,
			Category:           category,
			Label:              label,
			Reason:             reason,
			ProposedCorrection: correction,
			CreatedAt:          now,
		}); err != nil {
			return err
		}
		return s.emitAudit(ctx, audit.ComplianceEvent{
			Timestamp: now,
			UserID:    userID,
			Subject:   subject(category, label),
			Action:    string(audit.EventPerceptionDisputed),
			Purpose:   reason,
			Decision:  string(perception.StatusDisputed),
			RequestID: requestcontext.RequestID(ctx),
		})
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "perception attribute not found")
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return nil, dErrors.New(dErrors.CodeConflict, "attribute is not active and cannot be disputed")
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeStorage) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to record dispute")
	}

	if s.trigger != nil {
		if err := s.trigger.TriggerReevaluation(ctx, userID, category, label); err != nil {
			s.logger.WarnContext(ctx, "re-evaluation trigger failed",
				"user_id", userID.String(),
				"category", category,
				"error", err.Error(),
			)
		}
	}

	return s.get(ctx, userID, category, label)
}

// Resolve closes a dispute. A corrected outcome applies the proposed
// correction as the new label when one was given; a rejected outcome returns
// the attribute to active with its original label.
//
// Errors: CodeNotFound for unknown attributes, CodeConflict when the
// attribute is not disputed.
func (s *Service) Resolve(ctx context.Context, userID id.UserID, category, label, reviewedBy string, outcome perception.ResolveOutcome) (*perception.Attribute, error) {
	if category == "" || label == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category and label are required")
	}
	if reviewedBy == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reviewedBy is required")
	}
	if !outcome.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "outcome must be corrected or rejected")
	}

	current, err := s.get(ctx, userID, category, label)
	if err != nil {
		return nil, err
	}

	newLabel := label
	newStatus := perception.StatusActive
	if outcome == perception.OutcomeCorrected {
		newStatus = perception.StatusCorrected
		if current.ProposedCorrection != "" {
			newLabel = current.ProposedCorrection
		}
	}

	now := requestcontext.Now(ctx)
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.SetResolution(ctx, userID, category, label, newLabel, newStatus, now); err != nil {
			return err
		}
		if err := s.closeDisputeLog(ctx, userID, category, label, reviewedBy, outcome, now); err != nil {
			return err
		}
		return s.emitAudit(ctx, audit.ComplianceEvent{
			Timestamp: now,
			UserID:    userID,
			Subject:   subject(category, label),
			Action:    string(audit.EventDisputeResolved),
			Decision:  string(outcome),
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   reviewedBy,
		})
	})
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "perception attribute not found")
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return nil, dErrors.New(dErrors.CodeConflict, "attribute is not disputed")
	}
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeStorage) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to resolve dispute")
	}

	return s.get(ctx, userID, category, newLabel)
}

// closeDisputeLog stamps the open log entry. The attribute transition is the
// authority; a missing log entry is logged, not fatal.
func (s *Service) closeDisputeLog(ctx context.Context, userID id.UserID, category, label, reviewedBy string, outcome perception.ResolveOutcome, now time.Time) error {
	open, err := s.store.OpenDispute(ctx, userID, category, label)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "no open dispute log entry for resolved attribute",
			"user_id", userID.String(),
			"category", category,
		)
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.ResolveDispute(ctx, open.ID, reviewedBy, outcome, now)
}

// AddEvidence appends evidence entries to an attribute. Evidence is
// append-only regardless of status.
func (s *Service) AddEvidence(ctx context.Context, userID id.UserID, category, label string, evidence ...string) (*perception.Attribute, error) {
	if category == "" || label == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category and label are required")
	}
	if len(evidence) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no evidence to append")
	}

	err := s.store.AppendEvidence(ctx, userID, category, label, evidence, requestcontext.Now(ctx))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "perception attribute not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to append evidence")
	}
	return s.get(ctx, userID, category, label)
}

// ListDisputes returns the user's dispute log, oldest first.
func (s *Service) ListDisputes(ctx context.Context, userID id.UserID) ([]perception.Dispute, error) {
	disputes, err := s.store.ListDisputes(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load disputes")
	}
	return disputes, nil
}

func (s *Service) get(ctx context.Context, userID id.UserID, category, label string) (*perception.Attribute, error) {
	attr, err := s.store.Get(ctx, userID, category, label)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "perception attribute not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load perception attribute")
	}
	return attr, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.ComplianceEvent) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to write dispute audit trail")
	}
	return nil
}

func subject(category, label string) string {
	return category + "/" + label
}
