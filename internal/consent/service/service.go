// Package service orchestrates the consent ledger: appends, current-status
// derivation, and lazy expiration self-healing. It keeps orchestration out of
// handlers and domain logic thin.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"consentgate/internal/consent"
	"consentgate/internal/consent/store"
	"consentgate/internal/device"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/sentinel"
	pstrings "consentgate/pkg/platform/strings"
	"consentgate/pkg/requestcontext"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Auditor emits compliance audit events. Consent changes are fail-closed:
// if the audit trail cannot be written, the grant/revoke must not succeed.
type Auditor interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service persists consent decisions and answers purpose-aware checks.
type Service struct {
	store         store.Store
	auditor       Auditor
	logger        *slog.Logger
	policyVersion string
}

func New(st store.Store, auditor Auditor, logger *slog.Logger, policyVersion string) *Service {
	return &Service{
		store:         st,
		auditor:       auditor,
		logger:        logger,
		policyVersion: policyVersion,
	}
}

// GrantRequest carries the caller-supplied fields of a grant.
type GrantRequest struct {
	ConsentType   id.ConsentType
	Purpose       string
	DataTypes     []string
	PolicyVersion string
	ExpiresAt     *time.Time
}

// Grant appends a granted record. Multiple grants per type are allowed;
// "current" is always the record with the greatest Seq.
func (s *Service) Grant(ctx context.Context, userID id.UserID, req GrantRequest) (*consent.Record, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id is required")
	}
	if !req.ConsentType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid consent type")
	}
	if req.Purpose == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "purpose is required")
	}

	// A grant with a past expiry is accepted; it simply reads as expired.
	now := requestcontext.Now(ctx)

	s.healExpired(ctx, userID, req.ConsentType, now)

	policyVersion := req.PolicyVersion
	if policyVersion == "" {
		policyVersion = s.policyVersion
	}

	rec := &consent.Record{
		ID:            id.NewConsentID(),
		UserID:        userID,
		ConsentType:   req.ConsentType,
		Status:        consent.StatusGranted,
		Purpose:       req.Purpose,
		DataTypes:     pstrings.DedupeAndTrim(req.DataTypes),
		ExpiresAt:     req.ExpiresAt,
		Metadata:      s.metadataFrom(ctx),
		PolicyVersion: policyVersion,
		CreatedAt:     now,
	}

	if err := s.store.Append(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to append consent record")
	}

	if err := s.emitAudit(ctx, userID, string(audit.EventConsentGranted), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke appends a revoked record carrying the purpose and data types of the
// grant it revokes. The original record is never edited.
//
// Errors: CodeNotFound when no active (granted, unexpired) record exists.
func (s *Service) Revoke(ctx context.Context, userID id.UserID, consentType id.ConsentType, reason string) (*consent.Record, error) {
	if !consentType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid consent type")
	}

	now := requestcontext.Now(ctx)

	latest, err := s.store.Latest(ctx, userID, consentType)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no active consent to revoke")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load consent record")
	}

	if latest.Status == consent.StatusGranted && latest.ExpiredAt(now) {
		// Self-heal the stale stored status, then report the revoke target
		// as gone: an expired grant is not revocable.
		if healErr := s.store.MarkExpired(ctx, latest.ID); healErr != nil {
			s.logger.WarnContext(ctx, "failed to self-heal expired consent record",
				"record_id", latest.ID, "error", healErr)
		}
		return nil, dErrors.New(dErrors.CodeNotFound, "no active consent to revoke")
	}
	if latest.Status != consent.StatusGranted {
		return nil, dErrors.New(dErrors.CodeNotFound, "no active consent to revoke")
	}

	rec := &consent.Record{
		ID:            id.NewConsentID(),
		UserID:        userID,
		ConsentType:   consentType,
		Status:        consent.StatusRevoked,
		Purpose:       latest.Purpose,
		DataTypes:     append([]string(nil), latest.DataTypes...),
		Metadata:      s.metadataFrom(ctx),
		PolicyVersion: latest.PolicyVersion,
		Reason:        reason,
		CreatedAt:     now,
	}

	if err := s.store.Append(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to append revocation record")
	}

	if err := s.emitAudit(ctx, userID, string(audit.EventConsentRevoked), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// HasConsent reports whether the current record for the type is granted and
// unexpired. Absence of any record means no consent: consent is explicit
// opt-in, unlike the allow-by-default attribute permissions.
func (s *Service) HasConsent(ctx context.Context, userID id.UserID, consentType id.ConsentType) (bool, error) {
	latest, err := s.store.Latest(ctx, userID, consentType)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load consent record")
	}
	return latest.ActiveAt(requestcontext.Now(ctx)), nil
}

// History returns ledger entries in reverse chronological order. Reads are
// idempotent: two calls with no intervening write return identical output.
func (s *Service) History(ctx context.Context, userID id.UserID, consentType *id.ConsentType, limit int) ([]consent.Record, error) {
	if consentType != nil && !consentType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid consent type")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := s.store.List(ctx, userID, consentType, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list consent records")
	}

	// Readers observe lazy expiration without a ledger write.
	now := requestcontext.Now(ctx)
	for i := range records {
		records[i].Status = records[i].EffectiveStatus(now)
	}
	return records, nil
}

// healExpired flips a stale granted-but-expired current record to expired.
// Failures are logged, not returned: healing is an optimization, the
// effective status is already correct for readers.
func (s *Service) healExpired(ctx context.Context, userID id.UserID, consentType id.ConsentType, now time.Time) {
	latest, err := s.store.Latest(ctx, userID, consentType)
	if err != nil {
		return
	}
	if latest.Status == consent.StatusGranted && latest.ExpiredAt(now) {
		if err := s.store.MarkExpired(ctx, latest.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to self-heal expired consent record",
				"record_id", latest.ID, "error", err)
		}
	}
}

func (s *Service) metadataFrom(ctx context.Context) consent.Metadata {
	source := "web"
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		source = "system"
	}
	return consent.Metadata{
		Source:    source,
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: device.ParseUserAgent(ua),
	}
}

func (s *Service) emitAudit(ctx context.Context, userID id.UserID, action string, rec *consent.Record) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.ComplianceEvent{
		Timestamp: rec.CreatedAt,
		UserID:    userID,
		Subject:   rec.ConsentType.String(),
		Action:    action,
		Purpose:   rec.Purpose,
		Decision:  string(rec.Status),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to write consent audit trail")
	}
	return nil
}
