package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"consentgate/internal/consent"
	"consentgate/internal/consent/store"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/audit/publishers/compliance"
	auditmem "consentgate/pkg/platform/audit/store/memory"
	"consentgate/pkg/requestcontext"
)

type ConsentServiceSuite struct {
	suite.Suite
	svc        *Service
	ledger     *store.MemoryStore
	auditStore *auditmem.InMemoryStore
	userID     id.UserID
}

func (s *ConsentServiceSuite) SetupTest() {
	s.ledger = store.NewMemoryStore()
	s.auditStore = auditmem.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := compliance.New(s.auditStore, compliance.WithLogger(logger))
	s.svc = New(s.ledger, auditor, logger, "2025-01")
	s.userID = id.NewUserID()
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.7",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	return requestcontext.WithRequestID(ctx, "req-1")
}

func (s *ConsentServiceSuite) grant(ct id.ConsentType) *consent.Record {
	rec, err := s.svc.Grant(s.ctx(), s.userID, GrantRequest{
		ConsentType: ct,
		Purpose:     "transaction_analysis",
		DataTypes:   []string{"transactions", "accounts"},
	})
	require.NoError(s.T(), err)
	return rec
}

func (s *ConsentServiceSuite) TestGrantCapturesMetadataAndAudits() {
	rec := s.grant(id.ConsentTypeAIAnalysis)

	assert.Equal(s.T(), consent.StatusGranted, rec.Status)
	assert.Equal(s.T(), int64(1), rec.Seq)
	assert.Equal(s.T(), "2025-01", rec.PolicyVersion)
	assert.Equal(s.T(), "web", rec.Metadata.Source)
	assert.Equal(s.T(), "203.0.113.7", rec.Metadata.IPAddress)
	assert.Contains(s.T(), rec.Metadata.UserAgent, "Chrome")

	has, err := s.svc.HasConsent(s.ctx(), s.userID, id.ConsentTypeAIAnalysis)
	require.NoError(s.T(), err)
	assert.True(s.T(), has)

	assert.Equal(s.T(), []string{string(audit.EventConsentGranted)}, s.auditStore.ActionsByUser(s.userID))
}

func (s *ConsentServiceSuite) TestGrantValidation() {
	_, err := s.svc.Grant(s.ctx(), s.userID, GrantRequest{ConsentType: "telepathy", Purpose: "x"})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Grant(s.ctx(), s.userID, GrantRequest{ConsentType: id.ConsentTypeMarketing})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.Grant(s.ctx(), id.UserID{}, GrantRequest{ConsentType: id.ConsentTypeMarketing, Purpose: "x"})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ConsentServiceSuite) TestRevokeCopiesGrantFields() {
	s.grant(id.ConsentTypeDataSharing)

	rec, err := s.svc.Revoke(s.ctx(), s.userID, id.ConsentTypeDataSharing, "changed my mind")
	require.NoError(s.T(), err)

	assert.Equal(s.T(), consent.StatusRevoked, rec.Status)
	assert.Equal(s.T(), "transaction_analysis", rec.Purpose)
	assert.Equal(s.T(), []string{"transactions", "accounts"}, rec.DataTypes)
	assert.Equal(s.T(), "changed my mind", rec.Reason)
	assert.Equal(s.T(), int64(2), rec.Seq)

	// Revocation is effective immediately.
	has, err := s.svc.HasConsent(s.ctx(), s.userID, id.ConsentTypeDataSharing)
	require.NoError(s.T(), err)
	assert.False(s.T(), has)

	assert.Equal(s.T(), []string{
		string(audit.EventConsentGranted),
		string(audit.EventConsentRevoked),
	}, s.auditStore.ActionsByUser(s.userID))
}

func (s *ConsentServiceSuite) TestRevokeWithoutActiveGrant() {
	_, err := s.svc.Revoke(s.ctx(), s.userID, id.ConsentTypeMarketing, "")
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeNotFound))

	// Revoking twice fails the second time.
	s.grant(id.ConsentTypeMarketing)
	_, err = s.svc.Revoke(s.ctx(), s.userID, id.ConsentTypeMarketing, "")
	require.NoError(s.T(), err)
	_, err = s.svc.Revoke(s.ctx(), s.userID, id.ConsentTypeMarketing, "")
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ConsentServiceSuite) TestLazyExpiration() {
	expired := time.Now().Add(-time.Second)
	_, err := s.svc.Grant(s.ctx(), s.userID, GrantRequest{
		ConsentType: id.ConsentTypeAIAnalysis,
		Purpose:     "transaction_analysis",
		ExpiresAt:   &expired,
	})
	require.NoError(s.T(), err)

	// No explicit revoke, but the grant already reads as expired.
	has, err := s.svc.HasConsent(s.ctx(), s.userID, id.ConsentTypeAIAnalysis)
	require.NoError(s.T(), err)
	assert.False(s.T(), has)

	history, err := s.svc.History(s.ctx(), s.userID, nil, 0)
	require.NoError(s.T(), err)
	require.Len(s.T(), history, 1)
	assert.Equal(s.T(), consent.StatusExpired, history[0].Status)

	// An expired grant is not revocable.
	_, err = s.svc.Revoke(s.ctx(), s.userID, id.ConsentTypeAIAnalysis, "")
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeNotFound))

	// The next write self-heals the stored status.
	s.grant(id.ConsentTypeAIAnalysis)
	ct := id.ConsentTypeAIAnalysis
	records, err := s.ledger.List(context.Background(), s.userID, &ct, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), records, 2)
	var stored []consent.Status
	for _, rec := range records {
		stored = append(stored, rec.Status)
	}
	assert.Contains(s.T(), stored, consent.StatusExpired)
	assert.Contains(s.T(), stored, consent.StatusGranted)
}

func (s *ConsentServiceSuite) TestHistoryIsIdempotentAndClamped() {
	for range [3]struct{}{} {
		s.grant(id.ConsentTypeMarketing)
	}

	first, err := s.svc.History(s.ctx(), s.userID, nil, 500)
	require.NoError(s.T(), err)
	second, err := s.svc.History(s.ctx(), s.userID, nil, 500)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first, second)

	limited, err := s.svc.History(s.ctx(), s.userID, nil, 2)
	require.NoError(s.T(), err)
	assert.Len(s.T(), limited, 2)
}

type failingAuditor struct{}

func (failingAuditor) Emit(context.Context, audit.ComplianceEvent) error {
	return errors.New("outbox down")
}

func (s *ConsentServiceSuite) TestGrantFailsClosedWhenAuditFails() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store.NewMemoryStore(), failingAuditor{}, logger, "2025-01")

	_, err := svc.Grant(s.ctx(), s.userID, GrantRequest{
		ConsentType: id.ConsentTypeAIAnalysis,
		Purpose:     "transaction_analysis",
	})
	assert.True(s.T(), dErrors.HasCode(err, dErrors.CodeStorage))
}
