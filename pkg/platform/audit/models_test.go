package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "consentgate/pkg/domain"
)

func TestAuditEventCategory(t *testing.T) {
	tests := []struct {
		event AuditEvent
		want  EventCategory
	}{
		{EventConsentGranted, CategoryCompliance},
		{EventConsentRevoked, CategoryCompliance},
		{EventPermissionsUpdated, CategoryCompliance},
		{EventCategoryToggled, CategoryCompliance},
		{EventDecisionRecorded, CategoryCompliance},
		{EventHumanReviewAdded, CategoryCompliance},
		{EventPerceptionDisputed, CategoryCompliance},
		{EventDisputeResolved, CategoryCompliance},
		{EventAuthFailed, CategorySecurity},
		{EventConsentChecked, CategoryOperations},
		{EventFeedbackRecorded, CategoryOperations},
		{EventScoreComputed, CategoryOperations},
		{EventAttributeFiltered, CategoryOperations},
		{AuditEvent("something_new"), CategoryOperations},
	}
	for _, tc := range tests {
		t.Run(string(tc.event), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.event.Category())
		})
	}
}

func TestComplianceEventToEvent(t *testing.T) {
	userID := id.NewUserID()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	event := ComplianceEvent{
		Timestamp: ts,
		UserID:    userID,
		Subject:   "marketing",
		Action:    string(EventConsentGranted),
		Purpose:   "personalized offers",
		Decision:  "granted",
		RequestID: "req-1",
		ActorID:   "analyst-1",
	}

	got := event.ToEvent()
	assert.Equal(t, CategoryCompliance, got.Category)
	assert.Equal(t, ts, got.Timestamp)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "marketing", got.Subject)
	assert.Equal(t, string(EventConsentGranted), got.Action)
	assert.Equal(t, "personalized offers", got.Purpose)
	assert.Equal(t, "granted", got.Decision)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "analyst-1", got.ActorID)
}

func TestSecurityEventToEvent(t *testing.T) {
	event := SecurityEvent{
		Subject:   "203.0.113.7",
		Action:    string(EventAuthFailed),
		Reason:    "invalid_token",
		RequestID: "req-2",
	}

	got := event.ToEvent()
	assert.Equal(t, CategorySecurity, got.Category)
	assert.Equal(t, "203.0.113.7", got.Subject)
	assert.Equal(t, "invalid_token", got.Reason)
}

func TestOpsEventToEvent(t *testing.T) {
	userID := id.NewUserID()
	event := OpsEvent{
		UserID:  userID,
		Subject: "transactions.amount",
		Action:  string(EventAttributeFiltered),
	}

	got := event.ToEvent()
	assert.Equal(t, CategoryOperations, got.Category)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "transactions.amount", got.Subject)
}
