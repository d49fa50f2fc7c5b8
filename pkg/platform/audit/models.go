// Package audit defines the audit event model shared by publishers, stores,
// the outbox worker, and the Kafka consumer. Consent and decision changes are
// regulatory records; everything else is operational visibility.
package audit

import (
	"context"
	"time"

	id "consentgate/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// The category selects retention policy, storage backend, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance:
	// consent changes, permission changes, automated decisions, human reviews.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring,
	// such as rejected tokens. These feed into SIEM pipelines.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	// These can be sampled and carry short retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Purpose   string
	Decision  string
	Reason    string
	RequestID string
	// ActorID tracks who performed the action when different from UserID,
	// e.g. the reviewer on a human review or dispute resolution.
	ActorID string
}

type AuditEvent string

const (
	// Consent ledger events
	EventConsentGranted AuditEvent = "consent_granted"
	EventConsentRevoked AuditEvent = "consent_revoked"
	EventConsentChecked AuditEvent = "consent_checked"

	// Attribute permission events
	EventPermissionsUpdated AuditEvent = "permissions_updated"
	EventCategoryToggled    AuditEvent = "category_toggled"

	// Decision events
	EventDecisionRecorded  AuditEvent = "decision_recorded"
	EventHumanReviewAdded  AuditEvent = "human_review_added"
	EventFeedbackRecorded  AuditEvent = "feedback_recorded"
	EventScoreComputed     AuditEvent = "privacy_score_computed"
	EventAttributeFiltered AuditEvent = "attribute_filtered"

	// Perception events
	EventPerceptionDisputed AuditEvent = "perception_disputed"
	EventDisputeResolved    AuditEvent = "dispute_resolved"

	// Security events
	EventAuthFailed AuditEvent = "auth_failed"
)

// eventCategories maps each audit event to its category. Unlisted events
// default to operations.
var eventCategories = map[AuditEvent]EventCategory{
	EventConsentGranted:     CategoryCompliance,
	EventConsentRevoked:     CategoryCompliance,
	EventPermissionsUpdated: CategoryCompliance,
	EventCategoryToggled:    CategoryCompliance,
	EventDecisionRecorded:   CategoryCompliance,
	EventHumanReviewAdded:   CategoryCompliance,
	EventPerceptionDisputed: CategoryCompliance,
	EventDisputeResolved:    CategoryCompliance,

	EventAuthFailed: CategorySecurity,

	EventConsentChecked:    CategoryOperations,
	EventFeedbackRecorded:  CategoryOperations,
	EventScoreComputed:     CategoryOperations,
	EventAttributeFiltered: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. The postgres implementation writes to the
// transactional outbox; the memory implementation keeps events for tests.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// ComplianceEvent captures regulatory-significant actions requiring
// guaranteed persistence. Use with the compliance publisher for fail-closed
// semantics: the business operation must not succeed if the event is lost.
type ComplianceEvent struct {
	Timestamp time.Time // When the event occurred (set automatically if zero)
	UserID    id.UserID // The user affected (required)
	Subject   string    // What was acted on (consent type, attribute id, decision id)
	Action    string    // The action taken (e.g. "consent_granted")
	Purpose   string    // Purpose of data processing (for consent events)
	Decision  string    // Outcome of the action (e.g. "granted", "approved")
	RequestID string    // Correlation ID for request tracing
	ActorID   string    // Reviewer or admin, when different from UserID
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the generic Event carried by stores and the outbox.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  CategoryCompliance,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Subject:   e.Subject,
		Action:    e.Action,
		Purpose:   e.Purpose,
		Decision:  e.Decision,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
	}
}

// SecurityEvent captures security-relevant actions for SIEM and alerting.
// Emission is buffered and non-blocking.
type SecurityEvent struct {
	Timestamp time.Time
	Subject   string // Entity involved (user id, IP, token id)
	Action    string
	Reason    string
	IP        string
	RequestID string
	Severity  Severity
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category returns CategorySecurity (always).
func (e SecurityEvent) Category() EventCategory { return CategorySecurity }

// ToEvent converts to the generic Event carried by stores and the outbox.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:  CategorySecurity,
		Timestamp: e.Timestamp,
		Subject:   e.Subject,
		Action:    e.Action,
		Reason:    e.Reason,
		RequestID: e.RequestID,
	}
}

// OpsEvent captures operational events with minimal overhead. Emission is
// fire-and-forget and may be sampled.
type OpsEvent struct {
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	RequestID string
}

// Category returns CategoryOperations (always).
func (e OpsEvent) Category() EventCategory { return CategoryOperations }

// ToEvent converts to the generic Event carried by stores and the outbox.
func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:  CategoryOperations,
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Subject:   e.Subject,
		Action:    e.Action,
		RequestID: e.RequestID,
	}
}
