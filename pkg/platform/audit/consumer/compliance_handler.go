package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"consentgate/internal/platform/kafka/consumer"
	id "consentgate/pkg/domain"
	auditpg "consentgate/pkg/platform/audit/store/postgres"
)

// ComplianceHandler materializes compliance audit events into the
// audit_compliance table for long-term retention and per-user queries.
type ComplianceHandler struct {
	store  ComplianceStore
	logger *slog.Logger
}

// ComplianceStore is the storage interface for materialized events.
type ComplianceStore interface {
	AppendCompliance(ctx context.Context, eventID uuid.UUID, record auditpg.ComplianceRecord) error
}

// NewComplianceHandler creates a compliance event handler.
func NewComplianceHandler(store ComplianceStore, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		store:  store,
		logger: logger,
	}
}

// Handle processes one compliance audit event. Malformed messages are
// logged and committed; a poison message must not halt the partition.
func (h *ComplianceHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var payload auditpg.Payload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("CRITICAL: failed to unmarshal compliance payload",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	eventID, err := uuid.Parse(payload.ID)
	if err != nil {
		h.logger.Error("CRITICAL: failed to parse compliance event ID",
			"id", payload.ID,
			"error", err,
		)
		return nil
	}
	if payload.UserID == "" {
		h.logger.Error("CRITICAL: compliance event missing UserID",
			"event_id", eventID,
			"action", payload.Action,
		)
		return nil
	}

	record := auditpg.ComplianceRecord{
		Subject:   payload.Subject,
		Action:    payload.Action,
		Purpose:   payload.Purpose,
		Decision:  payload.Decision,
		RequestID: payload.RequestID,
		ActorID:   payload.ActorID,
	}

	record.Timestamp = time.Now()
	if ts, err := time.Parse(time.RFC3339Nano, payload.Timestamp); err == nil {
		record.Timestamp = ts
	}
	if uid, err := uuid.Parse(payload.UserID); err == nil {
		record.UserID = id.UserID(uid)
	}

	// Idempotent on event ID, redelivery after a crash is safe.
	if err := h.store.AppendCompliance(ctx, eventID, record); err != nil {
		h.logger.Error("failed to store compliance event",
			"event_id", eventID,
			"action", record.Action,
			"error", err,
		)
		return fmt.Errorf("store compliance event: %w", err)
	}

	return nil
}
