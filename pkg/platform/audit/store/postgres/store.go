// Package postgres implements the audit store with the transactional outbox
// pattern. Events are written to the outbox table, in the caller's
// transaction when one is in flight, and published to Kafka by the outbox
// worker. Kafka is the source of truth for audit events; the
// audit_compliance table is a queryable materialization fed by the consumer.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "consentgate/pkg/domain"
	audit "consentgate/pkg/platform/audit"
	txcontext "consentgate/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Payload is the JSON structure published to Kafka. Field names are stable:
// the consumer and downstream systems deserialize by name.
type Payload struct {
	ID        string `json:"ID"`
	Category  string `json:"Category"`
	Timestamp string `json:"Timestamp"`
	UserID    string `json:"UserID,omitempty"`
	Subject   string `json:"Subject"`
	Action    string `json:"Action"`
	Purpose   string `json:"Purpose,omitempty"`
	Decision  string `json:"Decision,omitempty"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	ActorID   string `json:"ActorID,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// The eventCategories map is the source of truth for routing, not
	// whatever category the caller set.
	category := audit.AuditEvent(event.Action).Category()

	payload := Payload{
		ID:        eventID.String(),
		Category:  string(category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		Subject:   event.Subject,
		Action:    event.Action,
		Purpose:   event.Purpose,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	if !event.UserID.IsNil() {
		payload.UserID = uuid.UUID(event.UserID).String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.UserID.IsNil() {
		aggregateType = "user"
		aggregateID = uuid.UUID(event.UserID).String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// OutboxEntry is an unpublished audit event awaiting Kafka delivery.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// PendingEntries returns unpublished outbox entries in insertion order.
// Called by the outbox worker; publication order per aggregate is preserved
// because entries are claimed oldest-first.
func (s *Store) PendingEntries(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps entries as delivered. Entries stay in the table for
// replay until a retention job clears them.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox
		SET published_at = $2
		WHERE id = ANY($1)
	`
	_, err := s.db.ExecContext(ctx, query, pq.Array(ids), time.Now())
	if err != nil {
		return fmt.Errorf("mark outbox entries published: %w", err)
	}
	return nil
}

// ComplianceRecord is a compliance audit event for the audit_compliance table.
type ComplianceRecord struct {
	Timestamp time.Time
	UserID    id.UserID
	Subject   string
	Action    string
	Purpose   string
	Decision  string
	RequestID string
	ActorID   string
}

// AppendCompliance inserts a compliance event into the audit_compliance
// table. Idempotent via ON CONFLICT DO NOTHING so the consumer can redeliver.
func (s *Store) AppendCompliance(ctx context.Context, eventID uuid.UUID, record ComplianceRecord) error {
	query := `
		INSERT INTO audit_compliance (
			id, timestamp, user_id, subject, action,
			purpose, decision, request_id, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		record.Timestamp,
		uuid.UUID(record.UserID),
		record.Subject,
		record.Action,
		record.Purpose,
		record.Decision,
		record.RequestID,
		record.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert compliance event: %w", err)
	}
	return nil
}

// ListComplianceByUser returns materialized compliance events for a user,
// most recent first.
func (s *Store) ListComplianceByUser(ctx context.Context, userID id.UserID, limit int) ([]ComplianceRecord, error) {
	query := `
		SELECT timestamp, user_id, subject, action, purpose, decision, request_id, actor_id
		FROM audit_compliance
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("query compliance events: %w", err)
	}
	defer rows.Close()

	var records []ComplianceRecord
	for rows.Next() {
		var (
			rec ComplianceRecord
			uid uuid.UUID
		)
		err := rows.Scan(&rec.Timestamp, &uid, &rec.Subject, &rec.Action,
			&rec.Purpose, &rec.Decision, &rec.RequestID, &rec.ActorID)
		if err != nil {
			return nil, fmt.Errorf("scan compliance event: %w", err)
		}
		rec.UserID = id.UserID(uid)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance events: %w", err)
	}
	return records, nil
}
