package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"consentgate/internal/perception"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
	txcontext "consentgate/pkg/platform/tx"
)

// PostgresStore persists perception attributes and the dispute log. State
// transitions are conditional UPDATEs on the current status so concurrent
// disputes race on the row, not in application code.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, attr *perception.Attribute) error {
	// Only confidence, evidence, and the timestamp refresh on conflict so a
	// new AI snapshot cannot clear a dispute or a correction.
	query := `
		INSERT INTO perception_attributes (
			user_id, category, label, status, confidence, evidence, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, category, label) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			evidence   = EXCLUDED.evidence,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(attr.UserID),
		attr.Category,
		attr.Label,
		string(attr.Status),
		attr.Confidence,
		pq.Array(attr.Evidence),
		attr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert perception attribute: %w", err)
	}
	return nil
}

const attrColumns = `
	user_id, category, label, status, confidence, evidence,
	COALESCE(dispute_reason, ''), COALESCE(proposed_correction, ''), updated_at
`

func (s *PostgresStore) List(ctx context.Context, userID id.UserID) ([]perception.Attribute, error) {
	query := `
		SELECT ` + attrColumns + `
		FROM perception_attributes
		WHERE user_id = $1
		ORDER BY category ASC, label ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query perception attributes: %w", err)
	}
	defer rows.Close()

	var out []perception.Attribute
	for rows.Next() {
		attr, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan perception attribute: %w", err)
		}
		out = append(out, *attr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate perception attributes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID id.UserID, category, label string) (*perception.Attribute, error) {
	query := `
		SELECT ` + attrColumns + `
		FROM perception_attributes
		WHERE user_id = $1 AND category = $2 AND label = $3
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID), category, label)
	attr, err := scanAttribute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query perception attribute: %w", err)
	}
	return attr, nil
}

func (s *PostgresStore) MarkDisputed(ctx context.Context, userID id.UserID, category, label, reason, correction string, now time.Time) error {
	query := `
		UPDATE perception_attributes
		SET status = $4, dispute_reason = $5, proposed_correction = $6, updated_at = $7
		WHERE user_id = $1 AND category = $2 AND label = $3 AND status = $8
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(userID), category, label,
		string(perception.StatusDisputed), reason, nullable(correction), now,
		string(perception.StatusActive),
	)
	if err != nil {
		return fmt.Errorf("mark disputed: %w", err)
	}
	return s.transitionResult(ctx, res, userID, category, label)
}

func (s *PostgresStore) SetResolution(ctx context.Context, userID id.UserID, category, label, newLabel string, newStatus perception.Status, now time.Time) error {
	if newLabel == "" {
		newLabel = label
	}
	query := `
		UPDATE perception_attributes
		SET label = $4, status = $5, dispute_reason = NULL, proposed_correction = NULL, updated_at = $6
		WHERE user_id = $1 AND category = $2 AND label = $3 AND status = $7
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(userID), category, label,
		newLabel, string(newStatus), now,
		string(perception.StatusDisputed),
	)
	if err != nil {
		return fmt.Errorf("set resolution: %w", err)
	}
	return s.transitionResult(ctx, res, userID, category, label)
}

// transitionResult maps a zero-row conditional UPDATE to the right sentinel.
func (s *PostgresStore) transitionResult(ctx context.Context, res sql.Result, userID id.UserID, category, label string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := s.Get(ctx, userID, category, label); errors.Is(err, sentinel.ErrNotFound) {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *PostgresStore) AppendEvidence(ctx context.Context, userID id.UserID, category, label string, evidence []string, now time.Time) error {
	query := `
		UPDATE perception_attributes
		SET evidence = evidence || $4, updated_at = $5
		WHERE user_id = $1 AND category = $2 AND label = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(userID), category, label, pq.Array(evidence), now)
	if err != nil {
		return fmt.Errorf("append evidence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append evidence: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendDispute(ctx context.Context, d *perception.Dispute) error {
	query := `
		INSERT INTO perception_disputes (
			id, user_id, category, label, reason, proposed_correction, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.UserID),
		d.Category,
		d.Label,
		d.Reason,
		nullable(d.ProposedCorrection),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append dispute: %w", err)
	}
	return nil
}

const disputeColumns = `
	id, user_id, category, label, reason,
	COALESCE(proposed_correction, ''), COALESCE(resolved_by, ''),
	COALESCE(outcome, ''), created_at, resolved_at
`

func (s *PostgresStore) OpenDispute(ctx context.Context, userID id.UserID, category, label string) (*perception.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM perception_disputes
		WHERE user_id = $1 AND category = $2 AND label = $3 AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID), category, label)
	d, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query open dispute: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDisputes(ctx context.Context, userID id.UserID) ([]perception.Dispute, error) {
	query := `
		SELECT ` + disputeColumns + `
		FROM perception_disputes
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query disputes: %w", err)
	}
	defer rows.Close()

	var out []perception.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disputes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ResolveDispute(ctx context.Context, disputeID id.DisputeID, resolvedBy string, outcome perception.ResolveOutcome, resolvedAt time.Time) error {
	query := `
		UPDATE perception_disputes
		SET resolved_by = $2, outcome = $3, resolved_at = $4
		WHERE id = $1 AND resolved_at IS NULL
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(disputeID), resolvedBy, string(outcome), resolvedAt)
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttribute(row rowScanner) (*perception.Attribute, error) {
	var (
		attr     perception.Attribute
		userID   uuid.UUID
		status   string
		evidence pq.StringArray
	)
	err := row.Scan(
		&userID,
		&attr.Category,
		&attr.Label,
		&status,
		&attr.Confidence,
		&evidence,
		&attr.DisputeReason,
		&attr.ProposedCorrection,
		&attr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	attr.UserID = id.UserID(userID)
	attr.Status = perception.Status(status)
	attr.Evidence = []string(evidence)
	return &attr, nil
}

func scanDispute(row rowScanner) (*perception.Dispute, error) {
	var (
		d          perception.Dispute
		disputeID  uuid.UUID
		userID     uuid.UUID
		outcome    string
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&disputeID,
		&userID,
		&d.Category,
		&d.Label,
		&d.Reason,
		&d.ProposedCorrection,
		&d.ResolvedBy,
		&outcome,
		&d.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	d.ID = id.DisputeID(disputeID)
	d.UserID = id.UserID(userID)
	d.Outcome = perception.ResolveOutcome(outcome)
	if resolvedAt.Valid {
		at := resolvedAt.Time
		d.ResolvedAt = &at
	}
	return &d, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
