package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"consentgate/internal/decision"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
	txcontext "consentgate/pkg/platform/tx"
)

// PostgresStore persists decisions in the ai_decisions table. Explanation,
// human review, and feedback are JSON documents; the review set uses a
// conditional UPDATE so concurrent reviewers cannot both win.
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

func (s *PostgresStore) Insert(ctx context.Context, d *decision.Decision) error {
	explanation, err := json.Marshal(d.Explanation)
	if err != nil {
		return fmt.Errorf("marshal explanation: %w", err)
	}

	query := `
		INSERT INTO ai_decisions (
			id, user_id, related_entity_id, entity_type, decision_type,
			status, model_name, model_version, confidence, bias_check,
			explanation, attributes_used, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(d.ID),
		uuid.UUID(d.UserID),
		d.RelatedEntityID,
		string(d.EntityType),
		string(d.DecisionType),
		string(d.Status),
		d.Model.Name,
		d.Model.Version,
		d.Model.Confidence,
		d.Model.BiasCheck,
		explanation,
		pq.Array(d.AttributesUsed),
		d.CreatedAt,
		d.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const selectColumns = `
	id, user_id, related_entity_id, entity_type, decision_type,
	status, model_name, model_version, confidence, bias_check,
	explanation, attributes_used, human_review, feedback,
	created_at, updated_at
`

func (s *PostgresStore) Get(ctx context.Context, decisionID id.DecisionID) (*decision.Decision, error) {
	query := `SELECT ` + selectColumns + ` FROM ai_decisions WHERE id = $1`

	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(decisionID))
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query decision: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListForReview(ctx context.Context, filter ReviewFilter) ([]decision.Decision, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM ai_decisions
		WHERE human_review IS NULL
		  AND (
			($3 AND status = $4)
			OR (NOT $3 AND $5 AND confidence < $6)
			OR (NOT $3 AND NOT $5 AND (status = $4 OR confidence < $6))
		  )
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query,
		limit, 0,
		filter.FlaggedOnly, string(decision.StatusFlagged),
		filter.LowConfidence, ReviewConfidenceThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("query review queue: %w", err)
	}
	defer rows.Close()

	var out []decision.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review queue: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetHumanReview(ctx context.Context, decisionID id.DecisionID, review decision.HumanReview, newStatus decision.Status, now time.Time) error {
	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("marshal human review: %w", err)
	}

	// WHERE human_review IS NULL is the check-and-set: of two concurrent
	// reviewers, exactly one updates a row.
	query := `
		UPDATE ai_decisions
		SET human_review = $2, status = $3, updated_at = $4
		WHERE id = $1 AND human_review IS NULL
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(decisionID), payload, string(newStatus), now)
	if err != nil {
		return fmt.Errorf("set human review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set human review: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, decisionID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) SetFeedback(ctx context.Context, decisionID id.DecisionID, feedback decision.Feedback, now time.Time) error {
	payload, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	query := `
		UPDATE ai_decisions
		SET feedback = $2, updated_at = $3
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(decisionID), payload, now)
	if err != nil {
		return fmt.Errorf("set feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set feedback: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*decision.Decision, error) {
	var (
		d           decision.Decision
		decID       uuid.UUID
		userID      uuid.UUID
		entityType  string
		decType     string
		status      string
		explanation []byte
		attrs       pq.StringArray
		review      []byte
		feedback    []byte
	)

	err := row.Scan(
		&decID,
		&userID,
		&d.RelatedEntityID,
		&entityType,
		&decType,
		&status,
		&d.Model.Name,
		&d.Model.Version,
		&d.Model.Confidence,
		&d.Model.BiasCheck,
		&explanation,
		&attrs,
		&review,
		&feedback,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.ID = id.DecisionID(decID)
	d.UserID = id.UserID(userID)
	d.EntityType = decision.EntityType(entityType)
	d.DecisionType = decision.DecisionType(decType)
	d.Status = decision.Status(status)
	d.AttributesUsed = []string(attrs)

	if err := json.Unmarshal(explanation, &d.Explanation); err != nil {
		return nil, fmt.Errorf("unmarshal explanation: %w", err)
	}
	if review != nil {
		d.HumanReview = &decision.HumanReview{}
		if err := json.Unmarshal(review, d.HumanReview); err != nil {
			return nil, fmt.Errorf("unmarshal human review: %w", err)
		}
	}
	if feedback != nil {
		d.Feedback = &decision.Feedback{}
		if err := json.Unmarshal(feedback, d.Feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
	}
	return &d, nil
}
