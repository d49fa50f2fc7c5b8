package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"consentgate/internal/consent"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
	txcontext "consentgate/pkg/platform/tx"
)

// PostgresStore persists ledger entries in the consent_records table.
// Records are insert-only; the single permitted update flips a stale
// granted status to expired (lazy expiration self-heal).
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

// appendRetries bounds how often Append re-races for the next Seq when two
// writers collide on the (user_id, consent_type, seq) unique index.
const appendRetries = 3

func (s *PostgresStore) Append(ctx context.Context, rec *consent.Record) error {
	query := `
		INSERT INTO consent_records (
			id, user_id, consent_type, status, purpose, data_types,
			expires_at, meta_source, meta_ip, meta_user_agent,
			policy_version, reason, seq, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			(SELECT COALESCE(MAX(seq), 0) + 1
			   FROM consent_records
			  WHERE user_id = $2 AND consent_type = $3),
			$13)
		RETURNING seq
	`

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		err := s.execer(ctx).QueryRowContext(ctx, query,
			uuid.UUID(rec.ID),
			uuid.UUID(rec.UserID),
			rec.ConsentType.String(),
			string(rec.Status),
			rec.Purpose,
			pq.Array(rec.DataTypes),
			rec.ExpiresAt,
			rec.Metadata.Source,
			rec.Metadata.IPAddress,
			rec.Metadata.UserAgent,
			rec.PolicyVersion,
			rec.Reason,
			rec.CreatedAt,
		).Scan(&rec.Seq)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("insert consent record: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("insert consent record: seq contention not resolved: %w", lastErr)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const selectColumns = `
	id, user_id, consent_type, status, purpose, data_types,
	expires_at, meta_source, meta_ip, meta_user_agent,
	policy_version, reason, seq, created_at
`

func (s *PostgresStore) Latest(ctx context.Context, userID id.UserID, consentType id.ConsentType) (*consent.Record, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM consent_records
		WHERE user_id = $1 AND consent_type = $2
		ORDER BY seq DESC
		LIMIT 1
	`

	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(userID), consentType.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest consent record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, userID id.UserID, consentType *id.ConsentType, limit int) ([]consent.Record, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM consent_records
		WHERE user_id = $1
		  AND ($2::text IS NULL OR consent_type = $2)
		ORDER BY created_at DESC, seq DESC, id DESC
		LIMIT $3
	`

	var typeFilter *string
	if consentType != nil {
		v := consentType.String()
		typeFilter = &v
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(userID), typeFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("query consent records: %w", err)
	}
	defer rows.Close()

	var records []consent.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) MarkExpired(ctx context.Context, recordID id.ConsentID) error {
	query := `
		UPDATE consent_records
		SET status = $2
		WHERE id = $1 AND status = $3
	`

	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(recordID), string(consent.StatusExpired), string(consent.StatusGranted))
	if err != nil {
		return fmt.Errorf("mark consent record expired: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark consent record expired: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*consent.Record, error) {
	var (
		rec       consent.Record
		recID     uuid.UUID
		userID    uuid.UUID
		ctype     string
		status    string
		dataTypes pq.StringArray
	)

	err := row.Scan(
		&recID,
		&userID,
		&ctype,
		&status,
		&rec.Purpose,
		&dataTypes,
		&rec.ExpiresAt,
		&rec.Metadata.Source,
		&rec.Metadata.IPAddress,
		&rec.Metadata.UserAgent,
		&rec.PolicyVersion,
		&rec.Reason,
		&rec.Seq,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = id.ConsentID(recID)
	rec.UserID = id.UserID(userID)
	rec.ConsentType = id.ConsentType(ctype)
	rec.Status = consent.Status(status)
	rec.DataTypes = []string(dataTypes)
	return &rec, nil
}
