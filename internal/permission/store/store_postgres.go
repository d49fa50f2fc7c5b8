package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"consentgate/internal/permission"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
	txcontext "consentgate/pkg/platform/tx"
)

// PostgresStore persists permission state in permission_states with the
// per-user version in permission_versions.
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

func (s *PostgresStore) Snapshot(ctx context.Context, userID id.UserID) (*permission.Snapshot, error) {
	snap := &permission.Snapshot{
		UserID: userID,
		States: make(map[string]bool),
	}

	versionQuery := `
		SELECT COALESCE(
			(SELECT version FROM permission_versions WHERE user_id = $1), 0)
	`
	if err := s.execer(ctx).QueryRowContext(ctx, versionQuery, uuid.UUID(userID)).Scan(&snap.Version); err != nil {
		return nil, fmt.Errorf("query permission version: %w", err)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT attribute_id, allowed
		FROM permission_states
		WHERE user_id = $1
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query permission states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			attrID  string
			allowed bool
		)
		if err := rows.Scan(&attrID, &allowed); err != nil {
			return nil, fmt.Errorf("scan permission state: %w", err)
		}
		snap.States[attrID] = allowed
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission states: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) Apply(ctx context.Context, userID id.UserID, changes []permission.Change, expectedVersion int64, now time.Time) (int64, error) {
	// Compare-and-swap on the version row. No row back means the stored
	// version moved under us.
	casQuery := `
		INSERT INTO permission_versions (user_id, version)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
			SET version = permission_versions.version + 1
			WHERE permission_versions.version = $2
		RETURNING version
	`

	var newVersion int64
	err := s.execer(ctx).QueryRowContext(ctx, casQuery, uuid.UUID(userID), expectedVersion).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("bump permission version: %w", err)
	}

	upsert := `
		INSERT INTO permission_states (user_id, attribute_id, allowed, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, attribute_id) DO UPDATE
			SET allowed = EXCLUDED.allowed, updated_at = EXCLUDED.updated_at
	`
	for _, c := range changes {
		if _, err := s.execer(ctx).ExecContext(ctx, upsert,
			uuid.UUID(userID), c.AttributeID, c.Allowed, now); err != nil {
			return 0, fmt.Errorf("upsert permission state %s: %w", c.AttributeID, err)
		}
	}
	return newVersion, nil
}
