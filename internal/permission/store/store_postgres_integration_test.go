//go:build integration

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"consentgate/internal/permission"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
	"consentgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T(),
		filepath.Join("..", "..", "..", "migrations", "0001_init.sql"))
	s.store = NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	require.NoError(s.T(), s.pg.TruncateAll(context.Background(), "permission_states", "permission_versions"))
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) TestApplyAndSnapshot() {
	ctx := context.Background()
	userID := id.NewUserID()
	now := time.Now().UTC()

	v, err := s.store.Apply(ctx, userID, []permission.Change{
		{AttributeID: "user.income", Allowed: false},
		{AttributeID: "user.email", Allowed: true},
	}, 0, now)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), v)

	snap, err := s.store.Snapshot(ctx, userID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), snap.Version)
	assert.False(s.T(), snap.Allowed("user.income"))
	assert.True(s.T(), snap.Allowed("user.email"))
	assert.True(s.T(), snap.Allowed("accounts.balance"))
}

func (s *PostgresStoreSuite) TestApplyStaleVersionConflicts() {
	ctx := context.Background()
	userID := id.NewUserID()
	now := time.Now().UTC()

	_, err := s.store.Apply(ctx, userID,
		[]permission.Change{{AttributeID: "user.income", Allowed: false}}, 0, now)
	require.NoError(s.T(), err)

	_, err = s.store.Apply(ctx, userID,
		[]permission.Change{{AttributeID: "user.email", Allowed: false}}, 0, now)
	require.ErrorIs(s.T(), err, sentinel.ErrVersionConflict)
}

func (s *PostgresStoreSuite) TestConcurrentAppliesAllConflictButOne() {
	ctx := context.Background()
	userID := id.NewUserID()
	now := time.Now().UTC()

	const writers = 10
	results := make(chan error, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := s.store.Apply(ctx, userID,
				[]permission.Change{{AttributeID: "user.income", Allowed: false}}, 0, now)
			results <- err
			return nil
		})
	}
	require.NoError(s.T(), g.Wait())
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(s.T(), err, sentinel.ErrVersionConflict)
			conflicted++
		}
	}
	assert.Equal(s.T(), 1, succeeded)
	assert.Equal(s.T(), writers-1, conflicted)

	snap, err := s.store.Snapshot(ctx, userID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), snap.Version)
}

func (s *PostgresStoreSuite) TestUpsertOverwritesToggle() {
	ctx := context.Background()
	userID := id.NewUserID()
	now := time.Now().UTC()

	_, err := s.store.Apply(ctx, userID,
		[]permission.Change{{AttributeID: "user.income", Allowed: false}}, 0, now)
	require.NoError(s.T(), err)

	_, err = s.store.Apply(ctx, userID,
		[]permission.Change{{AttributeID: "user.income", Allowed: true}}, 1, now.Add(time.Second))
	require.NoError(s.T(), err)

	snap, err := s.store.Snapshot(ctx, userID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(2), snap.Version)
	assert.True(s.T(), snap.Allowed("user.income"))
	// Still one explicit entry, not two.
	assert.Len(s.T(), snap.States, 1)
}
