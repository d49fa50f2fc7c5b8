//go:build integration

package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/audit"
	auditpg "consentgate/pkg/platform/audit/store/postgres"
	"consentgate/pkg/testutil/containers"
)

type publishedRecord struct {
	topic string
	key   string
	value []byte
}

type capturingPublisher struct {
	records   []publishedRecord
	failAfter int // fail every publish once this many records are captured; <0 disables
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	if p.failAfter >= 0 && len(p.records) >= p.failAfter {
		return errors.New("broker unavailable")
	}
	p.records = append(p.records, publishedRecord{topic: topic, key: string(key), value: value})
	return nil
}

type WorkerSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *auditpg.Store
}

func (s *WorkerSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T(),
		filepath.Join("..", "..", "..", "..", "migrations", "0001_init.sql"))
	s.store = auditpg.New(s.pg.DB)
}

func (s *WorkerSuite) TearDownSuite() {
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(context.Background())
}

func (s *WorkerSuite) SetupTest() {
	require.NoError(s.T(), s.pg.TruncateAll(context.Background(), "outbox"))
}

func TestWorkerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) newWorker(pub Publisher) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(s.store, pub, Topics{
		Compliance: "audit.compliance",
		Security:   "audit.security",
		Operations: "audit.operations",
	}, logger)
}

func (s *WorkerSuite) append(userID id.UserID, action audit.AuditEvent) {
	require.NoError(s.T(), s.store.Append(context.Background(), audit.Event{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Subject:   "marketing",
		Action:    string(action),
	}))
}

func (s *WorkerSuite) TestDrainRoutesByCategory() {
	ctx := context.Background()
	userID := id.NewUserID()

	s.append(userID, audit.EventConsentGranted)
	s.append(userID, audit.EventConsentChecked)

	pub := &capturingPublisher{failAfter: -1}
	require.NoError(s.T(), s.newWorker(pub).drainOnce(ctx))

	require.Len(s.T(), pub.records, 2)
	assert.Equal(s.T(), "audit.compliance", pub.records[0].topic)
	assert.Equal(s.T(), "audit.operations", pub.records[1].topic)
	assert.Equal(s.T(), userID.String(), pub.records[0].key)

	pending, err := s.store.PendingEntries(ctx, 10)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), pending)
}

func (s *WorkerSuite) TestDrainStopsAtFirstFailure() {
	ctx := context.Background()
	userID := id.NewUserID()

	s.append(userID, audit.EventConsentGranted)
	s.append(userID, audit.EventConsentRevoked)

	pub := &capturingPublisher{failAfter: 1}
	require.NoError(s.T(), s.newWorker(pub).drainOnce(ctx))

	// Only the first entry was acked; the second stays pending.
	require.Len(s.T(), pub.records, 1)
	pending, err := s.store.PendingEntries(ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), pending, 1)

	// Once the broker recovers the remaining entry drains.
	pub.failAfter = -1
	require.NoError(s.T(), s.newWorker(pub).drainOnce(ctx))
	pending, err = s.store.PendingEntries(ctx, 10)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), pending)

	require.Len(s.T(), pub.records, 2)
	assert.Equal(s.T(), "audit.compliance", pub.records[1].topic)
}
