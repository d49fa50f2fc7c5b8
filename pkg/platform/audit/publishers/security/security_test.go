package security_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/audit"
	"consentgate/pkg/platform/audit/publishers/security"
	auditmem "consentgate/pkg/platform/audit/store/memory"
)

func TestRingBufferFIFO(t *testing.T) {
	buf := security.NewRingBuffer(4)

	for i := 0; i < 3; i++ {
		buf.Enqueue(audit.SecurityEvent{Action: strconv.Itoa(i)})
	}
	assert.Equal(t, 3, buf.Len())

	batch := buf.DequeueBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "0", batch[0].Action)
	assert.Equal(t, "1", batch[1].Action)
	assert.Equal(t, 1, buf.Len())
}

func TestRingBufferDropsOldestWhenFull(t *testing.T) {
	buf := security.NewRingBuffer(2)

	buf.Enqueue(audit.SecurityEvent{Action: "first"})
	buf.Enqueue(audit.SecurityEvent{Action: "second"})
	buf.Enqueue(audit.SecurityEvent{Action: "third"})

	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, int64(1), buf.Dropped())

	batch := buf.DequeueBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, "second", batch[0].Action)
	assert.Equal(t, "third", batch[1].Action)
}

func TestRingBufferDequeueEmpty(t *testing.T) {
	buf := security.NewRingBuffer(2)
	assert.Nil(t, buf.DequeueBatch(10))
}

func TestPublisherFlushesOnClose(t *testing.T) {
	store := auditmem.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := security.NewPublisher(store, logger)

	pub.Emit(audit.SecurityEvent{
		Subject:   "203.0.113.7",
		Action:    string(audit.EventAuthFailed),
		Reason:    "invalid_token",
		RequestID: "req-1",
	})
	require.NoError(t, pub.Close())

	// Security events carry no user; they land under the zero user ID.
	events, err := store.ListByUser(context.Background(), id.UserID{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
	assert.Equal(t, string(audit.EventAuthFailed), events[0].Action)
	assert.Equal(t, "invalid_token", events[0].Reason)
	assert.False(t, events[0].Timestamp.IsZero())
}
