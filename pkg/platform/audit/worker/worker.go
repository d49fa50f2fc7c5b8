// Package worker drains the transactional outbox into Kafka. It is the only
// bridge between the fail-closed audit write path and the event stream.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"consentgate/pkg/platform/audit"
	auditpg "consentgate/pkg/platform/audit/store/postgres"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Publisher produces one record to a topic. Satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Worker polls the outbox and publishes pending entries, routing each to a
// per-category topic. Publication is at-least-once: entries are marked
// published only after the broker acks, and consumers dedupe on event ID.
type Worker struct {
	store     *auditpg.Store
	publisher Publisher
	topics    Topics
	logger    *slog.Logger

	pollInterval time.Duration
	batchSize    int
}

// Topics maps event categories to Kafka topics.
type Topics struct {
	Compliance string
	Security   string
	Operations string
}

// Option customizes worker tuning.
type Option func(*Worker)

// WithPollInterval overrides how often the outbox is polled.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithBatchSize overrides how many entries one drain pass loads.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func New(store *auditpg.Store, publisher Publisher, topics Topics, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topics:       topics,
		logger:       logger,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	entries, err := w.store.PendingEntries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load pending entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		topic := w.topicFor(entry.EventType)
		key := []byte(entry.AggregateID)

		if err := w.publisher.Publish(ctx, topic, key, entry.Payload); err != nil {
			// Stop at the first failure to preserve per-aggregate order.
			w.logger.WarnContext(ctx, "outbox publish failed",
				"entry_id", entry.ID, "topic", topic, "error", err)
			break
		}
		published = append(published, entry.ID)
	}

	if err := w.store.MarkPublished(ctx, published); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func (w *Worker) topicFor(eventType string) string {
	switch audit.AuditEvent(eventType).Category() {
	case audit.CategoryCompliance:
		return w.topics.Compliance
	case audit.CategorySecurity:
		return w.topics.Security
	default:
		return w.topics.Operations
	}
}
