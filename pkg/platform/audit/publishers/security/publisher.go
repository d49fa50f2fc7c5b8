// Package security provides the buffered audit publisher for security
// events such as rejected tokens. Emission never blocks the request path;
// a background flusher drains the ring buffer into the audit store.
package security

import (
	"context"
	"log/slog"
	"time"

	audit "consentgate/pkg/platform/audit"
)

const (
	defaultFlushInterval = 2 * time.Second
	defaultFlushBatch    = 100
)

// Publisher buffers security events and flushes them in batches.
type Publisher struct {
	store  audit.Store
	buffer *RingBuffer
	logger *slog.Logger

	flushInterval time.Duration
	done          chan struct{}
	stopped       chan struct{}
}

// NewPublisher creates a security publisher and starts its flusher.
// Call Close to flush remaining events and stop it.
func NewPublisher(store audit.Store, logger *slog.Logger) *Publisher {
	p := &Publisher{
		store:         store,
		buffer:        NewRingBuffer(0),
		logger:        logger,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go p.run()
	return p
}

// Emit enqueues a security event. Never blocks; under sustained backpressure
// the oldest buffered events are dropped.
func (p *Publisher) Emit(event audit.SecurityEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}
	p.buffer.Enqueue(event)
}

// Close flushes remaining events and stops the background flusher.
func (p *Publisher) Close() error {
	close(p.done)
	<-p.stopped
	return nil
}

func (p *Publisher) run() {
	defer close(p.stopped)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

func (p *Publisher) flush() {
	for {
		batch := p.buffer.DequeueBatch(defaultFlushBatch)
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		for _, event := range batch {
			if err := p.store.Append(ctx, event.ToEvent()); err != nil {
				if p.logger != nil {
					p.logger.Warn("security audit persist failed",
						"action", event.Action, "error", err)
				}
				// Re-delivery is not worth head-of-line blocking here,
				// drop the rest of the batch and try again next tick.
				cancel()
				return
			}
		}
		cancel()
	}
}
