// Package ops provides the fire-and-forget audit path for routine activity:
// consent checks, score computations, attribute filtering. Events are
// sampled, buffered, and dropped rather than ever blocking a request.
package ops

import (
	"context"
	"log/slog"
	"time"

	audit "consentgate/pkg/platform/audit"
)

// Tracker emits operational events asynchronously. Track never blocks and
// never returns an error; losses are counted, not surfaced.
type Tracker struct {
	store   audit.Store
	sampler *Sampler
	breaker *CircuitBreaker
	logger  *slog.Logger
	metrics *Metrics

	inbox chan audit.OpsEvent
	done  chan struct{}
}

// TrackerOption configures the Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets a logger for drop reporting.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithSampler overrides the default keep-everything sampler.
func WithSampler(s *Sampler) TrackerOption {
	return func(t *Tracker) {
		t.sampler = s
	}
}

// NewTracker creates an ops tracker and starts its background writer.
// Call Close to flush and stop it.
func NewTracker(store audit.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:   store,
		sampler: NewSampler(1.0),
		breaker: NewCircuitBreaker(5, time.Minute),
		inbox:   make(chan audit.OpsEvent, 1024),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.run()
	return t
}

// Track enqueues an operational event. Sampled-out events, events arriving
// while the circuit is open, and events that do not fit the buffer are all
// dropped silently.
func (t *Tracker) Track(_ context.Context, event audit.OpsEvent) {
	if !t.sampler.ShouldSample(event.Action) {
		if t.metrics != nil {
			t.metrics.IncSampled()
		}
		return
	}
	if !t.breaker.Allow() {
		if t.metrics != nil {
			t.metrics.IncCircuitBreakerDropped()
		}
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case t.inbox <- event:
	default:
		if t.metrics != nil {
			t.metrics.IncPersistFailures()
		}
	}
}

// Close stops the background writer after draining buffered events.
func (t *Tracker) Close() error {
	close(t.inbox)
	<-t.done
	return nil
}

func (t *Tracker) run() {
	defer close(t.done)

	// Persistence uses its own timeout; request contexts are long gone by
	// the time the event is drained.
	for event := range t.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := t.store.Append(ctx, event.ToEvent())
		cancel()

		if err != nil {
			t.breaker.RecordFailure()
			if t.metrics != nil {
				t.metrics.IncPersistFailures()
				t.metrics.SetCircuitBreakerState(t.breaker.IsOpen())
			}
			if t.logger != nil {
				t.logger.Warn("ops audit persist failed", "action", event.Action, "error", err)
			}
			continue
		}

		t.breaker.RecordSuccess()
		if t.metrics != nil {
			t.metrics.IncTracked()
			t.metrics.SetCircuitBreakerState(false)
		}
	}
}
