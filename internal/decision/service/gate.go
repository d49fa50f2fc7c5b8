package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"consentgate/internal/decision"
	"consentgate/internal/decision/metrics"
	id "consentgate/pkg/domain"
	dErrors "consentgate/pkg/domain-errors"
)

// Outcome is what an AI computation hands back to the gate. The gate, not
// the computation, decides what gets persisted and when the result is
// released to the caller.
type Outcome struct {
	RelatedEntityID string
	EntityType      decision.EntityType
	DecisionType    decision.DecisionType
	Status          decision.Status
	Model           decision.Model
	Explanation     decision.Explanation
}

// ComputeFunc runs an AI computation over the allowed attributes only.
// Implementations must not read data outside the allowed list.
type ComputeFunc func(ctx context.Context, allowed []string) (*Outcome, error)

// Gate wraps every AI computation in the filter-compute-record pipeline.
// The recorded decision, not the computation's return value, is the unit the
// caller receives: if the record cannot be persisted the whole operation
// fails and no result leaves the gate.
type Gate struct {
	svc     *Service
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func NewGate(svc *Service, m *metrics.Metrics) *Gate {
	return &Gate{
		svc:     svc,
		tracer:  otel.Tracer("consentgate/decision"),
		metrics: m,
	}
}

// Run filters the requested attributes, runs the computation over the
// allowed subset, and persists the decision before returning it.
func (g *Gate) Run(ctx context.Context, userID id.UserID, requested []string, compute ComputeFunc) (*decision.Decision, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "decision.gate",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.Int("attributes.requested", len(requested)),
		))
	defer span.End()

	filterStart := time.Now()
	allowed, denied, err := g.svc.FilterAllowed(ctx, userID, requested)
	g.metrics.ObserveFilterLatency(time.Since(filterStart))
	if err != nil {
		return nil, g.fail(span, err)
	}
	span.SetAttributes(
		attribute.Int("attributes.allowed", len(allowed)),
		attribute.Int("attributes.denied", len(denied)),
	)

	computeStart := time.Now()
	outcome, err := g.compute(ctx, allowed, compute)
	if err != nil {
		return nil, g.fail(span, err)
	}
	g.metrics.ObserveComputeLatency(string(outcome.DecisionType), time.Since(computeStart))

	rec, err := g.svc.Record(ctx, &decision.Decision{
		UserID:          userID,
		RelatedEntityID: outcome.RelatedEntityID,
		EntityType:      outcome.EntityType,
		DecisionType:    outcome.DecisionType,
		Status:          outcome.Status,
		Model:           outcome.Model,
		Explanation:     outcome.Explanation,
		AttributesUsed:  allowed,
	})
	if err != nil {
		return nil, g.fail(span, err)
	}

	span.SetAttributes(attribute.String("decision.id", rec.ID.String()))
	g.metrics.ObserveGateLatency(string(rec.DecisionType), time.Since(start))
	return rec, nil
}

func (g *Gate) compute(ctx context.Context, allowed []string, compute ComputeFunc) (*Outcome, error) {
	ctx, span := g.tracer.Start(ctx, "decision.compute")
	defer span.End()

	outcome, err := compute(ctx, allowed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "computation failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ai computation failed")
	}
	if outcome == nil {
		span.SetStatus(codes.Error, "computation returned no outcome")
		return nil, dErrors.New(dErrors.CodeInternal, "ai computation returned no outcome")
	}
	return outcome, nil
}

func (g *Gate) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
