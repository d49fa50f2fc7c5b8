// Package metrics registers the Prometheus metrics for the decision engine.
// All methods are nil-safe so tests can pass a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec

	DecisionsRecorded *prometheus.CounterVec
	ReviewsCompleted  *prometheus.CounterVec
	AttributesDenied  prometheus.Counter

	ConsentChanges *prometheus.CounterVec

	ScoreCacheHits   prometheus.Counter
	ScoreCacheMisses prometheus.Counter

	DisputesOpened prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		DecisionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_decisions_recorded_total",
			Help: "Decisions recorded, labelled by decision type and status",
		}, []string{"decision_type", "status"}),
		ReviewsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_reviews_completed_total",
			Help: "Human reviews completed, labelled by review outcome",
		}, []string{"review_decision"}),
		AttributesDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentgate_attributes_denied_total",
			Help: "Attributes excluded from decisions by user permissions",
		}),
		ConsentChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "consentgate_consent_changes_total",
			Help: "Consent ledger appends, labelled by resulting status",
		}, []string{"status"}),
		ScoreCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentgate_privacy_score_cache_hits_total",
			Help: "Privacy score reads served from cache",
		}),
		ScoreCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentgate_privacy_score_cache_misses_total",
			Help: "Privacy score reads that recomputed the score",
		}),
		DisputesOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "consentgate_perception_disputes_total",
			Help: "Perception attribute disputes opened",
		}),
	}
}

// ObserveRequest records one HTTP request latency sample.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(seconds)
}

// IncDecisionRecorded counts one recorded decision.
func (m *Metrics) IncDecisionRecorded(decisionType, status string) {
	if m == nil {
		return
	}
	m.DecisionsRecorded.WithLabelValues(decisionType, status).Inc()
}

// IncReviewCompleted counts one completed human review.
func (m *Metrics) IncReviewCompleted(reviewDecision string) {
	if m == nil {
		return
	}
	m.ReviewsCompleted.WithLabelValues(reviewDecision).Inc()
}

// AddAttributesDenied counts attributes stripped by permissions.
func (m *Metrics) AddAttributesDenied(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AttributesDenied.Add(float64(n))
}

// IncConsentChange counts one consent ledger append.
func (m *Metrics) IncConsentChange(status string) {
	if m == nil {
		return
	}
	m.ConsentChanges.WithLabelValues(status).Inc()
}

// IncScoreCacheHit counts a cached privacy score read.
func (m *Metrics) IncScoreCacheHit() {
	if m == nil {
		return
	}
	m.ScoreCacheHits.Inc()
}

// IncScoreCacheMiss counts a recomputed privacy score read.
func (m *Metrics) IncScoreCacheMiss() {
	if m == nil {
		return
	}
	m.ScoreCacheMisses.Inc()
}

// IncDisputeOpened counts one opened perception dispute.
func (m *Metrics) IncDisputeOpened() {
	if m == nil {
		return
	}
	m.DisputesOpened.Inc()
}
