package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision gate pipeline.
type Metrics struct {
	// Attribute filter latency
	FilterLatency prometheus.Histogram

	// AI computation latency by decision type
	ComputeLatency *prometheus.HistogramVec

	// Overall gate latency including filter, compute, and persist
	GateLatency *prometheus.HistogramVec
}

// New creates a new Metrics instance with all gate metrics registered.
func New() *Metrics {
	return &Metrics{
		FilterLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "consentgate_decision_filter_duration_seconds",
			Help:    "Duration of attribute permission filtering",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		ComputeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentgate_decision_compute_duration_seconds",
			Help:    "Duration of AI computations by decision type",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"decision_type"}),

		GateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consentgate_decision_gate_duration_seconds",
			Help:    "Duration of the full gate pipeline including persistence",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"decision_type"}),
	}
}

// ObserveFilterLatency records the duration of one attribute filter call.
func (m *Metrics) ObserveFilterLatency(d time.Duration) {
	if m != nil {
		m.FilterLatency.Observe(d.Seconds())
	}
}

// ObserveComputeLatency records the duration of one AI computation.
func (m *Metrics) ObserveComputeLatency(decisionType string, d time.Duration) {
	if m != nil {
		m.ComputeLatency.WithLabelValues(decisionType).Observe(d.Seconds())
	}
}

// ObserveGateLatency records the total pipeline duration.
func (m *Metrics) ObserveGateLatency(decisionType string, d time.Duration) {
	if m != nil {
		m.GateLatency.WithLabelValues(decisionType).Observe(d.Seconds())
	}
}
