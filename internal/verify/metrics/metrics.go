package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	// Verification runs by entry point and verdict
	Verifications *prometheus.CounterVec

	// Employer search latency including per-record checks
	SearchLatency prometheus.Histogram
}

// New creates a Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_verifications_total",
			Help: "Verification runs by entry point and verdict",
		}, []string{"method", "verdict"}), // method: "student", "token"; verdict: "valid", "invalid"

		SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certproof_search_duration_seconds",
			Help:    "Duration of employer searches including verification",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementVerification records one verification run.
func (m *Metrics) IncrementVerification(method string, valid bool) {
	if m != nil {
		verdict := "invalid"
		if valid {
			verdict = "valid"
		}
		m.Verifications.WithLabelValues(method, verdict).Inc()
	}
}

// ObserveSearchLatency records one search duration.
func (m *Metrics) ObserveSearchLatency(d time.Duration) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
	}
}
