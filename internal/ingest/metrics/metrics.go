package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingestion module.
type Metrics struct {
	// Per-row outcomes by disposition
	RowOutcome *prometheus.CounterVec

	// Whole-batch latency including rendering
	BatchLatency prometheus.Histogram

	// Certificates written (new and re-issued)
	CertificatesIssued prometheus.Counter
}

// New creates a Metrics instance with all ingestion metrics registered.
func New() *Metrics {
	return &Metrics{
		RowOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certproof_ingest_rows_total",
			Help: "Ingested rows by outcome",
		}, []string{"outcome"}), // outcome: "created", "updated", "skipped", "error"

		BatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certproof_ingest_batch_duration_seconds",
			Help:    "Duration of full batch ingestion including rendering",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		CertificatesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "certproof_ingest_certificates_total",
			Help: "Certificates generated or regenerated",
		}),
	}
}

// IncrementRow records one row disposition.
func (m *Metrics) IncrementRow(outcome string) {
	if m != nil {
		m.RowOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveBatchLatency records the total batch duration.
func (m *Metrics) ObserveBatchLatency(d time.Duration) {
	if m != nil {
		m.BatchLatency.Observe(d.Seconds())
	}
}

// IncrementCertificates records one written certificate.
func (m *Metrics) IncrementCertificates() {
	if m != nil {
		m.CertificatesIssued.Inc()
	}
}
