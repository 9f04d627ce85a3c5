package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcome label values.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeFailed   = "failed"
)

// IngestMetrics contains Prometheus metrics for submission ingestion across
// transports.
type IngestMetrics struct {
	SubmissionsTotal *prometheus.CounterVec
}

// NewIngestMetrics creates ingestion metrics and registers them with reg, or
// with the global registry when reg is nil.
func NewIngestMetrics(namespace string, reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "submissions_total",
				Help:      "Total number of submissions by transport, variant and outcome",
			},
			[]string{"transport", "type", "outcome"},
		),
	}

	registerer(reg).MustRegister(m.SubmissionsTotal)

	return m
}
