package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SimulatorMetrics contains Prometheus metrics for the simulated sensor fleet.
type SimulatorMetrics struct {
	SubmissionsSent    *prometheus.CounterVec
	SubmissionFailures *prometheus.CounterVec
	SubmitDuration     *prometheus.HistogramVec
	ActiveSensors      prometheus.Gauge
}

// NewSimulatorMetrics creates simulator metrics and registers them with reg,
// or with the global registry when reg is nil.
func NewSimulatorMetrics(namespace string, reg prometheus.Registerer) *SimulatorMetrics {
	m := &SimulatorMetrics{
		SubmissionsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "submissions_sent_total",
				Help:      "Total number of submissions sent",
			},
			[]string{"sink", "type"},
		),
		SubmissionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "submission_failures_total",
				Help:      "Total number of submissions that could not be delivered",
			},
			[]string{"sink", "reason"},
		),
		SubmitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "submit_duration_seconds",
				Help:      "Duration of submission deliveries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sink"},
		),
		ActiveSensors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "simulator",
				Name:      "active_sensors",
				Help:      "Number of currently running simulated sensors",
			},
		),
	}

	registerer(reg).MustRegister(
		m.SubmissionsSent,
		m.SubmissionFailures,
		m.SubmitDuration,
		m.ActiveSensors,
	)

	return m
}
