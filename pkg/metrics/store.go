package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains Prometheus metrics for the measurement store.
type StoreMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	MeasurementsSaved prometheus.Counter
}

// NewStoreMetrics creates store metrics and registers them with reg, or with
// the global registry when reg is nil.
func NewStoreMetrics(namespace string, reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "status"}, // status: success, error
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "operation_duration_seconds",
				Help:      "Duration of database operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		MeasurementsSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "measurements_saved_total",
				Help:      "Total number of measurement rows inserted",
			},
		),
	}

	registerer(reg).MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.MeasurementsSaved,
	)

	return m
}

// Observe records one finished store operation.
func (m *StoreMetrics) Observe(op string, elapsed time.Duration, err error) {
	m.OperationsTotal.WithLabelValues(op, status(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
