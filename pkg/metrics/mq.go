package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery outcome label values.
const (
	OutcomeAcked    = "acked"
	OutcomeDropped  = "dropped"
	OutcomeRejected = "rejected"
)

// MQMetrics contains Prometheus metrics for the MQ client and the queue
// consumer.
type MQMetrics struct {
	MessagesPublished  *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	PublishDuration    *prometheus.HistogramVec
	ReconnectAttempts  prometheus.Counter
	ConnectionStatus   prometheus.Gauge
	DeliveriesTotal    *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
}

// NewMQMetrics creates MQ metrics and registers them with reg, or with the
// global registry when reg is nil.
func NewMQMetrics(namespace string, reg prometheus.Registerer) *MQMetrics {
	m := &MQMetrics{
		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_published_total",
				Help:      "Total number of messages confirmed by RabbitMQ",
			},
			[]string{"queue"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "publish_failures_total",
				Help:      "Total number of failed message publishes",
			},
			[]string{"queue", "reason"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "publish_duration_seconds",
				Help:      "Duration of confirmed publish operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of reconnection attempts",
			},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "connection_status",
				Help:      "Current connection status (1=connected, 0=disconnected)",
			},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "deliveries_total",
				Help:      "Total number of consumed deliveries by outcome",
			},
			[]string{"queue", "outcome"}, // outcome: acked, dropped, rejected
		),
		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "processing_duration_seconds",
				Help:      "Duration of delivery processing",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
	}

	registerer(reg).MustRegister(
		m.MessagesPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.ReconnectAttempts,
		m.ConnectionStatus,
		m.DeliveriesTotal,
		m.ProcessingDuration,
	)

	return m
}
