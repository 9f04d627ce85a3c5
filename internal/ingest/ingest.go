// Package ingest turns decoded submissions into stored measurements and
// acknowledgment receipts. It is shared by the HTTP and AMQP transports.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/metrics"
)

// Transport names used in logs and metrics.
const (
	TransportHTTP = "http"
	TransportAMQP = "amqp"
)

// Saver persists one measurement.
type Saver interface {
	Save(ctx context.Context, m store.NewMeasurement) (int64, error)
}

// Origin is what the transport observed about the sender. Empty fields are
// unknown.
type Origin struct {
	Transport  string
	RemoteIP   string
	MACAddress string
	DeviceName string
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	ID      int64
	Message string
}

// ValidationError rejects a submission before it reaches the store.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ErrEmptySubmission is the reason for submissions without any reading.
var ErrEmptySubmission = &ValidationError{Reason: "submission carries neither temperature nor humidity"}

// Service validates submissions, resolves the sender identity and stores
// one measurement per accepted submission.
type Service struct {
	saver   Saver
	logger  *slog.Logger
	metrics *metrics.IngestMetrics
}

// NewService creates an ingestion service. m may be nil.
func NewService(saver Saver, logger *slog.Logger, m *metrics.IngestMetrics) (*Service, error) {
	if saver == nil {
		return nil, errors.New("saver cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Service{
		saver:   saver,
		logger:  logger,
		metrics: m,
	}, nil
}

// Submit stores sub and returns the acknowledgment. It fails with
// ErrEmptySubmission when sub has no reading, and with the store error when
// the insert fails.
func (s *Service) Submit(ctx context.Context, sub submission.Submission, origin Origin) (Receipt, error) {
	temperature, humidity := submission.Values(sub)
	if temperature == nil && humidity == nil {
		s.count(origin, sub, metrics.OutcomeInvalid)
		return Receipt{}, ErrEmptySubmission
	}

	sender := sub.From()
	m := store.NewMeasurement{
		Timestamp:   sender.Timestamp,
		Temperature: temperature,
		Humidity:    humidity,
		IPAddress:   firstOf(origin.RemoteIP, sender.IPAddress),
		MACAddress:  firstOf(origin.MACAddress, nil),
		DeviceName:  firstOf(origin.DeviceName, sender.DeviceName),
	}

	id, err := s.saver.Save(ctx, m)
	if err != nil {
		s.count(origin, sub, metrics.OutcomeFailed)
		return Receipt{}, fmt.Errorf("failed to save measurement: %w", err)
	}
	s.count(origin, sub, metrics.OutcomeAccepted)

	s.logger.Info("measurement received",
		"id", id,
		"type", sub.Type(),
		"transport", origin.Transport,
		"mac_address", origin.MACAddress,
		"device_name", derefOr(m.DeviceName, ""),
	)

	return Receipt{ID: id, Message: ReceiptText(sub)}, nil
}

func (s *Service) count(origin Origin, sub submission.Submission, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SubmissionsTotal.WithLabelValues(origin.Transport, string(sub.Type()), outcome).Inc()
}

// ReceiptText renders the acknowledgment for sub, for example
// "Received TemperatureRequest: Temp=22". Missing readings print null.
func ReceiptText(sub submission.Submission) string {
	name := submission.Name(sub)
	temperature, humidity := submission.Values(sub)

	switch sub.(type) {
	case submission.TemperatureHumidity:
		return fmt.Sprintf("Received %s: Temp=%s, Humidity=%s", name, formatReading(temperature), formatReading(humidity))
	case submission.Humidity:
		return fmt.Sprintf("Received %s: Humidity=%s", name, formatReading(humidity))
	default:
		return fmt.Sprintf("Received %s: Temp=%s", name, formatReading(temperature))
	}
}

func formatReading(v *float64) string {
	if v == nil {
		return "null"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// firstOf returns observed when it is known, otherwise claimed when it is
// non-empty.
func firstOf(observed string, claimed *string) *string {
	if observed != "" {
		return &observed
	}
	if claimed != nil && *claimed != "" {
		return claimed
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
