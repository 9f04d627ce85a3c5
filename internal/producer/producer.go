// Package producer simulates a fleet of room sensors submitting readings
// to TempMon over HTTP or RabbitMQ.
package producer

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/generator"
	"procodus.dev/tempmon/pkg/metrics"
)

// ChooseTag maps x in [0, 1) onto the submission variant mix: 60% both
// readings, 20% temperature only, 20% humidity only.
func ChooseTag(x float64) submission.Tag {
	switch {
	case x < 0.6:
		return submission.TagTemperatureHumidity
	case x < 0.8:
		return submission.TagTemperature
	default:
		return submission.TagHumidity
	}
}

// Build renders reading as the variant selected by tag.
func Build(tag submission.Tag, reading generator.Reading) submission.Submission {
	temperature, humidity := reading.Temperature, reading.Humidity

	switch tag {
	case submission.TagTemperature:
		return submission.Temperature{Temperature: &temperature}
	case submission.TagHumidity:
		return submission.Humidity{Humidity: &humidity}
	default:
		return submission.TemperatureHumidity{Temperature: &temperature, Humidity: &humidity}
	}
}

// Producer drives one simulated sensor.
type Producer struct {
	Sensor    *generator.Sensor
	generator *generator.ReadingGenerator
	sink      Sink
	metrics   *metrics.SimulatorMetrics // Optional metrics
}

// NewProducer creates a producer for sensor sending through sink.
func NewProducer(sensor *generator.Sensor, sink Sink, m *metrics.SimulatorMetrics) *Producer {
	return &Producer{
		Sensor:    sensor,
		generator: generator.NewReadingGenerator(),
		sink:      sink,
		metrics:   m,
	}
}

// Tick generates the reading for now and sends it.
// Note: Uses math/rand for the variant which is acceptable for simulation data.
func (p *Producer) Tick(ctx context.Context, now time.Time) error {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.SubmitDuration.WithLabelValues(p.sink.Name()))
		defer timer.ObserveDuration()
	}

	tag := ChooseTag(rand.Float64()) // #nosec G404 - weak random is acceptable for simulation
	sub := Build(tag, p.generator.GenerateReading(now))

	if err := p.sink.Send(ctx, p.Sensor, sub); err != nil {
		if p.metrics != nil {
			p.metrics.SubmissionFailures.WithLabelValues(p.sink.Name(), "send_error").Inc()
		}
		return err
	}

	if p.metrics != nil {
		p.metrics.SubmissionsSent.WithLabelValues(p.sink.Name(), string(tag)).Inc()
	}
	return nil
}
