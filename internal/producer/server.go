package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"procodus.dev/tempmon/pkg/generator"
	"procodus.dev/tempmon/pkg/logger"
	"procodus.dev/tempmon/pkg/metrics"
	"procodus.dev/tempmon/pkg/mq"
)

const sendTimeout = 5 * time.Second

// ServerConfig holds the configuration for the simulator.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Target is the ingestion URL, e.g. http://localhost:9247/request
	Target string
	// AMQPURL selects queue delivery instead of HTTP when set
	AMQPURL string
	// QueueName is the ingestion queue used with AMQPURL
	QueueName string
	// QueueDurable must match the consumer's queue declaration
	QueueDurable bool
	// Devices is the number of simulated sensors
	Devices int
	// Interval is the time between readings of one sensor
	Interval time.Duration
	// Sink overrides Target and AMQPURL
	Sink Sink
	// HTTPClient is used by the HTTP sink; defaults to a client with a timeout
	HTTPClient *http.Client
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server runs one producer per simulated sensor.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	sink      Sink
	producers []*Producer
	wg        sync.WaitGroup
	closeOnce sync.Once
	metrics   *metrics.SimulatorMetrics
}

var (
	errInvalidDeviceCount = errors.New("device count must be greater than 0")
	errInvalidInterval    = errors.New("interval must be greater than 0")
	errLoggerRequired     = errors.New("logger is required")
	errNoDestination      = errors.New("either a target URL or an AMQP URL is required")
)

// NewServer creates the simulated fleet and its sink.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}

	if cfg.Devices <= 0 {
		return nil, errInvalidDeviceCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	sink, err := newSink(cfg)
	if err != nil {
		return nil, err
	}

	sensors, err := generator.NewSensors(cfg.Devices)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}

	s := &Server{
		logger:    cfg.Logger,
		config:    cfg,
		sink:      sink,
		producers: make([]*Producer, 0, len(sensors)),
		metrics:   cfg.Metrics,
	}

	for i, sensor := range sensors {
		s.producers = append(s.producers, NewProducer(sensor, sink, cfg.Metrics))
		s.logger.Info("created simulated sensor",
			"sensor_id", i,
			"mac_address", sensor.MACAddress,
			"room", sensor.Room,
			"sink", sink.Name(),
		)
	}

	return s, nil
}

func newSink(cfg *ServerConfig) (Sink, error) {
	switch {
	case cfg.Sink != nil:
		return cfg.Sink, nil

	case cfg.AMQPURL != "":
		client, err := mq.New(&mq.Config{
			Logger:  logger.Component(cfg.Logger, "mq"),
			Metrics: cfg.MQMetrics,
			URL:     cfg.AMQPURL,
			Queue:   cfg.QueueName,
			Durable: cfg.QueueDurable,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mq client: %w", err)
		}
		return NewAMQPSink(client)

	case cfg.Target != "":
		client := cfg.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: sendTimeout}
		}
		return NewHTTPSink(cfg.Target, client)

	default:
		return nil, errNoDestination
	}
}

// Sensors returns the simulated sensors.
func (s *Server) Sensors() []*generator.Sensor {
	sensors := make([]*generator.Sensor, 0, len(s.producers))
	for _, p := range s.producers {
		sensors = append(sensors, p.Sensor)
	}
	return sensors
}

// Run starts all producers and blocks until ctx is done or a shutdown
// signal is received.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for i, producer := range s.producers {
		s.wg.Add(1)
		go s.runProducer(ctx, i, producer)
	}

	s.logger.Info("simulator started",
		"devices", len(s.producers),
		"interval", s.config.Interval,
		"sink", s.sink.Name(),
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for producers to shut down...")
	s.wg.Wait()

	if err := s.Shutdown(); err != nil {
		return err
	}

	s.logger.Info("simulator stopped")
	return nil
}

// runProducer sends one reading per interval until ctx is done.
func (s *Server) runProducer(ctx context.Context, id int, producer *Producer) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveSensors.Inc()
		defer s.metrics.ActiveSensors.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	producerLogger := s.logger.With(
		slog.Int("sensor_id", id),
		slog.String("room", producer.Sensor.Room),
	)
	producerLogger.Info("producer started")

	for {
		select {
		case <-ctx.Done():
			producerLogger.Info("producer shutting down")
			return

		case now := <-ticker.C:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := producer.Tick(sendCtx, now)
			cancel()
			if err != nil {
				// Keep going; the next tick tries again.
				producerLogger.Error("failed to send reading", "error", err)
				continue
			}

			producerLogger.Debug("reading sent")
		}
	}
}

// Shutdown closes the sink. It is safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("closing sink", "sink", s.sink.Name())
		if closeErr := s.sink.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close %s sink: %w", s.sink.Name(), closeErr)
		}
	})
	return err
}
