// Package backend runs the TempMon server: the HTTP API, the gRPC health
// service and the optional RabbitMQ ingestion consumer over one store.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"procodus.dev/tempmon/internal/api"
	"procodus.dev/tempmon/internal/ingest"
	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/pkg/logger"
	"procodus.dev/tempmon/pkg/metrics"
	"procodus.dev/tempmon/pkg/mq"
)

const (
	defaultHealthInterval  = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 5 * time.Second
	metricsNamespace       = "tempmon"
)

// Server represents the TempMon server that manages the database, the HTTP
// API, gRPC health checks and the optional queue consumer.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	db         *gorm.DB
	httpServer *http.Server
	grpcServer *grpc.Server
	consumer   *Consumer

	storeMetrics  *metrics.StoreMetrics
	ingestMetrics *metrics.IngestMetrics
	apiMetrics    *metrics.APIMetrics
	mqMetrics     *metrics.MQMetrics
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	DBPort            int
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// HTTP API and gRPC health ports
	HTTPPort int
	GRPCPort int

	// RabbitMQ ingestion, disabled when AMQPURL is empty
	AMQPURL      string
	QueueName    string
	QueueDurable bool

	HealthInterval  time.Duration
	ShutdownTimeout time.Duration

	// Registerer receives the server metrics. Nil means the global registry
	// served on /metrics.
	Registerer prometheus.Registerer
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.GRPCPort <= 0 {
		return nil, errors.New("gRPC port must be positive")
	}

	if cfg.AMQPURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty when amqp is enabled")
	}

	// Metrics register once per server; Run may be called again after a failure.
	return &Server{
		logger:        cfg.Logger,
		config:        cfg,
		storeMetrics:  metrics.NewStoreMetrics(metricsNamespace, cfg.Registerer),
		ingestMetrics: metrics.NewIngestMetrics(metricsNamespace, cfg.Registerer),
		apiMetrics:    metrics.NewAPIMetrics(metricsNamespace, cfg.Registerer),
		mqMetrics:     metrics.NewMQMetrics(metricsNamespace, cfg.Registerer),
	}, nil
}

// Run starts every component and blocks until a signal arrives, ctx is
// done or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting tempmon server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	db, err := store.NewDB(&store.DBConfig{
		Logger:          logger.Component(s.logger, "db"),
		Host:            s.config.DBHost,
		Port:            s.config.DBPort,
		User:            s.config.DBUser,
		Password:        s.config.DBPassword,
		DBName:          s.config.DBName,
		SSLMode:         s.config.DBSSLMode,
		MaxOpenConns:    s.config.DBMaxOpenConns,
		MaxIdleConns:    s.config.DBMaxIdleConns,
		ConnMaxLifetime: s.config.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	st, err := store.NewStore(db, logger.Component(s.logger, "store"), s.storeMetrics)
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize store: %w", err))
	}

	ingester, err := ingest.NewService(st, logger.Component(s.logger, "ingest"), s.ingestMetrics)
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize ingestion: %w", err))
	}

	router, err := api.NewRouter(&api.Config{
		Logger:   logger.Component(s.logger, "api"),
		Store:    st,
		Ingester: ingester,
		Metrics:  s.apiMetrics,
	})
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize router: %w", err))
	}

	healthInterval := s.config.HealthInterval
	if healthInterval <= 0 {
		healthInterval = defaultHealthInterval
	}
	checker, err := NewHealthChecker(logger.Component(s.logger, "health"), st, healthInterval)
	if err != nil {
		return s.abort(fmt.Errorf("failed to initialize health checker: %w", err))
	}

	s.grpcServer = grpc.NewServer()
	checker.Register(s.grpcServer)
	reflection.Register(s.grpcServer)

	grpcAddr := fmt.Sprintf(":%d", s.config.GRPCPort)
	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return s.abort(fmt.Errorf("failed to listen on %s: %w", grpcAddr, err))
	}

	httpAddr := fmt.Sprintf(":%d", s.config.HTTPPort)
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		_ = grpcLis.Close()
		return s.abort(fmt.Errorf("failed to listen on %s: %w", httpAddr, err))
	}
	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if s.config.AMQPURL != "" {
		if err := s.startConsumer(ctx, ingester); err != nil {
			_ = grpcLis.Close()
			_ = httpLis.Close()
			return s.abort(err)
		}
	}

	go checker.Run(ctx)

	serveErr := make(chan error, 2)
	go func() {
		s.logger.Info("starting gRPC server", "address", grpcAddr)
		if err := s.grpcServer.Serve(grpcLis); err != nil {
			serveErr <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		s.logger.Info("starting HTTP server", "address", httpAddr)
		if err := s.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	s.logger.Info("tempmon server started successfully")

	var runErr error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case runErr = <-serveErr:
		s.logger.Error("server error", "error", runErr)
	}
	cancel()

	if err := s.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (s *Server) startConsumer(ctx context.Context, ingester Ingester) error {
	client, err := mq.New(&mq.Config{
		Logger:  logger.Component(s.logger, "mq"),
		Metrics: s.mqMetrics,
		URL:     s.config.AMQPURL,
		Queue:   s.config.QueueName,
		Durable: s.config.QueueDurable,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize mq client: %w", err)
	}

	consumer, err := NewConsumer(&ConsumerConfig{
		Logger:    logger.Component(s.logger, "consumer"),
		Client:    client,
		Ingester:  ingester,
		Metrics:   s.mqMetrics,
		QueueName: s.config.QueueName,
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}

	s.consumer = consumer
	s.consumer.Start(ctx)
	return nil
}

// abort releases what Run has acquired so far and returns err.
func (s *Server) abort(err error) error {
	if shutdownErr := s.Shutdown(); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}
	return err
}

// Shutdown drains HTTP requests, stops gRPC and the consumer, and closes
// the database. Errors of every step are joined.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down tempmon server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown error: %w", err))
		}
	}

	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("consumer shutdown error: %w", err))
		}
	}

	if s.db != nil {
		if err := store.CloseDB(s.db, s.logger); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("server shutdown completed successfully")
	return nil
}
