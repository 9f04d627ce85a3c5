package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the service reported next to the overall ("") status.
const HealthServiceName = "tempmon.Measurements"

const pingTimeout = 2 * time.Second

// Pinger reports whether the store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker publishes the store's reachability through the standard
// gRPC health service.
type HealthChecker struct {
	logger   *slog.Logger
	pinger   Pinger
	interval time.Duration
	server   *health.Server
}

// NewHealthChecker creates a checker probing pinger every interval.
func NewHealthChecker(logger *slog.Logger, pinger Pinger, interval time.Duration) (*HealthChecker, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if pinger == nil {
		return nil, errors.New("pinger cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("health interval must be positive")
	}

	hc := &HealthChecker{
		logger:   logger,
		pinger:   pinger,
		interval: interval,
		server:   health.NewServer(),
	}
	hc.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hc, nil
}

// Register adds the health service to s.
func (hc *HealthChecker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, hc.server)
}

// Check pings the store once and updates the reported status.
func (hc *HealthChecker) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := hc.pinger.Ping(ctx); err != nil {
		hc.logger.Warn("store health check failed", "error", err)
		hc.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	hc.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run checks immediately and then every interval until ctx is done, when
// every service is marked NOT_SERVING.
func (hc *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			hc.server.Shutdown()
			return
		case <-ticker.C:
			hc.Check(ctx)
		}
	}
}

func (hc *HealthChecker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	hc.server.SetServingStatus("", status)
	hc.server.SetServingStatus(HealthServiceName, status)
}
