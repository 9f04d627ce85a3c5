// Package api serves the ingestion endpoint and the measurement queries
// over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"procodus.dev/tempmon/internal/ingest"
	"procodus.dev/tempmon/internal/store"
	"procodus.dev/tempmon/internal/submission"
	"procodus.dev/tempmon/pkg/metrics"
)

// Store is the read side the query handlers depend on.
type Store interface {
	All(ctx context.Context, p store.Page) ([]store.Measurement, error)
	Count(ctx context.Context) (int64, error)
	ByDevice(ctx context.Context, mac string, p store.Page) ([]store.Measurement, error)
	ByRoom(ctx context.Context, room string, r *store.TimeRange, p store.Page) ([]store.Measurement, error)
	InTimeRange(ctx context.Context, r store.TimeRange) ([]store.Measurement, error)
	AverageTemperature(ctx context.Context, r store.TimeRange) (*float64, error)
	AverageHumidity(ctx context.Context, r store.TimeRange) (*float64, error)
	LatestPerDevice(ctx context.Context) ([]store.Measurement, error)
	Devices(ctx context.Context, p store.Page) ([]store.Device, error)
	Rooms(ctx context.Context, p store.Page) ([]store.Room, error)
}

// Ingester accepts decoded submissions.
type Ingester interface {
	Submit(ctx context.Context, sub submission.Submission, origin ingest.Origin) (ingest.Receipt, error)
}

// Config holds the API dependencies.
type Config struct {
	Logger   *slog.Logger
	Store    Store
	Ingester Ingester
	Metrics  *metrics.APIMetrics // Optional metrics
	// Now returns the current time for default query windows. Defaults to
	// time.Now.
	Now func() time.Time
}

type handler struct {
	logger   *slog.Logger
	store    Store
	ingester Ingester
	now      func() time.Time
}

// NewRouter builds the HTTP handler for every endpoint.
func NewRouter(cfg *Config) (http.Handler, error) {
	if cfg == nil {
		return nil, errors.New("api config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Ingester == nil {
		return nil, errors.New("ingester cannot be nil")
	}

	h := &handler{
		logger:   cfg.Logger,
		store:    cfg.Store,
		ingester: cfg.Ingester,
		now:      cfg.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog(cfg.Logger))
	r.Use(recoverer(cfg.Logger))
	r.Use(cors)
	if cfg.Metrics != nil {
		r.Use(instrument(cfg.Metrics))
	}

	r.Post("/request", h.submit)

	r.Route("/measurements", func(r chi.Router) {
		r.Get("/", h.measurements)
		r.Get("/device", h.measurementsByDevice)
		r.Get("/timerange", h.measurementsInTimeRange)
		r.Get("/avgTemperature", h.averageTemperature)
		r.Get("/avgHumidity", h.averageHumidity)
		r.Get("/latest", h.latest)
	})

	r.Get("/devices", h.devices)

	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", h.rooms)
		r.Get("/measurements", h.roomMeasurements)
	})

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r, nil
}
