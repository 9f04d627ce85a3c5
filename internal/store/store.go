package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"procodus.dev/tempmon/pkg/metrics"
)

// Operation names used in errors, logs and metrics.
const (
	OpSave               = "save"
	OpAll                = "all"
	OpCount              = "count"
	OpByDevice           = "by_device"
	OpByRoom             = "by_room"
	OpInTimeRange        = "in_time_range"
	OpAverageTemperature = "average_temperature"
	OpAverageHumidity    = "average_humidity"
	OpLatestPerDevice    = "latest_per_device"
	OpDevices            = "devices"
	OpRooms              = "rooms"
	OpPing               = "ping"
)

const (
	newestFirst = `"timestamp" DESC, id DESC`
	oldestFirst = `"timestamp" ASC, id ASC`
	inRange     = `"timestamp" >= ? AND "timestamp" <= ?`

	latestPerDeviceSQL = `SELECT DISTINCT ON (device_name) * FROM measurements
WHERE device_name IS NOT NULL
ORDER BY device_name, "timestamp" DESC, id DESC`
)

// Store reads and appends measurements. Every operation holds one pooled
// connection for its duration and releases it on return.
type Store struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.StoreMetrics
}

// NewStore creates a store over db. m may be nil.
func NewStore(db *gorm.DB, logger *slog.Logger, m *metrics.StoreMetrics) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Store{
		db:      db,
		logger:  logger,
		metrics: m,
	}, nil
}

// withConn runs fn on a dedicated connection and wraps any failure in *Error.
func (s *Store) withConn(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		// A fresh session per query chain, all on the same connection.
		return fn(tx.Session(&gorm.Session{}))
	})

	if s.metrics != nil {
		s.metrics.Observe(op, time.Since(start), err)
	}
	if err != nil {
		s.logger.Error("store operation failed", "op", op, "error", err)
		return &Error{Op: op, Err: err}
	}
	return nil
}

// Save inserts one measurement and returns its id. A nil timestamp is
// filled in by the database with the insertion time.
func (s *Store) Save(ctx context.Context, m NewMeasurement) (int64, error) {
	row := Measurement{
		Temperature: m.Temperature,
		Humidity:    m.Humidity,
		IPAddress:   m.IPAddress,
		MACAddress:  m.MACAddress,
		DeviceName:  m.DeviceName,
	}
	if m.Timestamp != nil {
		row.Timestamp = m.Timestamp.UTC()
	}

	err := s.withConn(ctx, OpSave, func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if row.ID == 0 {
			return ErrNoIdentity
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.MeasurementsSaved.Inc()
	}
	s.logger.Debug("measurement saved", "id", row.ID, "device_name", deref(row.DeviceName))
	return row.ID, nil
}

// All returns measurements newest first.
func (s *Store) All(ctx context.Context, p Page) ([]Measurement, error) {
	return s.find(ctx, OpAll, func(tx *gorm.DB) *gorm.DB {
		return tx.Scopes(paginate(p)).Order(newestFirst)
	})
}

// Count returns the number of stored measurements.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.withConn(ctx, OpCount, func(tx *gorm.DB) error {
		return tx.Model(&Measurement{}).Count(&n).Error
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ByDevice returns the measurements of one MAC address newest first.
func (s *Store) ByDevice(ctx context.Context, mac string, p Page) ([]Measurement, error) {
	return s.find(ctx, OpByDevice, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("mac_address = ?", mac).Scopes(paginate(p)).Order(newestFirst)
	})
}

// ByRoom returns the measurements whose device name equals room newest
// first, narrowed to r when it is not nil.
func (s *Store) ByRoom(ctx context.Context, room string, r *TimeRange, p Page) ([]Measurement, error) {
	return s.find(ctx, OpByRoom, func(tx *gorm.DB) *gorm.DB {
		q := tx.Where("device_name = ?", room)
		if r != nil {
			q = q.Where(inRange, r.Start, r.End)
		}
		return q.Scopes(paginate(p)).Order(newestFirst)
	})
}

// InTimeRange returns the measurements within r oldest first. Both bounds
// are inclusive.
func (s *Store) InTimeRange(ctx context.Context, r TimeRange) ([]Measurement, error) {
	return s.find(ctx, OpInTimeRange, func(tx *gorm.DB) *gorm.DB {
		return tx.Where(inRange, r.Start, r.End).Order(oldestFirst)
	})
}

// AverageTemperature returns the mean temperature within r, or nil when no
// row in r carries a temperature.
func (s *Store) AverageTemperature(ctx context.Context, r TimeRange) (*float64, error) {
	return s.average(ctx, OpAverageTemperature, "temperature", r)
}

// AverageHumidity returns the mean humidity within r, or nil when no row in
// r carries a humidity.
func (s *Store) AverageHumidity(ctx context.Context, r TimeRange) (*float64, error) {
	return s.average(ctx, OpAverageHumidity, "humidity", r)
}

func (s *Store) average(ctx context.Context, op, column string, r TimeRange) (*float64, error) {
	var avg sql.NullFloat64
	err := s.withConn(ctx, op, func(tx *gorm.DB) error {
		return tx.Model(&Measurement{}).
			Select("AVG("+column+")").
			Where(inRange, r.Start, r.End).
			Scan(&avg).Error
	})
	if err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// LatestPerDevice returns, for every device name, its most recent
// measurement. Equal timestamps resolve to the highest id.
func (s *Store) LatestPerDevice(ctx context.Context) ([]Measurement, error) {
	return s.find(ctx, OpLatestPerDevice, func(tx *gorm.DB) *gorm.DB {
		return tx.Raw(latestPerDeviceSQL)
	})
}

type devicePair struct {
	MACAddress *string `gorm:"column:mac_address"`
	DeviceName *string `gorm:"column:device_name"`
}

func (d devicePair) device() Device {
	return Device{MACAddress: deref(d.MACAddress), Name: deref(d.DeviceName)}
}

func devicePairs(tx *gorm.DB) *gorm.DB {
	return tx.Model(&Measurement{}).
		Select("mac_address, device_name").
		Group("mac_address, device_name").
		Order("mac_address, device_name")
}

// Devices returns the distinct (MAC address, device name) pairs ordered by
// MAC address then name.
func (s *Store) Devices(ctx context.Context, p Page) ([]Device, error) {
	var pairs []devicePair
	err := s.withConn(ctx, OpDevices, func(tx *gorm.DB) error {
		return devicePairs(tx).Scopes(paginate(p)).Scan(&pairs).Error
	})
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(pairs))
	for _, pair := range pairs {
		devices = append(devices, pair.device())
	}
	return devices, nil
}

// Rooms pages through the distinct non-null device names ordered by name
// and attaches the devices reporting under each.
func (s *Store) Rooms(ctx context.Context, p Page) ([]Room, error) {
	var (
		names []string
		pairs []devicePair
	)
	err := s.withConn(ctx, OpRooms, func(tx *gorm.DB) error {
		err := tx.Model(&Measurement{}).
			Where("device_name IS NOT NULL").
			Distinct().
			Order("device_name").
			Scopes(paginate(p)).
			Pluck("device_name", &names).Error
		if err != nil || len(names) == 0 {
			return err
		}
		return devicePairs(tx).Where("device_name IN ?", names).Scan(&pairs).Error
	})
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(pairs))
	for _, pair := range pairs {
		devices = append(devices, pair.device())
	}
	return GroupRooms(names, devices), nil
}

// Ping checks that a connection can be acquired and used.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, OpPing, func(tx *gorm.DB) error {
		return tx.Exec("SELECT 1").Error
	})
}

func (s *Store) find(ctx context.Context, op string, query func(tx *gorm.DB) *gorm.DB) ([]Measurement, error) {
	rows := []Measurement{}
	err := s.withConn(ctx, op, func(tx *gorm.DB) error {
		return query(tx).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// paginate applies p, substituting the defaults for out-of-range values.
func paginate(p Page) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		limit, offset := p.Limit, p.Offset
		if limit <= 0 {
			limit = DefaultLimit
		}
		if offset < 0 {
			offset = DefaultOffset
		}
		return tx.Limit(limit).Offset(offset)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
