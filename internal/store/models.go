// Package store persists measurements in PostgreSQL and answers the
// query operations served by the API.
package store

import (
	"time"
)

// Measurement is one ingested reading. Rows are appended once and never
// updated.
type Measurement struct {
	Timestamp   time.Time `gorm:"column:timestamp;type:timestamptz;not null;default:CURRENT_TIMESTAMP;index:idx_measurements_timestamp;index:idx_measurements_device_timestamp,priority:2" json:"timestamp"`
	Temperature *float64  `gorm:"column:temperature;type:double precision" json:"temperature"`
	Humidity    *float64  `gorm:"column:humidity;type:double precision" json:"humidity"`
	IPAddress   *string   `gorm:"column:ip_address;type:varchar(45)" json:"ipAddress"`
	MACAddress  *string   `gorm:"column:mac_address;type:varchar(17);index:idx_measurements_mac" json:"macAddress"`
	DeviceName  *string   `gorm:"column:device_name;type:varchar(255);index:idx_measurements_device_timestamp,priority:1" json:"deviceName"`
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
}

// TableName specifies the table name for Measurement model.
func (Measurement) TableName() string {
	return "measurements"
}

// NewMeasurement holds the caller-supplied columns of a row to insert.
// A nil Timestamp means insertion time.
type NewMeasurement struct {
	Timestamp   *time.Time
	Temperature *float64
	Humidity    *float64
	IPAddress   *string
	MACAddress  *string
	DeviceName  *string
}

// Device is a distinct (MAC address, device name) pair observed in the
// measurements table. It has no row of its own.
type Device struct {
	MACAddress string `json:"macAddress"`
	Name       string `json:"name"`
}

// Room groups the devices sharing one device name. Rooms are computed on
// read and always hold at least one device.
type Room struct {
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

// Page bounds a paginated query.
type Page struct {
	Limit  int
	Offset int
}

// Pagination defaults.
const (
	DefaultLimit  = 100
	DefaultOffset = 0
)

// DefaultPage returns the first page of DefaultLimit rows.
func DefaultPage() Page {
	return Page{Limit: DefaultLimit, Offset: DefaultOffset}
}

// TimeRange is an inclusive window [Start, End].
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// LastDay returns the 24 hours up to now.
func LastDay(now time.Time) TimeRange {
	return TimeRange{Start: now.Add(-24 * time.Hour), End: now}
}
