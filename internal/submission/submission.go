// Package submission decodes sensor payloads into one of the three
// discriminated submission variants.
package submission

import (
	"time"
)

// Tag is the discriminator carried in the "type" field of a submission.
type Tag string

// Known discriminator values.
const (
	TagTemperatureHumidity Tag = "TEMPERATURE_HUMIDITY"
	TagHumidity            Tag = "HUMIDITY"
	TagTemperature         Tag = "TEMPERATURE"
)

// Tags lists every known discriminator.
var Tags = []Tag{TagTemperatureHumidity, TagHumidity, TagTemperature}

// Submission is implemented only by the variants in this package.
type Submission interface {
	// Type returns the tag the variant was decoded from.
	Type() Tag
	// From returns the sender-supplied identity fields.
	From() Sender

	sealed()
}

// Sender holds the optional fields every variant may carry in its body.
// These are what the device claims; the transport-observed values are
// resolved separately by the ingestion service.
type Sender struct {
	IPAddress  *string    `json:"ipAddress,omitempty"`
	DeviceName *string    `json:"deviceName,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// TemperatureHumidity carries both readings.
type TemperatureHumidity struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Sender
}

// Humidity carries a humidity reading only.
type Humidity struct {
	Humidity *float64 `json:"humidity"`
	Sender
}

// Temperature carries a temperature reading only.
type Temperature struct {
	Temperature *float64 `json:"temperature"`
	Sender
}

func (TemperatureHumidity) Type() Tag { return TagTemperatureHumidity }
func (Humidity) Type() Tag            { return TagHumidity }
func (Temperature) Type() Tag         { return TagTemperature }

func (s TemperatureHumidity) From() Sender { return s.Sender }
func (s Humidity) From() Sender            { return s.Sender }
func (s Temperature) From() Sender         { return s.Sender }

func (TemperatureHumidity) sealed() {}
func (Humidity) sealed()            {}
func (Temperature) sealed()         {}

// Values projects a submission onto the measurement columns. A variant
// never yields a value for a field it does not carry.
func Values(s Submission) (temperature, humidity *float64) {
	switch v := s.(type) {
	case TemperatureHumidity:
		return v.Temperature, v.Humidity
	case Humidity:
		return nil, v.Humidity
	case Temperature:
		return v.Temperature, nil
	default:
		panic("submission: unknown variant")
	}
}

// Name returns the human readable variant name used in acknowledgments.
func Name(s Submission) string {
	switch s.(type) {
	case TemperatureHumidity:
		return "TemperatureHumidityRequest"
	case Humidity:
		return "HumidityRequest"
	case Temperature:
		return "TemperatureRequest"
	default:
		panic("submission: unknown variant")
	}
}
