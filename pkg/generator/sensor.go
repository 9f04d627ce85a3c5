// Package generator fabricates simulated room sensors and plausible
// temperature and humidity readings for them.
package generator

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// Rooms are the device names simulated sensors report under.
var Rooms = []string{
	"Living Room",
	"Kitchen",
	"Bedroom",
	"Office",
	"Bathroom",
	"Classroom",
	"Server Room",
}

// Sensor is one simulated device.
type Sensor struct {
	MACAddress string `fake:"{macaddress}"`
	IPAddress  string `fake:"{ipv4address}"`
	Firmware   string `fake:"{appversion}"`
	Room       string `fake:"skip"`
}

// NewSensor fakes a sensor placed in room.
func NewSensor(room string) (*Sensor, error) {
	var s Sensor
	if err := gofakeit.Struct(&s); err != nil {
		return nil, fmt.Errorf("failed to fake sensor: %w", err)
	}
	s.MACAddress = strings.ToUpper(s.MACAddress)
	s.Room = room
	return &s, nil
}

// NewSensors fakes n sensors spread over Rooms, so rooms hold several
// devices once n exceeds len(Rooms).
// Note: Uses math/rand for the starting room which is acceptable for simulation data.
func NewSensors(n int) ([]*Sensor, error) {
	start := rand.Intn(len(Rooms)) // #nosec G404 - weak random is acceptable for simulation

	sensors := make([]*Sensor, 0, n)
	for i := range n {
		s, err := NewSensor(Rooms[(start+i)%len(Rooms)])
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}
