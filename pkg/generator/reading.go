package generator

import (
	"math"
	"math/rand"
	"time"
)

// Reading is one simulated sample.
type Reading struct {
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
}

// ReadingGenerator produces readings around per-sensor baselines with a
// daily cycle, noise and occasional anomalies.
type ReadingGenerator struct {
	baselineTemp     float64
	baselineHumidity float64
	noise            float64
}

// NewReadingGenerator picks random indoor baselines.
// Note: Uses math/rand which is acceptable for simulation data.
func NewReadingGenerator() *ReadingGenerator {
	return &ReadingGenerator{
		baselineTemp:     18.0 + rand.Float64()*6,  // #nosec G404 - 18-24°C
		baselineHumidity: 35.0 + rand.Float64()*20, // #nosec G404 - 35-55%
		noise:            rand.Float64() * 1.5,     // #nosec G404
	}
}

// GenerateTemperature with daily pattern.
func (g *ReadingGenerator) GenerateTemperature(t time.Time) float64 {
	hour := float64(t.Hour())

	// Daily cycle (peak around 2-3 PM), damped indoors
	dailyCycle := 2 * math.Sin((hour-6)*math.Pi/12)

	noise := (rand.Float64() - 0.5) * g.noise // #nosec G404

	// Occasional anomalies (3% chance), e.g. an open window
	anomaly := 0.0
	if rand.Float64() < 0.03 { // #nosec G404
		anomaly = (rand.Float64() - 0.5) * 8 // #nosec G404
	}

	return g.baselineTemp + dailyCycle + noise + anomaly
}

// GenerateHumidity with inverse temperature correlation.
func (g *ReadingGenerator) GenerateHumidity(t time.Time, temperature float64) float64 {
	hour := float64(t.Hour())

	// Higher at night
	dailyCycle := -3 * math.Sin((hour-6)*math.Pi/12)

	// When temp is higher than baseline, humidity tends to be lower
	tempEffect := -(temperature - g.baselineTemp) * 1.5

	noise := (rand.Float64() - 0.5) * g.noise * 0.5 // #nosec G404

	// Showers, cooking (3% chance)
	anomaly := 0.0
	if rand.Float64() < 0.03 { // #nosec G404
		anomaly = rand.Float64() * 20 // #nosec G404
	}

	humidity := g.baselineHumidity + dailyCycle + tempEffect + noise + anomaly

	return math.Max(10, math.Min(95, humidity))
}

// GenerateReading returns correlated temperature and humidity at t,
// rounded to two decimal places.
func (g *ReadingGenerator) GenerateReading(t time.Time) Reading {
	temperature := g.GenerateTemperature(t)
	humidity := g.GenerateHumidity(t, temperature)

	return Reading{
		Timestamp:   t,
		Temperature: math.Round(temperature*100) / 100,
		Humidity:    math.Round(humidity*100) / 100,
	}
}
