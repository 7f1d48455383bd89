// Package cost computes per-segment traversal cost from distance, weather,
// payload, and vehicle specs. All functions are pure.
package cost

import (
	"math"

	"dronenav/internal/geo"
	"dronenav/internal/model"
)

// Edge weight split between distance, energy, and risk.
const (
	WeightDistance = 0.4
	WeightEnergy   = 0.3
	WeightRisk     = 0.3
)

// EnergyWh estimates energy consumption for one flight segment in Wh.
func EnergyWh(distKm float64, wx model.Weather, payloadKg float64, specs model.VehicleSpecs) float64 {
	base := distKm * specs.EnergyPerKm
	windFactor := 1 + wx.WindSpeed/50
	payloadFactor := 1.0
	if specs.MaxPayloadKg > 0 {
		payloadFactor = 1 + (payloadKg/specs.MaxPayloadKg)*0.3
	}
	weatherFactor := 1.0
	if wx.Precipitation > 0 {
		weatherFactor += 0.2
	}
	if wx.Temperature < 0 || wx.Temperature > 35 {
		weatherFactor += 0.1
	}
	return base * windFactor * payloadFactor * weatherFactor
}

// Risk scores the safety of flying through a cell, 0 (safe) to 1 (forbidden).
// A no-fly cell is always 1 regardless of conditions.
func Risk(wx model.Weather, airTraffic float64, noFly bool) float64 {
	if noFly {
		return 1.0
	}
	score := 0.0
	if wx.WindSpeed > 30 {
		score += 0.3
	}
	if wx.Visibility < 5 {
		score += 0.2
	}
	if wx.Precipitation > 5 {
		score += 0.3
	}
	score += math.Min(airTraffic/100, 0.2)
	return math.Min(score, 1.0)
}

// Segment is the weighted edge cost between two neighboring grid cells,
// sampled with the destination cell's weather.
func Segment(from, to model.Coordinate, wx model.Weather, payloadKg float64, specs model.VehicleSpecs, airTraffic float64, noFly bool) float64 {
	d := geo.DistanceKm(from, to)
	return WeightDistance*d +
		WeightEnergy*EnergyWh(d, wx, payloadKg, specs) +
		WeightRisk*Risk(wx, airTraffic, noFly)
}
