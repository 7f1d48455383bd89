// Package config loads the engine configuration: every recognized option is
// an explicit struct field with a default and construction-time validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dronenav/internal/fleet"
	"dronenav/internal/model"
	"dronenav/internal/route"
	"dronenav/internal/webhooks"
)

type Config struct {
	LogLevel string `yaml:"logLevel"`
	Listen   string `yaml:"listen"`
	// APIToken guards the HTTP API when set.
	APIToken string `yaml:"apiToken"`
	// RedisURL switches the event bus to Redis Pub/Sub when set.
	RedisURL string `yaml:"redisUrl"`

	Grid         route.Grid         `yaml:"grid"`
	Fleet        FleetConfig        `yaml:"fleet"`
	Assign       AssignConfig       `yaml:"assign"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	DefaultSpecs model.VehicleSpecs  `yaml:"defaultSpecs"`
	Vehicles     []VehicleConfig     `yaml:"vehicles"`
	Webhooks     []webhooks.Endpoint `yaml:"webhooks"`
}

type FleetConfig struct {
	MinAssignBattery        float64 `yaml:"minAssignBattery"`
	LowBattery              float64 `yaml:"lowBattery"`
	DegradedBattery         float64 `yaml:"degradedBattery"`
	MaxFlightHours          float64 `yaml:"maxFlightHours"`
	MaxDutyCycles           int     `yaml:"maxDutyCycles"`
	MaintenanceIntervalDays int     `yaml:"maintenanceIntervalDays"`
	ChargeSecPerPct         int     `yaml:"chargeSecPerPct"`
}

type AssignConfig struct {
	LoadingBufferMin int `yaml:"loadingBufferMin"`
}

type MonitorConfig struct {
	IntervalSec   int     `yaml:"intervalSec"`
	ReplansPerSec float64 `yaml:"replansPerSec"`
	Burst         int     `yaml:"burst"`
}

type VehicleConfig struct {
	ID string `yaml:"id"`
	// Specs overrides DefaultSpecs for this vehicle when present.
	Specs *model.VehicleSpecs `yaml:"specs"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Listen:   ":8080",
		Grid:     route.DefaultGrid(),
		Fleet: FleetConfig{
			MinAssignBattery:        30,
			LowBattery:              20,
			DegradedBattery:         85,
			MaxFlightHours:          100,
			MaxDutyCycles:           1000,
			MaintenanceIntervalDays: 30,
			ChargeSecPerPct:         30,
		},
		Assign:  AssignConfig{LoadingBufferMin: 10},
		Monitor: MonitorConfig{IntervalSec: 15, ReplansPerSec: 1, Burst: 5},
		DefaultSpecs: model.VehicleSpecs{
			MaxPayloadKg:   5.0,
			EnergyPerKm:    10,
			MaxRangeKm:     25,
			BatteryWh:      5000,
			CruiseSpeedKph: 60,
		},
	}
}

// Load reads a YAML file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Grid.ResolutionDeg <= 0 {
		return fmt.Errorf("grid.resolutionDeg must be positive, got %v", c.Grid.ResolutionDeg)
	}
	if c.Fleet.LowBattery < 0 || c.Fleet.LowBattery > 100 {
		return fmt.Errorf("fleet.lowBattery must be within 0-100, got %v", c.Fleet.LowBattery)
	}
	if c.Fleet.MinAssignBattery < 0 || c.Fleet.MinAssignBattery > 100 {
		return fmt.Errorf("fleet.minAssignBattery must be within 0-100, got %v", c.Fleet.MinAssignBattery)
	}
	if c.DefaultSpecs.MaxPayloadKg <= 0 {
		return fmt.Errorf("defaultSpecs.maxPayloadKg must be positive, got %v", c.DefaultSpecs.MaxPayloadKg)
	}
	if c.DefaultSpecs.CruiseSpeedKph <= 0 {
		return fmt.Errorf("defaultSpecs.cruiseSpeedKph must be positive, got %v", c.DefaultSpecs.CruiseSpeedKph)
	}
	for i, v := range c.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicles[%d]: id is required", i)
		}
	}
	for i, ep := range c.Webhooks {
		if ep.URL == "" {
			return fmt.Errorf("webhooks[%d]: url is required", i)
		}
	}
	return nil
}

// Thresholds converts the scalar fleet settings into engine policy.
func (c FleetConfig) Thresholds() fleet.Thresholds {
	return fleet.Thresholds{
		MinAssignBattery:    c.MinAssignBattery,
		LowBattery:          c.LowBattery,
		DegradedBattery:     c.DegradedBattery,
		MaxFlightHours:      c.MaxFlightHours,
		MaxDutyCycles:       c.MaxDutyCycles,
		MaintenanceInterval: time.Duration(c.MaintenanceIntervalDays) * 24 * time.Hour,
		ChargeTimePerPct:    time.Duration(c.ChargeSecPerPct) * time.Second,
	}
}

func (c AssignConfig) LoadingBuffer() time.Duration {
	return time.Duration(c.LoadingBufferMin) * time.Minute
}
