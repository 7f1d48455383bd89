package model

import "time"

// Core domain types shared across the engine packages.

// Coordinate is a 3-D position: degrees latitude/longitude, meters altitude.
type Coordinate struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
    Alt float64 `json:"alt,omitempty"`
}

// Weather is a point-in-time sample from the weather oracle. The engine never
// caches samples beyond a single planning call.
type Weather struct {
    WindSpeed     float64 `json:"windSpeed"`     // km/h
    WindDirection float64 `json:"windDirection"` // degrees
    Visibility    float64 `json:"visibility"`    // km
    Precipitation float64 `json:"precipitation"` // mm
    Temperature   float64 `json:"temperature"`   // celsius
}

// VehicleSpecs enumerates every recognized vehicle capability option.
type VehicleSpecs struct {
    MaxPayloadKg   float64 `json:"maxPayloadKg" yaml:"maxPayloadKg"`
    EnergyPerKm    float64 `json:"energyPerKm" yaml:"energyPerKm"` // Wh/km
    MaxRangeKm     float64 `json:"maxRangeKm" yaml:"maxRangeKm"`
    BatteryWh      float64 `json:"batteryWh" yaml:"batteryWh"`
    CruiseSpeedKph float64 `json:"cruiseSpeedKph" yaml:"cruiseSpeedKph"`
}

type VehicleStatus string

const (
    StatusOffline     VehicleStatus = "offline"
    StatusAvailable   VehicleStatus = "available"
    StatusAssigned    VehicleStatus = "assigned"
    StatusInFlight    VehicleStatus = "in_flight"
    StatusCharging    VehicleStatus = "charging"
    StatusMaintenance VehicleStatus = "maintenance"
)

type MaintenanceKind string

const (
    MaintRoutine   MaintenanceKind = "routine"
    MaintBattery   MaintenanceKind = "battery"
    MaintMotor     MaintenanceKind = "motor"
    MaintSensor    MaintenanceKind = "sensor"
    MaintEmergency MaintenanceKind = "emergency"
)

type OrderPriority string

const (
    PriorityStandard  OrderPriority = "standard"
    PriorityExpress   OrderPriority = "express"
    PriorityEmergency OrderPriority = "emergency"
)

// Rank orders priorities for batch consumption: emergency first.
func (p OrderPriority) Rank() int {
    switch p {
    case PriorityEmergency:
        return 0
    case PriorityExpress:
        return 1
    default:
        return 2
    }
}

// Order is external input; the engine never mutates it.
type Order struct {
    ID       string        `json:"id"`
    Pickup   Coordinate    `json:"pickup"`
    Delivery Coordinate    `json:"delivery"`
    WeightKg float64       `json:"weightKg"`
    Priority OrderPriority `json:"priority"`
}

// Drop is one destination of a multi-delivery run.
type Drop struct {
    Dest     Coordinate `json:"dest"`
    WeightKg float64    `json:"weightKg"`
}

// AssignmentRecord is an append-only log entry of one order->vehicle binding.
type AssignmentRecord struct {
    ID         string        `json:"id"`
    OrderID    string        `json:"orderId"`
    AssignedAt time.Time     `json:"assignedAt"`
    Priority   OrderPriority `json:"priority"`
    WeightKg   float64       `json:"weightKg"`
}
