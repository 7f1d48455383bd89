// Package fleet holds the authoritative in-memory registry of every
// vehicle's state. All mutations go through State's methods under one lock;
// callers receive copies, never interior pointers.
package fleet

import (
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/sirupsen/logrus"

    "dronenav/internal/bus"
    "dronenav/internal/geo"
    "dronenav/internal/metrics"
    "dronenav/internal/model"
)

var (
    // ErrUnknownVehicle marks operations referencing an unregistered id.
    // A caller programming error: fatal to the operation, not the process.
    ErrUnknownVehicle = errors.New("unknown vehicle")
    // ErrInvariant marks a rejected mutation that would break a fleet
    // invariant (payload over capacity, battery out of range, bad
    // transition). Detected before any state is written.
    ErrInvariant = errors.New("invariant violation")
)

// Vehicle is a snapshot of one registered drone.
type Vehicle struct {
    ID               string              `json:"id"`
    Status           model.VehicleStatus `json:"status"`
    Battery          float64             `json:"battery"` // 0-100
    Location         model.Coordinate    `json:"location"`
    Specs            model.VehicleSpecs  `json:"specs"`
    CurrentPayloadKg float64             `json:"currentPayloadKg"`
    FlightHours      float64             `json:"flightHours"`
    DutyCycles       int                 `json:"dutyCycles"`
    LastMaintenance  time.Time           `json:"lastMaintenance"`
    ReservedOrderID  string              `json:"reservedOrderId,omitempty"`
    AvailableAt      *time.Time          `json:"availableAt,omitempty"`
}

// Performance is one vehicle's rolling delivery statistics. SuccessRate is
// successes/total*100 over an explicit success counter; a vehicle with no
// history reports 100 as the documented neutral default.
type Performance struct {
    TotalDeliveries int           `json:"totalDeliveries"`
    Successes       int           `json:"successes"`
    SuccessRate     float64       `json:"successRate"`
    AvgDeliveryTime time.Duration `json:"avgDeliveryTime"`
    EnergyWhUsed    float64       `json:"energyWhUsed"`
    MaintenanceCost float64       `json:"maintenanceCost"`
}

// Thresholds are the fleet policy knobs, loaded from config.
type Thresholds struct {
    MinAssignBattery    float64
    LowBattery          float64
    DegradedBattery     float64
    MaxFlightHours      float64
    MaxDutyCycles       int
    MaintenanceInterval time.Duration
    ChargeTimePerPct    time.Duration
}

func DefaultThresholds() Thresholds {
    return Thresholds{
        MinAssignBattery:    30,
        LowBattery:          20,
        DegradedBattery:     85,
        MaxFlightHours:      100,
        MaxDutyCycles:       1000,
        MaintenanceInterval: 30 * 24 * time.Hour,
        ChargeTimePerPct:    30 * time.Second,
    }
}

// EligibilityQuery filters the available set for an order.
type EligibilityQuery struct {
    MinBattery    float64          // 0 means the fleet default
    MinCapacityKg float64
    MaxDistanceKm float64          // 0 means unbounded
    Ref           *model.Coordinate
}

// Stats is the read-only snapshot pulled by dashboards.
type Stats struct {
    Total          int     `json:"total"`
    Available      int     `json:"available"`
    Assigned       int     `json:"assigned"`
    InFlight       int     `json:"inFlight"`
    Charging       int     `json:"charging"`
    Maintenance    int     `json:"maintenance"`
    Offline        int     `json:"offline"`
    Utilization    float64 `json:"utilization"` // percent assigned+in-flight
    AvgBattery     float64 `json:"avgBattery"`
    TotalDeliveries int    `json:"totalDeliveries"`
    AvgSuccessRate float64 `json:"avgSuccessRate"`
}

// State owns every vehicle record exclusively.
type State struct {
    mu       sync.Mutex
    vehicles map[string]*Vehicle
    perf     map[string]*Performance
    history  map[string][]model.AssignmentRecord
    th       Thresholds
    pub      bus.Publisher
    log      *logrus.Logger
    now      func() time.Time
}

// New builds an empty registry. pub and log may be nil.
func New(th Thresholds, pub bus.Publisher, log *logrus.Logger) *State {
    if log == nil { log = logrus.StandardLogger() }
    return &State{
        vehicles: map[string]*Vehicle{},
        perf:     map[string]*Performance{},
        history:  map[string][]model.AssignmentRecord{},
        th:       th,
        pub:      pub,
        log:      log,
        now:      time.Now,
    }
}

// SetClock overrides the time source; tests only.
func (s *State) SetClock(now func() time.Time) { s.now = now }

func (s *State) Thresholds() Thresholds { return s.th }

// Register adds a vehicle in the offline state with a full battery.
func (s *State) Register(id string, specs model.VehicleSpecs) error {
    s.mu.Lock(); defer s.mu.Unlock()
    if _, dup := s.vehicles[id]; dup {
        return fmt.Errorf("vehicle %s already registered: %w", id, ErrInvariant)
    }
    s.vehicles[id] = &Vehicle{
        ID:              id,
        Status:          model.StatusOffline,
        Battery:         100,
        Specs:           specs,
        LastMaintenance: s.now(),
    }
    s.perf[id] = &Performance{SuccessRate: 100}
    s.log.WithField("vehicle", id).Info("vehicle registered")
    return nil
}

// Get returns a copy of one vehicle record.
func (s *State) Get(id string) (Vehicle, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    v, ok := s.vehicles[id]
    if !ok { return Vehicle{}, fmt.Errorf("%s: %w", id, ErrUnknownVehicle) }
    return *v, nil
}

// All returns copies of every vehicle record.
func (s *State) All() []Vehicle {
    s.mu.Lock(); defer s.mu.Unlock()
    out := make([]Vehicle, 0, len(s.vehicles))
    for _, v := range s.vehicles { out = append(out, *v) }
    return out
}

// UpdateStatus is the telemetry entry point. Location and battery are
// optional; a reported battery under the low threshold auto-transitions the
// vehicle to charging with an availability estimate proportional to the
// charge deficit.
func (s *State) UpdateStatus(id string, status model.VehicleStatus, loc *model.Coordinate, battery *float64) error {
    s.mu.Lock()
    v, ok := s.vehicles[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
    }
    if battery != nil && (*battery < 0 || *battery > 100) {
        s.mu.Unlock()
        return fmt.Errorf("battery %.1f out of range: %w", *battery, ErrInvariant)
    }
    from := v.Status
    v.Status = status
    if loc != nil { v.Location = *loc }
    if battery != nil { v.Battery = *battery }
    if battery != nil && *battery < s.th.LowBattery && v.Status != model.StatusCharging {
        v.Status = model.StatusCharging
        at := s.now().Add(time.Duration((100 - v.Battery) * float64(s.th.ChargeTimePerPct)))
        v.AvailableAt = &at
    }
    to := v.Status
    s.mu.Unlock()
    if from != to { s.publishTransition(id, from, to) }
    return nil
}

// Reserve atomically moves an available vehicle to assigned for an order.
// This is the race-safe re-validation point: two callers racing for the same
// vehicle see exactly one success. Nothing is written on failure.
func (s *State) Reserve(id string, order model.Order, availableAt time.Time) error {
    s.mu.Lock()
    v, ok := s.vehicles[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
    }
    if v.Status != model.StatusAvailable {
        s.mu.Unlock()
        return fmt.Errorf("vehicle %s is %s, not available: %w", id, v.Status, ErrInvariant)
    }
    if order.WeightKg > v.Specs.MaxPayloadKg {
        s.mu.Unlock()
        return fmt.Errorf("payload %.1fkg exceeds capacity %.1fkg: %w", order.WeightKg, v.Specs.MaxPayloadKg, ErrInvariant)
    }
    v.Status = model.StatusAssigned
    v.ReservedOrderID = order.ID
    v.CurrentPayloadKg = order.WeightKg
    v.AvailableAt = &availableAt
    s.history[id] = append(s.history[id], model.AssignmentRecord{
        ID:         uuid.New().String(),
        OrderID:    order.ID,
        AssignedAt: s.now(),
        Priority:   order.Priority,
        WeightKg:   order.WeightKg,
    })
    s.mu.Unlock()
    s.publishTransition(id, model.StatusAvailable, model.StatusAssigned)
    if s.pub != nil {
        s.pub.Publish("fleet", bus.Event{Type: "order.assigned", Data: map[string]any{"vehicle": id, "order": order.ID}})
    }
    return nil
}

// MarkInFlight moves an assigned vehicle to in-flight at departure.
func (s *State) MarkInFlight(id string) error {
    s.mu.Lock()
    v, ok := s.vehicles[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
    }
    if v.Status != model.StatusAssigned {
        s.mu.Unlock()
        return fmt.Errorf("vehicle %s is %s, not assigned: %w", id, v.Status, ErrInvariant)
    }
    v.Status = model.StatusInFlight
    s.mu.Unlock()
    s.publishTransition(id, model.StatusAssigned, model.StatusInFlight)
    return nil
}

// CompleteDelivery returns an assigned or in-flight vehicle to available,
// clears the reservation, bumps wear counters, and folds the outcome into
// the vehicle's rolling performance statistics.
func (s *State) CompleteDelivery(id string, success bool, actual time.Duration) error {
    s.mu.Lock()
    v, ok := s.vehicles[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
    }
    if v.Status != model.StatusAssigned && v.Status != model.StatusInFlight {
        s.mu.Unlock()
        return fmt.Errorf("vehicle %s is %s, no delivery to complete: %w", id, v.Status, ErrInvariant)
    }
    from := v.Status
    v.Status = model.StatusAvailable
    v.ReservedOrderID = ""
    v.CurrentPayloadKg = 0
    v.AvailableAt = nil
    v.DutyCycles++
    v.FlightHours += actual.Hours()

    p := s.perf[id]
    p.TotalDeliveries++
    if success { p.Successes++ }
    p.SuccessRate = float64(p.Successes) / float64(p.TotalDeliveries) * 100
    p.AvgDeliveryTime = time.Duration((int64(p.AvgDeliveryTime)*int64(p.TotalDeliveries-1) + int64(actual)) / int64(p.TotalDeliveries))
    s.mu.Unlock()

    result := "success"
    if !success { result = "failure" }
    metrics.DeliveriesTotal.WithLabelValues(result).Inc()
    s.publishTransition(id, from, model.StatusAvailable)
    s.log.WithFields(logrus.Fields{"vehicle": id, "success": success, "duration": actual}).Info("delivery completed")
    return nil
}

// EnterMaintenance pulls a vehicle from service. Valid from any state but
// maintenance itself; emergency tasks use this path immediately.
func (s *State) EnterMaintenance(id string) error {
    s.mu.Lock()
    v, ok := s.vehicles[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
    }
    if v.Status == model.StatusMaintenance {
        s.mu.Unlock()
        return nil
    }
    from := v.Status
    v.Status = model.StatusMaintenance
    v.LastMaintenance = s.now()
    s.mu.Unlock()
    s.publishTransition(id, from, model.StatusMaintenance)
    return nil
}

// CompleteMaintenance returns the vehicle to service with reset wear
// counters and a full battery.
func (s *State) CompleteMaintenance(id string) error {
    s.mu.Lock()
    v, ok := s.vehicles[id]
    if !ok {
        s.mu.Unlock()
        return fmt.Errorf("%s: %w", id, ErrUnknownVehicle)
    }
    if v.Status != model.StatusMaintenance {
        s.mu.Unlock()
        return fmt.Errorf("vehicle %s is %s, not in maintenance: %w", id, v.Status, ErrInvariant)
    }
    v.Status = model.StatusAvailable
    v.Battery = 100
    v.FlightHours = 0
    v.DutyCycles = 0
    v.LastMaintenance = s.now()
    s.mu.Unlock()
    s.publishTransition(id, model.StatusMaintenance, model.StatusAvailable)
    return nil
}

// NeedsMaintenance reports whether any wear threshold is breached.
func (s *State) NeedsMaintenance(id string) (bool, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    v, ok := s.vehicles[id]
    if !ok { return false, fmt.Errorf("%s: %w", id, ErrUnknownVehicle) }
    return s.needsMaintenance(v), nil
}

func (s *State) needsMaintenance(v *Vehicle) bool {
    if v.FlightHours >= s.th.MaxFlightHours {
        return true
    }
    if s.now().Sub(v.LastMaintenance) >= s.th.MaintenanceInterval {
        return true
    }
    if v.DutyCycles >= s.th.MaxDutyCycles {
        return true
    }
    if v.Battery < s.th.DegradedBattery && v.Status == model.StatusAvailable {
        return true
    }
    return false
}

// Eligible lists available vehicles satisfying the query and not due for
// maintenance. Returned records are copies of a consistent snapshot; callers
// must still Reserve to win the vehicle.
func (s *State) Eligible(q EligibilityQuery) []Vehicle {
    s.mu.Lock(); defer s.mu.Unlock()
    minBattery := q.MinBattery
    if minBattery <= 0 { minBattery = s.th.MinAssignBattery }
    out := []Vehicle{}
    for _, v := range s.vehicles {
        if v.Status != model.StatusAvailable { continue }
        if v.Battery < minBattery { continue }
        if q.MinCapacityKg > 0 && v.Specs.MaxPayloadKg < q.MinCapacityKg { continue }
        if q.MaxDistanceKm > 0 && q.Ref != nil {
            if geo.SurfaceDistanceKm(v.Location, *q.Ref) > q.MaxDistanceKm { continue }
        }
        if s.needsMaintenance(v) { continue }
        out = append(out, *v)
    }
    return out
}

// Performance returns a copy of a vehicle's rolling statistics.
func (s *State) Performance(id string) (Performance, error) {
    s.mu.Lock(); defer s.mu.Unlock()
    p, ok := s.perf[id]
    if !ok { return Performance{}, fmt.Errorf("%s: %w", id, ErrUnknownVehicle) }
    return *p, nil
}

// History returns the append-only assignment log for a vehicle.
func (s *State) History(id string) []model.AssignmentRecord {
    s.mu.Lock(); defer s.mu.Unlock()
    return append([]model.AssignmentRecord(nil), s.history[id]...)
}

// Stats computes the dashboard snapshot and refreshes the fleet gauges.
func (s *State) Stats() Stats {
    s.mu.Lock()
    st := Stats{Total: len(s.vehicles)}
    sumBattery := 0.0
    sumRate := 0.0
    for _, v := range s.vehicles {
        switch v.Status {
        case model.StatusAvailable:
            st.Available++
        case model.StatusAssigned:
            st.Assigned++
        case model.StatusInFlight:
            st.InFlight++
        case model.StatusCharging:
            st.Charging++
        case model.StatusMaintenance:
            st.Maintenance++
        case model.StatusOffline:
            st.Offline++
        }
        sumBattery += v.Battery
    }
    for _, p := range s.perf {
        st.TotalDeliveries += p.TotalDeliveries
        sumRate += p.SuccessRate
    }
    s.mu.Unlock()
    if st.Total > 0 {
        st.Utilization = float64(st.Assigned+st.InFlight) / float64(st.Total) * 100
        st.AvgBattery = sumBattery / float64(st.Total)
        st.AvgSuccessRate = sumRate / float64(st.Total)
    }
    metrics.VehiclesByStatus.WithLabelValues(string(model.StatusAvailable)).Set(float64(st.Available))
    metrics.VehiclesByStatus.WithLabelValues(string(model.StatusAssigned)).Set(float64(st.Assigned))
    metrics.VehiclesByStatus.WithLabelValues(string(model.StatusInFlight)).Set(float64(st.InFlight))
    metrics.VehiclesByStatus.WithLabelValues(string(model.StatusCharging)).Set(float64(st.Charging))
    metrics.VehiclesByStatus.WithLabelValues(string(model.StatusMaintenance)).Set(float64(st.Maintenance))
    metrics.VehiclesByStatus.WithLabelValues(string(model.StatusOffline)).Set(float64(st.Offline))
    metrics.FleetAvgBattery.Set(st.AvgBattery)
    return st
}

func (s *State) publishTransition(id string, from, to model.VehicleStatus) {
    s.log.WithFields(logrus.Fields{"vehicle": id, "from": from, "to": to}).Debug("status transition")
    if s.pub == nil { return }
    s.pub.Publish("fleet", bus.Event{Type: "vehicle.status", Data: map[string]any{
        "vehicle": id,
        "from":    string(from),
        "to":      string(to),
    }})
}
