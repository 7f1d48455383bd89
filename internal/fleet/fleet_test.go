package fleet

import (
    "sync"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "dronenav/internal/model"
)

var testSpecs = model.VehicleSpecs{
    MaxPayloadKg:   5.0,
    EnergyPerKm:    10,
    MaxRangeKm:     25,
    BatteryWh:      5000,
    CruiseSpeedKph: 60,
}

func newTestState(th Thresholds) *State {
    log := logrus.New()
    log.SetLevel(logrus.PanicLevel)
    return New(th, nil, log)
}

func registered(t *testing.T, s *State, id string) {
    t.Helper()
    require.NoError(t, s.Register(id, testSpecs))
    batt := 100.0
    require.NoError(t, s.UpdateStatus(id, model.StatusAvailable, &model.Coordinate{Lat: 37.77, Lng: -122.42}, &batt))
}

func TestRegisterDefaults(t *testing.T) {
    s := newTestState(DefaultThresholds())
    require.NoError(t, s.Register("DRONE-1", testSpecs))

    v, err := s.Get("DRONE-1")
    require.NoError(t, err)
    assert.Equal(t, model.StatusOffline, v.Status)
    assert.Equal(t, 100.0, v.Battery)

    p, err := s.Performance("DRONE-1")
    require.NoError(t, err)
    assert.Equal(t, 100.0, p.SuccessRate)

    err = s.Register("DRONE-1", testSpecs)
    assert.ErrorIs(t, err, ErrInvariant)
}

func TestUnknownVehicle(t *testing.T) {
    s := newTestState(DefaultThresholds())
    _, err := s.Get("nope")
    assert.ErrorIs(t, err, ErrUnknownVehicle)
    assert.ErrorIs(t, s.MarkInFlight("nope"), ErrUnknownVehicle)
    assert.ErrorIs(t, s.EnterMaintenance("nope"), ErrUnknownVehicle)
}

func TestUpdateStatusBatteryRange(t *testing.T) {
    s := newTestState(DefaultThresholds())
    require.NoError(t, s.Register("DRONE-1", testSpecs))
    bad := 150.0
    err := s.UpdateStatus("DRONE-1", model.StatusAvailable, nil, &bad)
    assert.ErrorIs(t, err, ErrInvariant)

    // rejected update leaves the record untouched
    v, _ := s.Get("DRONE-1")
    assert.Equal(t, 100.0, v.Battery)
    assert.Equal(t, model.StatusOffline, v.Status)
}

func TestLowBatteryAutoCharging(t *testing.T) {
    s := newTestState(DefaultThresholds())
    require.NoError(t, s.Register("DRONE-1", testSpecs))
    fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
    s.SetClock(func() time.Time { return fixed })

    batt := 15.0
    require.NoError(t, s.UpdateStatus("DRONE-1", model.StatusAvailable, nil, &batt))

    v, _ := s.Get("DRONE-1")
    assert.Equal(t, model.StatusCharging, v.Status)
    require.NotNil(t, v.AvailableAt)
    // 85 percent deficit at 30s per percent
    assert.Equal(t, fixed.Add(85*30*time.Second), *v.AvailableAt)
}

func TestReserveLifecycle(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")
    order := model.Order{ID: "ORD-1", WeightKg: 2.5, Priority: model.PriorityExpress}
    eta := time.Now().Add(30 * time.Minute)

    require.NoError(t, s.Reserve("DRONE-1", order, eta))
    v, _ := s.Get("DRONE-1")
    assert.Equal(t, model.StatusAssigned, v.Status)
    assert.Equal(t, "ORD-1", v.ReservedOrderID)
    assert.Equal(t, 2.5, v.CurrentPayloadKg)
    require.NotNil(t, v.AvailableAt)

    hist := s.History("DRONE-1")
    require.Len(t, hist, 1)
    assert.Equal(t, "ORD-1", hist[0].OrderID)
    assert.NotEmpty(t, hist[0].ID)

    // already assigned
    err := s.Reserve("DRONE-1", model.Order{ID: "ORD-2", WeightKg: 1}, eta)
    assert.ErrorIs(t, err, ErrInvariant)

    require.NoError(t, s.MarkInFlight("DRONE-1"))
    require.NoError(t, s.CompleteDelivery("DRONE-1", true, 20*time.Minute))

    v, _ = s.Get("DRONE-1")
    assert.Equal(t, model.StatusAvailable, v.Status)
    assert.Empty(t, v.ReservedOrderID)
    assert.Zero(t, v.CurrentPayloadKg)
    assert.Nil(t, v.AvailableAt)
    assert.Equal(t, 1, v.DutyCycles)
}

func TestReserveOverweight(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")
    err := s.Reserve("DRONE-1", model.Order{ID: "ORD-1", WeightKg: 7.5}, time.Now())
    assert.ErrorIs(t, err, ErrInvariant)

    // nothing written on failure
    v, _ := s.Get("DRONE-1")
    assert.Equal(t, model.StatusAvailable, v.Status)
    assert.Empty(t, s.History("DRONE-1"))
}

func TestReserveRaceSingleWinner(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")

    var wg sync.WaitGroup
    errs := make([]error, 8)
    for i := range errs {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            errs[i] = s.Reserve("DRONE-1", model.Order{ID: "ORD-1", WeightKg: 1}, time.Now())
        }(i)
    }
    wg.Wait()

    wins := 0
    for _, err := range errs {
        if err == nil {
            wins++
        } else {
            assert.ErrorIs(t, err, ErrInvariant)
        }
    }
    assert.Equal(t, 1, wins)
}

func TestSuccessRateRunningAverage(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")

    deliver := func(success bool, d time.Duration) {
        require.NoError(t, s.Reserve("DRONE-1", model.Order{ID: "ORD", WeightKg: 1}, time.Now()))
        require.NoError(t, s.CompleteDelivery("DRONE-1", success, d))
    }
    deliver(true, 20*time.Minute)
    deliver(false, 40*time.Minute)

    p, err := s.Performance("DRONE-1")
    require.NoError(t, err)
    assert.Equal(t, 2, p.TotalDeliveries)
    assert.Equal(t, 1, p.Successes)
    assert.Equal(t, 50.0, p.SuccessRate)
    assert.Equal(t, 30*time.Minute, p.AvgDeliveryTime)
}

func TestMaintenanceTransitions(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")

    require.NoError(t, s.EnterMaintenance("DRONE-1"))
    // idempotent once in maintenance
    require.NoError(t, s.EnterMaintenance("DRONE-1"))

    v, _ := s.Get("DRONE-1")
    assert.Equal(t, model.StatusMaintenance, v.Status)

    require.NoError(t, s.CompleteMaintenance("DRONE-1"))
    v, _ = s.Get("DRONE-1")
    assert.Equal(t, model.StatusAvailable, v.Status)
    assert.Equal(t, 100.0, v.Battery)
    assert.Zero(t, v.FlightHours)
    assert.Zero(t, v.DutyCycles)

    err := s.CompleteMaintenance("DRONE-1")
    assert.ErrorIs(t, err, ErrInvariant)
}

func TestNeedsMaintenanceDutyCycles(t *testing.T) {
    th := DefaultThresholds()
    th.MaxDutyCycles = 2
    s := newTestState(th)
    registered(t, s, "DRONE-1")

    for i := 0; i < 2; i++ {
        require.NoError(t, s.Reserve("DRONE-1", model.Order{ID: "ORD", WeightKg: 1}, time.Now()))
        require.NoError(t, s.CompleteDelivery("DRONE-1", true, 10*time.Minute))
    }
    due, err := s.NeedsMaintenance("DRONE-1")
    require.NoError(t, err)
    assert.True(t, due)
    assert.Empty(t, s.Eligible(EligibilityQuery{}), "worn vehicle must not be eligible")

    require.NoError(t, s.EnterMaintenance("DRONE-1"))
    require.NoError(t, s.CompleteMaintenance("DRONE-1"))
    due, _ = s.NeedsMaintenance("DRONE-1")
    assert.False(t, due)
}

func TestNeedsMaintenanceDegradedBattery(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")
    batt := 80.0
    require.NoError(t, s.UpdateStatus("DRONE-1", model.StatusAvailable, nil, &batt))

    due, err := s.NeedsMaintenance("DRONE-1")
    require.NoError(t, err)
    assert.True(t, due)
}

func TestEligibleFilters(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")
    registered(t, s, "DRONE-2")
    registered(t, s, "DRONE-3")
    require.NoError(t, s.Register("DRONE-4", testSpecs)) // stays offline

    low := 25.0
    require.NoError(t, s.UpdateStatus("DRONE-2", model.StatusAvailable, nil, &low)) // below min assign battery
    far := model.Coordinate{Lat: 40.71, Lng: -74.0}
    full := 100.0
    require.NoError(t, s.UpdateStatus("DRONE-3", model.StatusAvailable, &far, &full))

    got := s.Eligible(EligibilityQuery{
        MinCapacityKg: 2,
        MaxDistanceKm: 50,
        Ref:           &model.Coordinate{Lat: 37.77, Lng: -122.42},
    })
    require.Len(t, got, 1)
    assert.Equal(t, "DRONE-1", got[0].ID)
}

func TestStats(t *testing.T) {
    s := newTestState(DefaultThresholds())
    registered(t, s, "DRONE-1")
    registered(t, s, "DRONE-2")
    require.NoError(t, s.Reserve("DRONE-2", model.Order{ID: "ORD-1", WeightKg: 1}, time.Now()))

    st := s.Stats()
    assert.Equal(t, 2, st.Total)
    assert.Equal(t, 1, st.Available)
    assert.Equal(t, 1, st.Assigned)
    assert.Equal(t, 50.0, st.Utilization)
    assert.Equal(t, 100.0, st.AvgBattery)
}
