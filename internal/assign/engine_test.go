package assign

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dronenav/internal/fleet"
	"dronenav/internal/model"
	"dronenav/internal/route"
)

var testSpecs = model.VehicleSpecs{
	MaxPayloadKg:   5.0,
	EnergyPerKm:    10,
	MaxRangeKm:     25,
	BatteryWh:      5000,
	CruiseSpeedKph: 60,
}

var (
	depot    = model.Coordinate{Lat: 37.7749, Lng: -122.4194, Alt: 100}
	pickup   = model.Coordinate{Lat: 37.7759, Lng: -122.4184, Alt: 100}
	delivery = model.Coordinate{Lat: 37.7789, Lng: -122.4154, Alt: 100}
)

func newTestEngine(t *testing.T, noFly route.CellSet) *Engine {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	g := route.DefaultGrid()
	p := route.NewPlanner(g, route.StaticWeather{Grid: g, Default: route.CalmWeather()}, noFly)
	f := fleet.New(fleet.DefaultThresholds(), nil, log)
	return NewEngine(f, p, route.NewRerouter(p, log), log)
}

func addVehicle(t *testing.T, e *Engine, id string, battery float64) {
	t.Helper()
	require.NoError(t, e.Fleet.Register(id, testSpecs))
	loc := depot
	require.NoError(t, e.Fleet.UpdateStatus(id, model.StatusAvailable, &loc, &battery))
}

func TestAssignPicksBestCandidate(t *testing.T) {
	e := newTestEngine(t, route.CellSet{})
	addVehicle(t, e, "DRONE-1", 90)
	addVehicle(t, e, "DRONE-2", 100)
	addVehicle(t, e, "DRONE-3", 100)
	addVehicle(t, e, "DRONE-4", 85)
	addVehicle(t, e, "DRONE-5", 80)

	order := model.Order{ID: "ORD-1", Pickup: pickup, Delivery: delivery, WeightKg: 2.5, Priority: model.PriorityExpress}
	id, err := e.Assign(context.Background(), order)
	require.NoError(t, err)
	// equal distance and reliability: the full-battery pair wins, tie broken
	// by lowest vehicle id
	assert.Equal(t, "DRONE-2", id)

	v, err := e.Fleet.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, v.Status)
	assert.Equal(t, "ORD-1", v.ReservedOrderID)
	require.NotNil(t, v.AvailableAt)
	assert.NotEmpty(t, e.Rerouter.Active(id))

	// the rest of the fleet is untouched
	for _, other := range []string{"DRONE-1", "DRONE-3", "DRONE-4", "DRONE-5"} {
		v, _ := e.Fleet.Get(other)
		assert.Equal(t, model.StatusAvailable, v.Status)
	}
}

func TestAssignNoEligibleVehicle(t *testing.T) {
	e := newTestEngine(t, route.CellSet{})
	order := model.Order{ID: "ORD-1", Pickup: pickup, Delivery: delivery, WeightKg: 2.5}
	_, err := e.Assign(context.Background(), order)
	assert.ErrorIs(t, err, ErrNoEligibleVehicle)

	// an overweight order also matches no vehicle
	addVehicle(t, e, "DRONE-1", 100)
	order.WeightKg = 7.5
	_, err = e.Assign(context.Background(), order)
	assert.ErrorIs(t, err, ErrNoEligibleVehicle)
}

func TestAssignInfeasibleDestination(t *testing.T) {
	g := route.DefaultGrid()
	noFly := route.CellSet{}
	noFly.Add(g.CellOf(delivery))
	e := newTestEngine(t, noFly)
	addVehicle(t, e, "DRONE-1", 100)

	order := model.Order{ID: "ORD-1", Pickup: pickup, Delivery: delivery, WeightKg: 2.5}
	_, err := e.Assign(context.Background(), order)
	assert.ErrorIs(t, err, route.ErrNoPathFound)

	// failed assignment leaves no reservation behind
	v, _ := e.Fleet.Get("DRONE-1")
	assert.Equal(t, model.StatusAvailable, v.Status)
	assert.Empty(t, v.ReservedOrderID)
}

func TestAssignAllPriorityOrdering(t *testing.T) {
	e := newTestEngine(t, route.CellSet{})
	addVehicle(t, e, "DRONE-1", 100)
	addVehicle(t, e, "DRONE-2", 100)

	orders := []model.Order{
		{ID: "ORD-STD", Pickup: pickup, Delivery: delivery, WeightKg: 1, Priority: model.PriorityStandard},
		{ID: "ORD-EMG", Pickup: pickup, Delivery: delivery, WeightKg: 1, Priority: model.PriorityEmergency},
		{ID: "ORD-EXP", Pickup: pickup, Delivery: delivery, WeightKg: 1, Priority: model.PriorityExpress},
	}
	got := e.AssignAll(context.Background(), orders)

	require.Len(t, got, 2)
	assert.Contains(t, got, "ORD-EMG")
	assert.Contains(t, got, "ORD-EXP")
	assert.NotContains(t, got, "ORD-STD")
	// the emergency order sees the full pool first and takes the cheapest id
	assert.Equal(t, "DRONE-1", got["ORD-EMG"])
	assert.Equal(t, "DRONE-2", got["ORD-EXP"])

	for _, id := range []string{"DRONE-1", "DRONE-2"} {
		v, _ := e.Fleet.Get(id)
		assert.Equal(t, model.StatusAssigned, v.Status)
	}
}

func TestAssignAllSkipsOverweightOrders(t *testing.T) {
	e := newTestEngine(t, route.CellSet{})
	addVehicle(t, e, "DRONE-1", 100)

	orders := []model.Order{
		{ID: "ORD-HEAVY", Pickup: pickup, Delivery: delivery, WeightKg: 9, Priority: model.PriorityEmergency},
		{ID: "ORD-LIGHT", Pickup: pickup, Delivery: delivery, WeightKg: 1, Priority: model.PriorityStandard},
	}
	got := e.AssignAll(context.Background(), orders)
	require.Len(t, got, 1)
	assert.Equal(t, "DRONE-1", got["ORD-LIGHT"])
}
