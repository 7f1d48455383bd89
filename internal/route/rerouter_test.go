package route

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dronenav/internal/model"
)

// straight lattice route along the diagonal, 5 waypoints
func diagonalRoute() []model.Coordinate {
	out := make([]model.Coordinate, 0, 5)
	for i := 0; i < 5; i++ {
		out = append(out, model.Coordinate{
			Lat: 37.7749 + float64(i)*0.001,
			Lng: -122.4194 + float64(i)*0.001,
			Alt: 100,
		})
	}
	return out
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestReconcileUnknownVehicle(t *testing.T) {
	r := NewRerouter(calmPlanner(CellSet{}), quietLogger())
	_, err := r.Reconcile(context.Background(), "DRONE-404", model.Coordinate{}, nil, CellSet{})
	assert.Error(t, err)
}

func TestReconcileNoChangeKeepsRoute(t *testing.T) {
	r := NewRerouter(calmPlanner(CellSet{}), quietLogger())
	route := diagonalRoute()
	r.SetActive("DRONE-1", route, testSpecs, 1.0)

	got, err := r.Reconcile(context.Background(), "DRONE-1", route[0], nil, CellSet{})
	require.NoError(t, err)
	assert.Equal(t, route, got)

	again, err := r.Reconcile(context.Background(), "DRONE-1", route[0], nil, CellSet{})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestReconcileReturnsSuffixFromPosition(t *testing.T) {
	r := NewRerouter(calmPlanner(CellSet{}), quietLogger())
	route := diagonalRoute()
	r.SetActive("DRONE-1", route, testSpecs, 1.0)

	got, err := r.Reconcile(context.Background(), "DRONE-1", route[2], nil, CellSet{})
	require.NoError(t, err)
	assert.Equal(t, route[2:], got)
}

func TestReconcileReplansAroundRestriction(t *testing.T) {
	g := DefaultGrid()
	route := diagonalRoute()
	blocked := CellSet{}
	blocked.Add(g.CellOf(route[2]))

	r := NewRerouter(calmPlanner(blocked), quietLogger())
	r.SetActive("DRONE-1", route, testSpecs, 1.0)

	fresh, err := r.Reconcile(context.Background(), "DRONE-1", route[0], nil, blocked)
	require.NoError(t, err)
	require.NotEmpty(t, fresh)
	for _, wp := range fresh {
		assert.False(t, blocked.Contains(g.CellOf(wp)), "replanned route enters restricted cell")
	}
	assert.Equal(t, fresh, r.Active("DRONE-1"))

	// unchanged conditions after the swap keep the new route stable
	again, err := r.Reconcile(context.Background(), "DRONE-1", route[0], nil, blocked)
	require.NoError(t, err)
	assert.Equal(t, fresh, again)
}

func TestReconcileUnsafeWhenGoalStormed(t *testing.T) {
	g := DefaultGrid()
	route := diagonalRoute()
	goalCell := g.CellOf(route[len(route)-1])

	storm := CalmWeather()
	storm.WindSpeed = 60
	updates := WeatherUpdates{}
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			updates[Cell{Row: goalCell.Row + dr, Col: goalCell.Col + dc}] = storm
		}
	}

	r := NewRerouter(calmPlanner(CellSet{}), quietLogger())
	r.SetActive("DRONE-1", route, testSpecs, 1.0)

	_, err := r.Reconcile(context.Background(), "DRONE-1", route[0], updates, CellSet{})
	assert.ErrorIs(t, err, ErrUnsafeRoute)
	// the active route is left in place when reconciliation fails
	assert.Equal(t, route, r.Active("DRONE-1"))
}

func TestReconcileEmptyActiveRoute(t *testing.T) {
	r := NewRerouter(calmPlanner(CellSet{}), quietLogger())
	r.SetActive("DRONE-1", nil, testSpecs, 1.0)
	_, err := r.Reconcile(context.Background(), "DRONE-1", model.Coordinate{}, nil, CellSet{})
	assert.Error(t, err)
}

func TestReconcileConcurrent(t *testing.T) {
	g := DefaultGrid()
	route := diagonalRoute()
	blocked := CellSet{}
	blocked.Add(g.CellOf(route[2]))

	r := NewRerouter(calmPlanner(blocked), quietLogger())
	r.SetActive("DRONE-1", route, testSpecs, 1.0)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Reconcile(context.Background(), "DRONE-1", route[0], nil, blocked)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	active := r.Active("DRONE-1")
	require.NotEmpty(t, active)
	for _, wp := range active {
		assert.False(t, blocked.Contains(g.CellOf(wp)))
	}
}

func TestMonitorReconcilesInFlightVehicles(t *testing.T) {
	g := DefaultGrid()
	route := diagonalRoute()
	blocked := CellSet{}
	blocked.Add(g.CellOf(route[2]))

	r := NewRerouter(calmPlanner(blocked), quietLogger())
	r.SetActive("DRONE-1", route, testSpecs, 1.0)

	m := NewMonitor(r,
		func() []VehicleFix { return []VehicleFix{{ID: "DRONE-1", Pos: route[0]}} },
		func() (WeatherUpdates, CellSet) { return nil, blocked },
	)
	m.Log = quietLogger()
	m.processOnce()

	active := r.Active("DRONE-1")
	require.NotEmpty(t, active)
	for _, wp := range active {
		assert.False(t, blocked.Contains(g.CellOf(wp)))
	}
}
