package route

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"dronenav/internal/geo"
	"dronenav/internal/metrics"
	"dronenav/internal/model"
)

// flight is the rerouter's record of one in-progress delivery.
type flight struct {
	route     []model.Coordinate
	specs     model.VehicleSpecs
	payloadKg float64
}

// Rerouter monitors in-progress routes against updated conditions and
// replaces them when a remaining waypoint becomes unflyable.
type Rerouter struct {
	mu      sync.Mutex
	planner *Planner
	flights map[string]*flight
	log     *logrus.Logger
}

func NewRerouter(p *Planner, log *logrus.Logger) *Rerouter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Rerouter{planner: p, flights: map[string]*flight{}, log: log}
}

// SetActive registers (or replaces) the active route for a vehicle.
func (r *Rerouter) SetActive(vehicleID string, route []model.Coordinate, specs model.VehicleSpecs, payloadKg float64) {
	r.mu.Lock()
	r.flights[vehicleID] = &flight{route: append([]model.Coordinate(nil), route...), specs: specs, payloadKg: payloadKg}
	r.mu.Unlock()
}

// ClearActive drops a vehicle's active route, typically on delivery completion.
func (r *Rerouter) ClearActive(vehicleID string) {
	r.mu.Lock()
	delete(r.flights, vehicleID)
	r.mu.Unlock()
}

// Active returns a copy of the vehicle's active route, or nil.
func (r *Rerouter) Active(vehicleID string) []model.Coordinate {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.flights[vehicleID]
	if f == nil {
		return nil
	}
	return append([]model.Coordinate(nil), f.route...)
}

// Reconcile re-validates the not-yet-flown suffix of a vehicle's route
// against updated weather and restrictions. When any remaining waypoint
// fails, a fresh search runs from the current position to the original final
// destination and the active route is swapped; otherwise the suffix is
// returned unchanged. Repeated calls with unchanged conditions return the
// same route.
func (r *Rerouter) Reconcile(ctx context.Context, vehicleID string, pos model.Coordinate, updates WeatherUpdates, restricted CellSet) ([]model.Coordinate, error) {
	// Snapshot the route under the lock; a concurrent Reconcile may swap
	// f.route at any time.
	r.mu.Lock()
	f := r.flights[vehicleID]
	var active []model.Coordinate
	if f != nil {
		active = append([]model.Coordinate(nil), f.route...)
	}
	r.mu.Unlock()
	if f == nil {
		return nil, fmt.Errorf("vehicle %s has no active route", vehicleID)
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("vehicle %s has an empty active route", vehicleID)
	}

	remaining := remainingFrom(active, pos)
	if r.validAgainst(remaining, updates, restricted) {
		return remaining, nil
	}

	goal := active[len(active)-1]
	fresh, err := r.planner.Plan(ctx, pos, goal, f.specs, f.payloadKg)
	if err != nil {
		return nil, fmt.Errorf("replan for %s: %w", vehicleID, err)
	}
	if !r.validAgainst(fresh, updates, restricted) || !r.planner.IsSafe(fresh) {
		return nil, fmt.Errorf("replan for %s: %w", vehicleID, ErrUnsafeRoute)
	}

	r.mu.Lock()
	f.route = fresh
	r.mu.Unlock()
	metrics.ReplansTotal.Inc()
	r.log.WithFields(logrus.Fields{
		"vehicle":   vehicleID,
		"waypoints": len(fresh),
	}).Info("route replaced after reconciliation")
	return append([]model.Coordinate(nil), fresh...), nil
}

// validAgainst applies the same hard limits as IsSafe, but reads the updated
// per-cell samples instead of the live oracle so the decision matches the
// caller's view of the world.
func (r *Rerouter) validAgainst(route []model.Coordinate, updates WeatherUpdates, restricted CellSet) bool {
	for _, wp := range route {
		cell := r.planner.Grid.CellOf(wp)
		if restricted.Contains(cell) {
			return false
		}
		if wx, ok := updates[cell]; ok {
			if wx.WindSpeed > maxSafeWindKph || wx.Visibility < minSafeVisKm || wx.Precipitation > maxSafePrecipMm {
				return false
			}
		}
	}
	return true
}

// remainingFrom locates the waypoint closest to the current position and
// returns the suffix from there.
func remainingFrom(route []model.Coordinate, pos model.Coordinate) []model.Coordinate {
	closest := 0
	best := geo.DistanceKm(pos, route[0])
	for i := 1; i < len(route); i++ {
		if d := geo.DistanceKm(pos, route[i]); d < best {
			best = d
			closest = i
		}
	}
	return append([]model.Coordinate(nil), route[closest:]...)
}
