package assign

import (
	"context"
	"sort"
	"time"

	"dronenav/internal/fleet"
	"dronenav/internal/geo"
	"dronenav/internal/model"
)

// batchScore is the single-order score without the reliability term, used
// when resolving many orders in one pass where historical data would bias
// the pool unevenly.
func batchScore(v fleet.Vehicle, order model.Order) float64 {
	dist := geo.SurfaceDistanceKm(v.Location, order.Pickup) + geo.SurfaceDistanceKm(order.Pickup, order.Delivery)
	util := 0.0
	if v.Specs.MaxPayloadKg > 0 {
		util = order.WeightKg / v.Specs.MaxPayloadKg
	}
	return weightDistance*dist + weightBattery*(100-v.Battery) + weightUtilization*(1-util)
}

// AssignAll resolves pending orders against the available fleet in one pass.
// Orders are consumed in priority order (emergency, express, standard;
// stable within a class); each takes the cheapest vehicle remaining in the
// pool. The matching is greedy, not globally optimal: priority ordering and
// capacity constraints always hold. Orders that no remaining vehicle can
// serve are absent from the result.
func (e *Engine) AssignAll(ctx context.Context, orders []model.Order) map[string]string {
	sorted := append([]model.Order(nil), orders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.Rank() < sorted[j].Priority.Rank()
	})

	pool := e.Fleet.Eligible(fleet.EligibilityQuery{})
	out := map[string]string{}
	for _, order := range sorted {
		if ctx.Err() != nil {
			return out
		}
		// keep taking the cheapest candidate until one reservation sticks;
		// a lost race against a concurrent single-order assignment just
		// shrinks the pool.
		for {
			bestIdx := -1
			bestScore := 0.0
			for i, v := range pool {
				if v.Specs.MaxPayloadKg < order.WeightKg {
					continue
				}
				s := batchScore(v, order)
				if bestIdx == -1 || s < bestScore || (s == bestScore && v.ID < pool[bestIdx].ID) {
					bestIdx = i
					bestScore = s
				}
			}
			if bestIdx == -1 {
				break
			}
			cand := pool[bestIdx]
			pool = append(pool[:bestIdx], pool[bestIdx+1:]...)
			full := []model.Coordinate{cand.Location, order.Pickup, order.Delivery}
			eta := e.Planner.EstimateDuration(full, cand.Specs) + e.LoadingBuffer
			if err := e.Fleet.Reserve(cand.ID, order, time.Now().Add(eta)); err == nil {
				out[order.ID] = cand.ID
				break
			}
		}
	}
	return out
}
