package route

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"time"

	"dronenav/internal/cost"
	"dronenav/internal/geo"
	"dronenav/internal/metrics"
	"dronenav/internal/model"
)

var (
	// ErrNoPathFound means the search frontier was exhausted before reaching
	// the goal. Recoverable: the caller surfaces it as delivery-infeasible.
	ErrNoPathFound = errors.New("no path found")
	// ErrUnsafeRoute means a computed or reconciled route fails live safety
	// validation. The planner refuses to hand back such a route.
	ErrUnsafeRoute = errors.New("route fails safety validation")
)

// Hard safety limits a waypoint must satisfy to be flyable.
const (
	maxSafeWindKph  = 50.0
	minSafeVisKm    = 2.0
	maxSafePrecipMm = 10.0
)

// Planner runs A* over the discretized grid. It is pure and side-effect-free:
// concurrent Plan calls need no synchronization.
type Planner struct {
	Grid  Grid
	Wx    WeatherOracle
	NoFly NoFlyIndex
	// Traffic reports air-traffic density at a coordinate; nil means none.
	Traffic func(model.Coordinate) float64
}

func NewPlanner(grid Grid, wx WeatherOracle, noFly NoFlyIndex) *Planner {
	return &Planner{Grid: grid.normalized(), Wx: wx, NoFly: noFly}
}

func (p *Planner) trafficAt(c model.Coordinate) float64 {
	if p.Traffic == nil {
		return 0
	}
	return p.Traffic(c)
}

type openNode struct {
	coord model.Coordinate
	f     float64
	index int
}

type openHeap []*openNode

func (h openHeap) Len() int            { return len(h) }
func (h openHeap) Less(i, j int) bool  { return h[i].f < h[j].f }
func (h openHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *openHeap) Push(x any)         { n := x.(*openNode); n.index = len(*h); *h = append(*h, n) }
func (h *openHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// Plan searches for the cheapest waypoint path from start to goal. The edge
// weight is 0.4*distance + 0.3*energy + 0.3*risk; the heuristic is pure
// great-circle distance, which underestimates that sum, so the returned path
// is optimal under the stated weights. The goal test passes inside the grid's
// tolerance radius to avoid exact-match floating-point misses.
func (p *Planner) Plan(ctx context.Context, start, goal model.Coordinate, specs model.VehicleSpecs, payloadKg float64) ([]model.Coordinate, error) {
	t0 := time.Now()
	path, err := p.search(ctx, start, goal, specs, payloadKg)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNoPathFound):
		outcome = "no_path"
	case err != nil:
		outcome = "canceled"
	}
	metrics.PlansTotal.WithLabelValues(outcome).Inc()
	metrics.PlanDuration.Observe(time.Since(t0).Seconds())
	return path, err
}

func (p *Planner) search(ctx context.Context, start, goal model.Coordinate, specs model.VehicleSpecs, payloadKg float64) ([]model.Coordinate, error) {
	g := p.Grid
	if p.NoFly.Restricted(g.CellOf(goal)) {
		return nil, fmt.Errorf("goal cell restricted: %w", ErrNoPathFound)
	}

	open := openHeap{}
	heap.Init(&open)
	heap.Push(&open, &openNode{coord: start, f: geo.DistanceKm(start, goal)})
	gScore := map[nodeKey]float64{g.keyOf(start): 0}
	cameFrom := map[nodeKey]model.Coordinate{}
	closed := map[nodeKey]struct{}{}

	expansions := 0
	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		expansions++
		if expansions > g.MaxExpansions {
			return nil, fmt.Errorf("search budget exhausted after %d expansions: %w", g.MaxExpansions, ErrNoPathFound)
		}

		curr := heap.Pop(&open).(*openNode).coord
		currKey := g.keyOf(curr)
		if _, done := closed[currKey]; done {
			continue
		}
		closed[currKey] = struct{}{}

		if geo.DistanceKm(curr, goal) < g.GoalToleranceKm {
			return reconstruct(g, cameFrom, start, curr), nil
		}

		for _, nb := range g.neighbors(curr) {
			key := g.keyOf(nb)
			if _, done := closed[key]; done {
				continue
			}
			// No-fly cells are pruned before scoring, never expanded.
			if p.NoFly.Restricted(key.Cell) {
				continue
			}
			wx := p.Wx.At(nb)
			tentative := gScore[currKey] + cost.Segment(curr, nb, wx, payloadKg, specs, p.trafficAt(nb), false)
			if prev, seen := gScore[key]; seen && tentative >= prev {
				continue
			}
			gScore[key] = tentative
			cameFrom[key] = curr
			heap.Push(&open, &openNode{coord: nb, f: tentative + geo.DistanceKm(nb, goal)})
		}
	}
	return nil, ErrNoPathFound
}

func reconstruct(g Grid, cameFrom map[nodeKey]model.Coordinate, start, end model.Coordinate) []model.Coordinate {
	path := []model.Coordinate{end}
	curr := end
	startKey := g.keyOf(start)
	for {
		key := g.keyOf(curr)
		if key == startKey {
			break
		}
		prev, ok := cameFrom[key]
		if !ok {
			break
		}
		path = append(path, prev)
		curr = prev
	}
	// reverse in place
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PlanMultiDelivery chains single-pair searches over drops in nearest-neighbor
// order. If a leg fails, the partial route built so far is returned together
// with the error naming the unreachable drop.
func (p *Planner) PlanMultiDelivery(ctx context.Context, start model.Coordinate, drops []model.Drop, specs model.VehicleSpecs) ([]model.Coordinate, error) {
	curr := start
	remaining := append([]model.Drop(nil), drops...)
	out := []model.Coordinate{start}
	for len(remaining) > 0 {
		best := 0
		for i := 1; i < len(remaining); i++ {
			if geo.DistanceKm(curr, remaining[i].Dest) < geo.DistanceKm(curr, remaining[best].Dest) {
				best = i
			}
		}
		drop := remaining[best]
		leg, err := p.Plan(ctx, curr, drop.Dest, specs, drop.WeightKg)
		if err != nil {
			return out, fmt.Errorf("drop at (%.4f,%.4f) unreachable: %w", drop.Dest.Lat, drop.Dest.Lng, err)
		}
		if len(leg) > 1 {
			out = append(out, leg[1:]...) // skip the duplicated start point
		}
		curr = drop.Dest
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out, nil
}

// EstimateDuration sums per-segment flight time at the cruise speed degraded
// by wind, precipitation, and visibility, each penalty applied in that order.
func (p *Planner) EstimateDuration(route []model.Coordinate, specs model.VehicleSpecs) time.Duration {
	total := 0.0
	for i := 0; i+1 < len(route); i++ {
		d := geo.DistanceKm(route[i], route[i+1])
		wx := p.Wx.At(route[i])
		speed := specs.CruiseSpeedKph * 0.8
		if wx.WindSpeed > 20 {
			speed *= 0.8
		}
		if wx.Precipitation > 0 {
			speed *= 0.7
		}
		if wx.Visibility < 5 {
			speed *= 0.6
		}
		if speed <= 0 {
			continue
		}
		total += d / speed // hours
	}
	return time.Duration(total * float64(time.Hour))
}

// IsSafe rejects a route when any waypoint's live sample breaks the hard
// weather limits or the waypoint lies in a no-fly cell. Used pre-departure
// and during reconciliation.
func (p *Planner) IsSafe(route []model.Coordinate) bool {
	for _, wp := range route {
		wx := p.Wx.At(wp)
		if wx.WindSpeed > maxSafeWindKph || wx.Visibility < minSafeVisKm || wx.Precipitation > maxSafePrecipMm {
			return false
		}
		if p.NoFly.Restricted(p.Grid.CellOf(wp)) {
			return false
		}
	}
	return true
}
