// Package assign scores and reserves vehicles for incoming delivery orders.
package assign

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"dronenav/internal/fleet"
	"dronenav/internal/geo"
	"dronenav/internal/metrics"
	"dronenav/internal/model"
	"dronenav/internal/route"
)

// ErrNoEligibleVehicle means no vehicle met the order's constraints.
// Recoverable: retry later or relax constraints.
var ErrNoEligibleVehicle = errors.New("no eligible vehicle")

// Score weights, lower total is better.
const (
	weightDistance    = 0.4
	weightBattery     = 0.25
	weightUtilization = 0.2
	weightReliability = 0.15
)

// Engine binds one order to the best available vehicle.
type Engine struct {
	Fleet    *fleet.State
	Planner  *route.Planner
	Rerouter *route.Rerouter
	// LoadingBuffer pads the flight estimate for loading and unloading.
	LoadingBuffer time.Duration
	Log           *logrus.Logger
}

func NewEngine(f *fleet.State, p *route.Planner, r *route.Rerouter, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{Fleet: f, Planner: p, Rerouter: r, LoadingBuffer: 10 * time.Minute, Log: log}
}

// score ranks one candidate for an order; lower is better. A vehicle with no
// delivery history carries the neutral 100% success rate set at registration.
func (e *Engine) score(v fleet.Vehicle, order model.Order, successRate float64) float64 {
	dist := geo.SurfaceDistanceKm(v.Location, order.Pickup) + geo.SurfaceDistanceKm(order.Pickup, order.Delivery)
	util := 0.0
	if v.Specs.MaxPayloadKg > 0 {
		util = order.WeightKg / v.Specs.MaxPayloadKg
	}
	return weightDistance*dist +
		weightBattery*(100-v.Battery) +
		weightUtilization*(1-util) +
		weightReliability*(100-successRate)
}

// rank sorts candidates by score, ties broken by lowest vehicle id so the
// choice is deterministic.
func (e *Engine) rank(cands []fleet.Vehicle, order model.Order) []fleet.Vehicle {
	type scored struct {
		v fleet.Vehicle
		s float64
	}
	out := make([]scored, 0, len(cands))
	for _, v := range cands {
		rate := 100.0
		if p, err := e.Fleet.Performance(v.ID); err == nil {
			rate = p.SuccessRate
		}
		out = append(out, scored{v: v, s: e.score(v, order, rate)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].s != out[j].s {
			return out[i].s < out[j].s
		}
		return out[i].v.ID < out[j].v.ID
	})
	ranked := make([]fleet.Vehicle, len(out))
	for i := range out {
		ranked[i] = out[i].v
	}
	return ranked
}

// Assign picks the minimum-score eligible vehicle, plans its flight path,
// and reserves it. A reservation lost to a concurrent assignment falls
// through to the next-best candidate. Failure leaves no side effects.
func (e *Engine) Assign(ctx context.Context, order model.Order) (string, error) {
	cands := e.Fleet.Eligible(fleet.EligibilityQuery{
		MinCapacityKg: order.WeightKg,
		Ref:           &order.Pickup,
	})
	if len(cands) == 0 {
		metrics.AssignmentsTotal.WithLabelValues("no_vehicle").Inc()
		return "", fmt.Errorf("order %s: %w", order.ID, ErrNoEligibleVehicle)
	}

	for _, cand := range e.rank(cands, order) {
		path, err := e.Planner.Plan(ctx, order.Pickup, order.Delivery, cand.Specs, order.WeightKg)
		if err != nil {
			if errors.Is(err, route.ErrNoPathFound) {
				// No flyable corridor to the destination; no vehicle helps.
				metrics.AssignmentsTotal.WithLabelValues("no_path").Inc()
				return "", fmt.Errorf("order %s infeasible: %w", order.ID, err)
			}
			return "", err
		}

		full := append([]model.Coordinate{cand.Location}, path...)
		eta := e.Planner.EstimateDuration(full, cand.Specs) + e.LoadingBuffer
		if err := e.Fleet.Reserve(cand.ID, order, time.Now().Add(eta)); err != nil {
			// Lost the race to a concurrent assignment; try the next one.
			continue
		}
		if e.Rerouter != nil {
			e.Rerouter.SetActive(cand.ID, path, cand.Specs, order.WeightKg)
		}
		metrics.AssignmentsTotal.WithLabelValues("ok").Inc()
		e.Log.WithFields(logrus.Fields{
			"order":   order.ID,
			"vehicle": cand.ID,
			"eta":     eta,
		}).Info("order assigned")
		return cand.ID, nil
	}
	metrics.AssignmentsTotal.WithLabelValues("no_vehicle").Inc()
	return "", fmt.Errorf("order %s: all candidates reserved concurrently: %w", order.ID, ErrNoEligibleVehicle)
}
