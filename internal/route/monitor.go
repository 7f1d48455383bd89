package route

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"dronenav/internal/model"
)

// VehicleFix is one vehicle's last known position.
type VehicleFix struct {
	ID  string
	Pos model.Coordinate
}

// Monitor periodically reconciles every in-flight vehicle against fresh
// conditions. Replans are throttled: a burst of weather updates must not
// saturate the planner.
type Monitor struct {
	Rerouter   *Rerouter
	Fixes      func() []VehicleFix
	Conditions func() (WeatherUpdates, CellSet)
	Interval   time.Duration
	Limit      *rate.Limiter
	Stop       chan struct{}
	Log        *logrus.Logger
}

func NewMonitor(r *Rerouter, fixes func() []VehicleFix, conditions func() (WeatherUpdates, CellSet)) *Monitor {
	return &Monitor{
		Rerouter:   r,
		Fixes:      fixes,
		Conditions: conditions,
		Interval:   15 * time.Second,
		Limit:      rate.NewLimiter(rate.Every(time.Second), 5),
		Stop:       make(chan struct{}),
		Log:        logrus.StandardLogger(),
	}
}

func (m *Monitor) Start() {
	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.Stop:
				return
			case <-ticker.C:
				m.processOnce()
			}
		}
	}()
}

func (m *Monitor) processOnce() {
	updates, restricted := m.Conditions()
	for _, fix := range m.Fixes() {
		if m.Rerouter.Active(fix.ID) == nil {
			continue
		}
		if !m.Limit.Allow() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := m.Rerouter.Reconcile(ctx, fix.ID, fix.Pos, updates, restricted)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			m.Log.WithField("vehicle", fix.ID).WithError(err).Warn("reconcile failed")
		}
	}
}
