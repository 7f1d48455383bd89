package maint

import (
	"time"

	"github.com/sirupsen/logrus"

	"dronenav/internal/fleet"
	"dronenav/internal/model"
)

// Worker periodically sweeps the fleet: vehicles that breach a wear
// threshold get a routine task booked, and due tasks are popped for
// execution.
type Worker struct {
	Sched    *Scheduler
	Fleet    *fleet.State
	Interval time.Duration
	Stop     chan struct{}
	Log      *logrus.Logger
	// Execute receives each due task, e.g. to notify a service crew.
	// Optional; pops are logged either way.
	Execute func(Task)
}

func NewWorker(sched *Scheduler, f *fleet.State) *Worker {
	return &Worker{
		Sched:    sched,
		Fleet:    f,
		Interval: time.Minute,
		Stop:     make(chan struct{}),
		Log:      logrus.StandardLogger(),
	}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	// book routine service for anything that crossed a wear threshold
	for _, v := range w.Fleet.All() {
		if v.Status == model.StatusMaintenance || w.Sched.HasPending(v.ID) {
			continue
		}
		due, err := w.Fleet.NeedsMaintenance(v.ID)
		if err != nil || !due {
			continue
		}
		if _, err := w.Sched.Schedule(v.ID, model.MaintRoutine, 5); err != nil {
			w.Log.WithField("vehicle", v.ID).WithError(err).Warn("schedule failed")
		}
	}
	// pull everything that is due
	for {
		task, ok := w.Sched.PopDue(time.Now())
		if !ok {
			break
		}
		w.Log.WithFields(logrus.Fields{"vehicle": task.VehicleID, "kind": task.Kind}).Info("maintenance started")
		if w.Execute != nil {
			w.Execute(task)
		}
	}
}
