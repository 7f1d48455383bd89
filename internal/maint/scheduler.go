// Package maint schedules preventive and emergency service, competing with
// operational assignment for the same vehicles.
package maint

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dronenav/internal/fleet"
	"dronenav/internal/metrics"
	"dronenav/internal/model"
)

// Task is one scheduled service action.
type Task struct {
	ID          string                `json:"id"`
	VehicleID   string                `json:"vehicleId"`
	Kind        model.MaintenanceKind `json:"kind"`
	ScheduledAt time.Time             `json:"scheduledAt"`
	Duration    time.Duration         `json:"duration"`
	Priority    int                   `json:"priority"` // 1-10, 10 most urgent
	Description string                `json:"description"`

	seq uint64 // insertion order, the final tie-break
}

// Fixed durations per kind; policy constants, not computed.
var kindDurations = map[model.MaintenanceKind]time.Duration{
	model.MaintRoutine:   4 * time.Hour,
	model.MaintBattery:   2 * time.Hour,
	model.MaintMotor:     6 * time.Hour,
	model.MaintSensor:    3 * time.Hour,
	model.MaintEmergency: 8 * time.Hour,
}

// scheduleDelay is how far ahead non-emergency tasks are booked.
const scheduleDelay = time.Hour

// taskHeap orders by priority descending, scheduled time ascending, then
// insertion order, so pops are fully deterministic.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].ScheduledAt.Equal(h[j].ScheduledAt) {
		return h[i].ScheduledAt.Before(h[j].ScheduledAt)
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() any {
	old := *h
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return t
}

// Scheduler is the priority queue of pending maintenance work.
type Scheduler struct {
	mu    sync.Mutex
	tasks taskHeap
	seq   uint64
	fleet *fleet.State
	log   *logrus.Logger
	now   func() time.Time
}

func NewScheduler(f *fleet.State, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{fleet: f, log: log, now: time.Now}
}

// SetClock overrides the time source; tests only.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Schedule books a service task. Non-emergency work is booked an hour out.
// Emergency work bypasses the delay, forces the maintenance transition
// immediately, and is capped at one outstanding task per vehicle.
func (s *Scheduler) Schedule(vehicleID string, kind model.MaintenanceKind, priority int) (Task, error) {
	if _, err := s.fleet.Get(vehicleID); err != nil {
		return Task{}, err
	}
	if priority < 1 || priority > 10 {
		return Task{}, fmt.Errorf("priority %d out of range 1-10: %w", priority, fleet.ErrInvariant)
	}
	dur, ok := kindDurations[kind]
	if !ok {
		return Task{}, fmt.Errorf("unknown maintenance kind %q: %w", kind, fleet.ErrInvariant)
	}

	s.mu.Lock()
	if kind == model.MaintEmergency && s.hasEmergencyLocked(vehicleID) {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("vehicle %s already has an emergency task: %w", vehicleID, fleet.ErrInvariant)
	}
	s.seq++
	t := &Task{
		ID:          uuid.New().String(),
		VehicleID:   vehicleID,
		Kind:        kind,
		ScheduledAt: s.now().Add(scheduleDelay),
		Duration:    dur,
		Priority:    priority,
		Description: fmt.Sprintf("%s maintenance for %s", kind, vehicleID),
		seq:         s.seq,
	}
	if kind == model.MaintEmergency {
		t.ScheduledAt = s.now()
	}
	heap.Push(&s.tasks, t)
	s.mu.Unlock()

	if kind == model.MaintEmergency {
		if err := s.fleet.EnterMaintenance(vehicleID); err != nil {
			return Task{}, err
		}
	}
	metrics.MaintenanceTasks.WithLabelValues(string(kind)).Inc()
	s.log.WithFields(logrus.Fields{"vehicle": vehicleID, "kind": kind, "priority": priority}).Info("maintenance scheduled")
	return *t, nil
}

func (s *Scheduler) hasEmergencyLocked(vehicleID string) bool {
	for _, t := range s.tasks {
		if t.VehicleID == vehicleID && t.Kind == model.MaintEmergency {
			return true
		}
	}
	return false
}

// HasPending reports whether any task is queued for the vehicle.
func (s *Scheduler) HasPending(vehicleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.VehicleID == vehicleID {
			return true
		}
	}
	return false
}

// PopDue removes and returns the highest-priority task whose scheduled time
// has elapsed; tasks not yet due go back on the queue untouched. The popped
// task's vehicle is pulled into maintenance.
func (s *Scheduler) PopDue(now time.Time) (Task, bool) {
	s.mu.Lock()
	var due *Task
	var stash []*Task
	for s.tasks.Len() > 0 {
		t := heap.Pop(&s.tasks).(*Task)
		if !t.ScheduledAt.After(now) {
			due = t
			break
		}
		stash = append(stash, t)
	}
	for _, t := range stash {
		heap.Push(&s.tasks, t)
	}
	s.mu.Unlock()
	if due == nil {
		return Task{}, false
	}

	if err := s.fleet.EnterMaintenance(due.VehicleID); err != nil {
		s.log.WithField("vehicle", due.VehicleID).WithError(err).Warn("maintenance transition failed")
	}
	return *due, true
}

// Complete returns a serviced vehicle to the fleet with reset wear counters.
func (s *Scheduler) Complete(vehicleID string) error {
	return s.fleet.CompleteMaintenance(vehicleID)
}

// Pending is the queue length, reported in the fleet statistics snapshot.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Len()
}
