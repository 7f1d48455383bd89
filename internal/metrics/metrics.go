package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the engine
    Registry = prometheus.NewRegistry()

    // VehiclesByStatus gauges the fleet composition per lifecycle state
    VehiclesByStatus = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "fleet_vehicles", Help: "Vehicles per lifecycle status."},
        []string{"status"},
    )
    // FleetAvgBattery gauges the fleet-wide average battery level
    FleetAvgBattery = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "fleet_avg_battery_pct", Help: "Average battery level across the fleet."},
    )

    // AssignmentsTotal counts assignment outcomes
    AssignmentsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "assignments_total", Help: "Order assignment attempts by outcome."},
        []string{"outcome"},
    )
    // DeliveriesTotal counts completed deliveries by result
    DeliveriesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "deliveries_total", Help: "Completed deliveries by result."},
        []string{"result"},
    )

    // PlansTotal counts planner runs by outcome
    PlansTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "route_plans_total", Help: "Route planning runs by outcome."},
        []string{"outcome"},
    )
    // PlanDuration records planner search durations in seconds
    PlanDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "route_plan_duration_seconds", Help: "A* search duration in seconds.", Buckets: prometheus.DefBuckets},
    )
    // ReplansTotal counts reroute reconciliations that replaced a route
    ReplansTotal = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "route_replans_total", Help: "Routes replaced during reconciliation."},
    )

    // MaintenanceTasks counts scheduled maintenance tasks by kind
    MaintenanceTasks = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "maintenance_tasks_total", Help: "Scheduled maintenance tasks by kind."},
        []string{"kind"},
    )
)

// RegisterDefault registers collectors to the engine registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(VehiclesByStatus)
        Registry.MustRegister(FleetAvgBattery)
        Registry.MustRegister(AssignmentsTotal)
        Registry.MustRegister(DeliveriesTotal)
        Registry.MustRegister(PlansTotal)
        Registry.MustRegister(PlanDuration)
        Registry.MustRegister(ReplansTotal)
        Registry.MustRegister(MaintenanceTasks)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
