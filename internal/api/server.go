// Package api exposes the fleet engine over HTTP.
package api

import (
    "net/http"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"

    "dronenav/internal/assign"
    "dronenav/internal/fleet"
    "dronenav/internal/maint"
    "dronenav/internal/metrics"
    "dronenav/internal/model"
    "dronenav/internal/route"
)

type Server struct {
    Fleet    *fleet.State
    Engine   *assign.Engine
    Sched    *maint.Scheduler
    Planner  *route.Planner
    Rerouter *route.Rerouter
    // DefaultSpecs backs plan requests that name no vehicle profile.
    DefaultSpecs model.VehicleSpecs
    // Token guards the /v1 surface when set; empty disables auth.
    Token string
    Log   *logrus.Logger
}

func NewServer(f *fleet.State, e *assign.Engine, sched *maint.Scheduler, p *route.Planner, r *route.Rerouter, log *logrus.Logger) *Server {
    if log == nil { log = logrus.StandardLogger() }
    return &Server{Fleet: f, Engine: e, Sched: sched, Planner: p, Rerouter: r, Log: log}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/healthz", s.HealthHandler)

    v1 := http.NewServeMux()
    v1.HandleFunc("/v1/fleet/stats", s.StatsHandler)
    v1.HandleFunc("/v1/fleet/vehicles", s.VehiclesHandler)
    v1.HandleFunc("/v1/fleet/vehicles/", s.VehicleHandler)
    v1.HandleFunc("/v1/orders/assign", s.AssignHandler)
    v1.HandleFunc("/v1/orders/assign-batch", s.AssignBatchHandler)
    v1.HandleFunc("/v1/routes/plan", s.PlanHandler)
    v1.HandleFunc("/v1/routes/active", s.ActiveRouteHandler)
    v1.HandleFunc("/v1/telemetry", s.TelemetryHandler)
    v1.HandleFunc("/v1/maintenance", s.MaintenanceHandler)
    v1.HandleFunc("/v1/maintenance/complete", s.MaintenanceCompleteHandler)
    mux.Handle("/v1/", s.requireAuth(v1))

    return s.logMiddleware(mux)
}

// requireAuth enforces the bearer token on the API surface when configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if s.Token != "" {
            authz := r.Header.Get("Authorization")
            if !strings.HasPrefix(strings.ToLower(authz), "bearer ") ||
                strings.TrimSpace(authz[len("Bearer "):]) != s.Token {
                writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", r.URL.Path)
                return
            }
        }
        next.ServeHTTP(w, r)
    })
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        s.Log.WithFields(logrus.Fields{
            "remote":   r.RemoteAddr,
            "method":   r.Method,
            "path":     r.URL.Path,
            "duration": time.Since(start),
        }).Debug("request")
    })
}
