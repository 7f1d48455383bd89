package api

import (
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "dronenav/internal/buildinfo"
    "dronenav/internal/model"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{
        "status": "ok",
        "build":  buildinfo.Info(),
        "time":   time.Now().UTC().Format(time.RFC3339),
    })
}

// StatsHandler handles GET /v1/fleet/stats
func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "fleet":              s.Fleet.Stats(),
        "pendingMaintenance": s.Sched.Pending(),
    })
}

// VehiclesHandler handles GET /v1/fleet/vehicles
func (s *Server) VehiclesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    writeJSON(w, http.StatusOK, s.Fleet.All())
}

// VehicleHandler handles GET /v1/fleet/vehicles/{id}
func (s *Server) VehicleHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := strings.TrimPrefix(r.URL.Path, "/v1/fleet/vehicles/")
    if id == "" || strings.Contains(id, "/") {
        writeProblem(w, http.StatusNotFound, "Not found", "vehicle id required", r.URL.Path)
        return
    }
    v, err := s.Fleet.Get(id)
    if err != nil {
        writeErr(w, r, "Vehicle lookup failed", err)
        return
    }
    perf, _ := s.Fleet.Performance(id)
    writeJSON(w, http.StatusOK, map[string]any{
        "vehicle":     v,
        "performance": perf,
        "history":     s.Fleet.History(id),
    })
}

// AssignHandler handles POST /v1/orders/assign
func (s *Server) AssignHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var order model.Order
    if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := validateOrder(order); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
        return
    }
    id, err := s.Engine.Assign(r.Context(), order)
    if err != nil {
        writeErr(w, r, "Assignment failed", err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"order": order.ID, "vehicle": id})
}

// AssignBatchHandler handles POST /v1/orders/assign-batch
func (s *Server) AssignBatchHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var orders []model.Order
    if err := json.NewDecoder(r.Body).Decode(&orders); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    for _, o := range orders {
        if err := validateOrder(o); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
            return
        }
    }
    writeJSON(w, http.StatusOK, map[string]any{"assignments": s.Engine.AssignAll(r.Context(), orders)})
}

// PlanHandler handles POST /v1/routes/plan: a direct search with no fleet
// side effects. With drops present it runs the multi-delivery chain.
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        Start     model.Coordinate    `json:"start"`
        Goal      *model.Coordinate   `json:"goal,omitempty"`
        Drops     []model.Drop        `json:"drops,omitempty"`
        Specs     *model.VehicleSpecs `json:"specs,omitempty"`
        PayloadKg float64             `json:"payloadKg"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    specs := s.DefaultSpecs
    if req.Specs != nil { specs = *req.Specs }

    var path []model.Coordinate
    var err error
    switch {
    case len(req.Drops) > 0:
        path, err = s.Planner.PlanMultiDelivery(r.Context(), req.Start, req.Drops, specs)
    case req.Goal != nil:
        path, err = s.Planner.Plan(r.Context(), req.Start, *req.Goal, specs, req.PayloadKg)
    default:
        writeProblem(w, http.StatusBadRequest, "Invalid request", "goal or drops required", r.URL.Path)
        return
    }
    if err != nil {
        writeErr(w, r, "Planning failed", err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "waypoints": path,
        "eta":       s.Planner.EstimateDuration(path, specs).String(),
    })
}

// ActiveRouteHandler handles GET /v1/routes/active?vehicle=ID
func (s *Server) ActiveRouteHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    id := r.URL.Query().Get("vehicle")
    route := s.Rerouter.Active(id)
    if route == nil {
        writeProblem(w, http.StatusNotFound, "No active route", "vehicle "+id+" has no active route", r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"vehicle": id, "waypoints": route})
}

// TelemetryHandler handles POST /v1/telemetry
func (s *Server) TelemetryHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var upd struct {
        VehicleID string              `json:"vehicleId"`
        Status    model.VehicleStatus `json:"status"`
        Location  *model.Coordinate   `json:"location,omitempty"`
        Battery   *float64            `json:"battery,omitempty"`
    }
    if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.Fleet.UpdateStatus(upd.VehicleID, upd.Status, upd.Location, upd.Battery); err != nil {
        writeErr(w, r, "Telemetry rejected", err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// MaintenanceHandler handles POST (schedule) and GET (queue length) on
// /v1/maintenance
func (s *Server) MaintenanceHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            VehicleID string                `json:"vehicleId"`
            Kind      model.MaintenanceKind `json:"kind"`
            Priority  int                   `json:"priority"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        task, err := s.Sched.Schedule(req.VehicleID, req.Kind, req.Priority)
        if err != nil {
            writeErr(w, r, "Schedule failed", err)
            return
        }
        writeJSON(w, http.StatusCreated, task)
    case http.MethodGet:
        writeJSON(w, http.StatusOK, map[string]int{"pending": s.Sched.Pending()})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// MaintenanceCompleteHandler handles POST /v1/maintenance/complete
func (s *Server) MaintenanceCompleteHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    var req struct {
        VehicleID string `json:"vehicleId"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if err := s.Sched.Complete(req.VehicleID); err != nil {
        writeErr(w, r, "Complete failed", err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}
