package api

import (
    "encoding/json"
    "errors"
    "net/http"

    "dronenav/internal/assign"
    "dronenav/internal/fleet"
    "dronenav/internal/route"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
    Type     string `json:"type"`
    Title    string `json:"title"`
    Status   int    `json:"status"`
    Detail   string `json:"detail,omitempty"`
    Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
    writeJSON(w, status, Problem{
        Type:     "about:blank",
        Title:    title,
        Status:   status,
        Detail:   detail,
        Instance: instance,
    })
}

// writeErr maps engine errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, r *http.Request, title string, err error) {
    status := http.StatusInternalServerError
    switch {
    case errors.Is(err, fleet.ErrUnknownVehicle):
        status = http.StatusNotFound
    case errors.Is(err, assign.ErrNoEligibleVehicle):
        status = http.StatusConflict
    case errors.Is(err, route.ErrNoPathFound), errors.Is(err, route.ErrUnsafeRoute), errors.Is(err, fleet.ErrInvariant):
        status = http.StatusUnprocessableEntity
    }
    writeProblem(w, status, title, err.Error(), r.URL.Path)
}
