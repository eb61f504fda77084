package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/anstrom/portsweep/internal/scanning"
)

const healthCheckTimeout = 5 * time.Second

// Pinger checks a dependency's availability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
	ScanState scanning.State    `json:"scan_state"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler reports liveness and the current scan state.
type HealthHandler struct {
	service   ScanService
	database  Pinger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a health handler. database may be nil.
func NewHealthHandler(service ScanService, database Pinger, version string) *HealthHandler {
	return &HealthHandler{
		service:   service,
		database:  database,
		version:   version,
		startTime: time.Now(),
	}
}

// Health responds 200 when healthy and 503 when the database is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		ScanState: scanning.StateIdle,
		Checks:    make(map[string]string),
	}
	if s := h.service.Current(); s != nil {
		resp.ScanState = s.State()
	}

	if h.database == nil {
		resp.Checks["database"] = "not configured"
	} else if err := h.database.PingContext(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Checks["database"] = "unreachable"
	} else {
		resp.Checks["database"] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// Version returns build information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service":   "portsweep",
		"version":   h.version,
		"timestamp": time.Now().UTC(),
	})
}
