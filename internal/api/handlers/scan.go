package handlers

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/report"
	"github.com/anstrom/portsweep/internal/scanning"
)

// StartScanRequest is the body of POST /scans. Omitted numeric fields fall
// back to the configured scanning defaults.
type StartScanRequest struct {
	Target         string   `json:"target" validate:"required,max=253"`
	StartPort      *int     `json:"start_port,omitempty"`
	EndPort        *int     `json:"end_port,omitempty"`
	Workers        *int     `json:"workers,omitempty"`
	TimeoutSeconds *float64 `json:"timeout_seconds,omitempty"`
}

// SavedReportResponse is returned after a report was persisted.
type SavedReportResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	OpenPorts int    `json:"open_ports"`
}

// ScanHandler serves scan control and report endpoints.
type ScanHandler struct {
	service        ScanService
	store          report.Store
	defaults       config.ScanningConfig
	maxRequestSize int64
	validator      *validator.Validate
	logger         *slog.Logger
}

// NewScanHandler creates a scan handler. store may be nil when no database
// is configured.
func NewScanHandler(service ScanService, store report.Store, defaults config.ScanningConfig,
	maxRequestSize int64, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		service:        service,
		store:          store,
		defaults:       defaults,
		maxRequestSize: maxRequestSize,
		validator:      validator.New(),
		logger:         logger.With("handler", "scan"),
	}
}

func (h *ScanHandler) toScanRequest(req *StartScanRequest) scanning.ScanRequest {
	return withScanDefaults(req, h.defaults)
}

// withScanDefaults fills the omitted fields of req from defaults.
func withScanDefaults(req *StartScanRequest, defaults config.ScanningConfig) scanning.ScanRequest {
	out := scanning.ScanRequest{
		Target:         req.Target,
		StartPort:      defaults.StartPort,
		EndPort:        defaults.EndPort,
		Workers:        defaults.Workers,
		TimeoutSeconds: defaults.Timeout.Seconds(),
	}
	if req.StartPort != nil {
		out.StartPort = *req.StartPort
	}
	if req.EndPort != nil {
		out.EndPort = *req.EndPort
	}
	if req.Workers != nil {
		out.Workers = *req.Workers
	}
	if req.TimeoutSeconds != nil {
		out.TimeoutSeconds = *req.TimeoutSeconds
	}
	return out
}

// StartScan validates the request and starts a scan, replacing any running
// one.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req StartScanRequest
	if err := parseJSON(w, r, &req, h.maxRequestSize); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeErrorField(w, r, http.StatusBadRequest, fmt.Errorf("validation failed: %w", err), "target")
		return
	}

	s, err := h.service.StartScan(r.Context(), h.toScanRequest(&req))
	if err != nil {
		h.writeScanError(w, r, err)
		return
	}

	h.logger.Info("Scan started via API",
		"request_id", middleware.GetRequestID(r),
		"session_id", s.ID,
		"target", s.Target.Input,
		"ip", s.Target.IP)
	writeJSON(w, r, http.StatusCreated, s.Status())
}

func (h *ScanHandler) writeScanError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *errors.ConfigError
	switch {
	case stderrors.As(err, &cfgErr):
		writeErrorField(w, r, http.StatusBadRequest, err, cfgErr.Field)
	case errors.IsCode(err, errors.CodeResolutionFailed):
		writeError(w, r, http.StatusUnprocessableEntity, err)
	default:
		h.logger.Error("Failed to start scan", "request_id", middleware.GetRequestID(r), "error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to start scan"))
	}
}

func (h *ScanHandler) current(w http.ResponseWriter, r *http.Request) *scanning.Session {
	s := h.service.Current()
	if s == nil {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("no scan has been started"))
	}
	return s
}

// GetCurrent returns the status of the current scan.
func (h *ScanHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	if s := h.current(w, r); s != nil {
		writeJSON(w, r, http.StatusOK, s.Status())
	}
}

// CancelCurrent requests cooperative cancellation of the current scan.
func (h *ScanHandler) CancelCurrent(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, r)
	if s == nil {
		return
	}
	if !h.service.Cancel() {
		writeError(w, r, http.StatusConflict, fmt.Errorf("scan already %s", s.State()))
		return
	}
	h.logger.Info("Scan cancel requested", "request_id", middleware.GetRequestID(r), "session_id", s.ID)
	writeJSON(w, r, http.StatusAccepted, s.Status())
}

// GetPorts returns the ordered open-port records of the current scan.
func (h *ScanHandler) GetPorts(w http.ResponseWriter, r *http.Request) {
	s := h.current(w, r)
	if s == nil {
		return
	}
	records := s.OpenPorts()
	if records == nil {
		records = []scanning.OpenPortRecord{}
	}
	writeJSON(w, r, http.StatusOK, records)
}

// GetReport renders the current scan's open ports in the requested format.
func (h *ScanHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(report.FormatJSON)
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		writeErrorField(w, r, http.StatusBadRequest, err, "format")
		return
	}

	s := h.current(w, r)
	if s == nil {
		return
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, format, s.OpenPorts()); err != nil {
		h.logger.Error("Failed to render report", "format", format, "error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to render report"))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	if format != report.FormatTable {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", format.FileName()))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// SaveReport persists the finished current scan to the database.
func (h *ScanHandler) SaveReport(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, r, http.StatusServiceUnavailable, errors.NewDatabaseError(
			errors.CodeDatabaseDisabled, "No database configured"))
		return
	}
	s := h.current(w, r)
	if s == nil {
		return
	}

	saved, err := report.Persist(r.Context(), h.store, s)
	switch {
	case err == nil:
	case errors.IsConfigError(err):
		writeError(w, r, http.StatusConflict, err)
		return
	default:
		h.logger.Error("Failed to persist report", "session_id", s.ID, "error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("failed to save report"))
		return
	}

	writeJSON(w, r, http.StatusCreated, SavedReportResponse{
		ID:        saved.ID.String(),
		SessionID: s.ID,
		State:     saved.State,
		OpenPorts: len(s.OpenPorts()),
	})
}
