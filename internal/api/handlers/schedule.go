package handlers

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
	"github.com/anstrom/portsweep/internal/scheduler"
)

// JobManager is the rescan job surface the schedule handlers drive.
type JobManager interface {
	AddScanJob(name, cronExpr string, req scanning.ScanRequest) (uuid.UUID, error)
	GetJobs() []scheduler.ScheduledJob
	RunNow(jobID uuid.UUID) error
	EnableJob(jobID uuid.UUID) error
	DisableJob(jobID uuid.UUID) error
	RemoveJob(jobID uuid.UUID) error
}

var _ JobManager = (*scheduler.Scheduler)(nil)

// ScheduleRequest is the body of POST /schedule. Scan fields follow the
// same defaults as POST /scans.
type ScheduleRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Cron string `json:"cron" validate:"required,max=100"`
	StartScanRequest
}

// ScheduleHandler serves rescan job endpoints.
type ScheduleHandler struct {
	jobs           JobManager
	defaults       config.ScanningConfig
	maxRequestSize int64
	validator      *validator.Validate
	logger         *slog.Logger
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(jobs JobManager, defaults config.ScanningConfig,
	maxRequestSize int64, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		jobs:           jobs,
		defaults:       defaults,
		maxRequestSize: maxRequestSize,
		validator:      validator.New(),
		logger:         logger.With("handler", "schedule"),
	}
}

// ListJobs returns all rescan jobs, oldest first.
func (h *ScheduleHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.jobs.GetJobs())
}

// CreateJob validates the request and schedules a new rescan job.
func (h *ScheduleHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := parseJSON(w, r, &req, h.maxRequestSize); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		field := ""
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			field = jsonFieldName(verrs[0].Field())
		}
		writeErrorField(w, r, http.StatusBadRequest, fmt.Errorf("validation failed: %w", err), field)
		return
	}

	id, err := h.jobs.AddScanJob(req.Name, req.Cron, withScanDefaults(&req.StartScanRequest, h.defaults))
	if err != nil {
		h.writeJobError(w, r, uuid.Nil, err)
		return
	}

	h.logger.Info("Scan job created via API",
		"request_id", middleware.GetRequestID(r), "job_id", id, "name", req.Name, "cron", req.Cron)
	h.writeJob(w, r, http.StatusCreated, id)
}

// RunJob starts a job's scan immediately.
func (h *ScheduleHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, "run", http.StatusAccepted, h.jobs.RunNow)
}

// EnableJob resumes a disabled job.
func (h *ScheduleHandler) EnableJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, "enable", http.StatusOK, h.jobs.EnableJob)
}

// DisableJob pauses a job without removing it.
func (h *ScheduleHandler) DisableJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, "disable", http.StatusOK, h.jobs.DisableJob)
}

// DeleteJob removes a job.
func (h *ScheduleHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.jobs.RemoveJob(id); err != nil {
		h.writeJobError(w, r, id, err)
		return
	}
	h.logger.Info("Scan job removed via API", "request_id", middleware.GetRequestID(r), "job_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) jobAction(w http.ResponseWriter, r *http.Request, action string,
	status int, fn func(uuid.UUID) error) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := fn(id); err != nil {
		h.writeJobError(w, r, id, err)
		return
	}
	h.logger.Info("Scan job "+action+" via API", "request_id", middleware.GetRequestID(r), "job_id", id)
	h.writeJob(w, r, status, id)
}

func (h *ScheduleHandler) writeJob(w http.ResponseWriter, r *http.Request, status int, id uuid.UUID) {
	for _, job := range h.jobs.GetJobs() {
		if job.ID == id {
			writeJSON(w, r, status, job)
			return
		}
	}
	// removed concurrently
	writeError(w, r, http.StatusNotFound, fmt.Errorf("job not found"))
}

func (h *ScheduleHandler) writeJobError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	var cfgErr *errors.ConfigError
	switch {
	case errors.IsCode(err, errors.CodeNotFound):
		writeError(w, r, http.StatusNotFound, fmt.Errorf("job not found"))
	case stderrors.As(err, &cfgErr):
		field := cfgErr.Field
		if field == "schedule.cron" {
			field = "cron"
		}
		writeErrorField(w, r, http.StatusBadRequest, err, field)
	default:
		h.logger.Error("Scan job operation failed",
			"request_id", middleware.GetRequestID(r), "job_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("scan job operation failed"))
	}
}

// jsonFieldName maps validator struct field names to request keys.
func jsonFieldName(field string) string {
	switch field {
	case "Name":
		return "name"
	case "Cron":
		return "cron"
	case "Target":
		return "target"
	}
	return field
}
