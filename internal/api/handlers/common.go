// Package handlers provides the HTTP handlers of the portsweep API: scan
// control, report export, health and the websocket event stream.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/scanning"
)

const defaultMaxRequestSize = 1 << 20

// ScanService is the scan control surface the handlers drive.
type ScanService interface {
	StartScan(ctx context.Context, req scanning.ScanRequest) (*scanning.Session, error)
	Current() *scanning.Session
	Cancel() bool
}

var _ ScanService = (*scanning.Coordinator)(nil)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response",
			"request_id", middleware.GetRequestID(r),
			"error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	writeErrorField(w, r, statusCode, err, "")
}

func writeErrorField(w http.ResponseWriter, r *http.Request, statusCode int, err error, field string) {
	writeJSON(w, r, statusCode, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   err.Error(),
		Field:     field,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r),
	})
}

// parseJSON decodes a bounded, strict JSON body into dest.
func parseJSON(w http.ResponseWriter, r *http.Request, dest interface{}, maxSize int64) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("request body is empty")
	}
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return fmt.Errorf("request body too large (max %d bytes)", maxSize)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// extractUUIDFromPath reads the {id} route variable.
func extractUUIDFromPath(r *http.Request) (uuid.UUID, error) {
	idStr, exists := mux.Vars(r)["id"]
	if !exists {
		return uuid.Nil, fmt.Errorf("id not provided")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id: %s", idStr)
	}
	return id, nil
}
