package scanning

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/portsweep/internal/errors"
)

const (
	minPort = 1
	maxPort = 65535

	// DefaultMaxWorkers bounds the worker count when no limit is configured.
	DefaultMaxWorkers = 4096

	// NoBanner is recorded when an open port sends nothing usable.
	NoBanner = "No Banner"
)

// State is a scan session lifecycle state.
type State string

const (
	StateIdle           State = "idle"
	StateResolving      State = "resolving"
	StateFingerprinting State = "fingerprinting"
	StateScanning       State = "scanning"
	StateCompleted      State = "completed"
	StateAborted        State = "aborted"
	StateCanceled       State = "canceled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateCanceled
}

// ScanTarget is the resolved target of a session.
type ScanTarget struct {
	IP    string `json:"ip"`
	Input string `json:"input"`
}

// ScanConfig is a validated set of scan parameters.
type ScanConfig struct {
	StartPort int           `json:"start_port"`
	EndPort   int           `json:"end_port"`
	Workers   int           `json:"workers"`
	Timeout   time.Duration `json:"timeout"`
}

// Total returns the number of ports in the range.
func (c ScanConfig) Total() int {
	return c.EndPort - c.StartPort + 1
}

// OpenPortRecord is one open port and the banner it returned.
type OpenPortRecord struct {
	Port   int    `json:"port" db:"port"`
	Banner string `json:"banner" db:"banner"`
}

// ScanRequest carries user supplied scan parameters before validation.
type ScanRequest struct {
	Target         string  `json:"target" validate:"required"`
	StartPort      int     `json:"start_port"`
	EndPort        int     `json:"end_port"`
	Workers        int     `json:"workers"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// ParseScanRequest converts raw text fields into a ScanRequest.
// Non-numeric values are reported as configuration errors.
func ParseScanRequest(target, start, end, workers, timeout string) (ScanRequest, error) {
	req := ScanRequest{Target: strings.TrimSpace(target)}

	ints := []struct {
		field string
		raw   string
		dst   *int
	}{
		{"start_port", start, &req.StartPort},
		{"end_port", end, &req.EndPort},
		{"workers", workers, &req.Workers},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(f.raw))
		if err != nil {
			cfgErr := errors.NewConfigFieldError(errors.CodeValidation, "must be an integer", f.field, f.raw)
			cfgErr.Cause = err
			return ScanRequest{}, cfgErr
		}
		*f.dst = v
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(timeout), 64)
	if err != nil {
		cfgErr := errors.NewConfigFieldError(errors.CodeValidation, "must be a number", "timeout_seconds", timeout)
		cfgErr.Cause = err
		return ScanRequest{}, cfgErr
	}
	req.TimeoutSeconds = secs

	return req, nil
}

// Validate checks the request and returns the resulting ScanConfig.
// maxWorkers <= 0 means DefaultMaxWorkers.
func (r ScanRequest) Validate(maxWorkers int) (ScanConfig, error) {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	if strings.TrimSpace(r.Target) == "" {
		return ScanConfig{}, errors.ErrConfigMissing("target")
	}
	if r.StartPort < minPort || r.StartPort > maxPort {
		return ScanConfig{}, errors.NewConfigFieldError(errors.CodeValidation,
			"port must be between 1 and 65535", "start_port", r.StartPort)
	}
	if r.EndPort < minPort || r.EndPort > maxPort {
		return ScanConfig{}, errors.NewConfigFieldError(errors.CodeValidation,
			"port must be between 1 and 65535", "end_port", r.EndPort)
	}
	if r.Workers < 1 {
		return ScanConfig{}, errors.NewConfigFieldError(errors.CodeValidation,
			"workers must be positive", "workers", r.Workers)
	}
	if r.Workers > maxWorkers {
		return ScanConfig{}, errors.NewConfigFieldError(errors.CodeValidation,
			"workers exceeds the configured maximum", "workers", r.Workers)
	}

	timeout := time.Duration(r.TimeoutSeconds * float64(time.Second))
	if math.IsNaN(r.TimeoutSeconds) || math.IsInf(r.TimeoutSeconds, 0) || timeout <= 0 {
		return ScanConfig{}, errors.NewConfigFieldError(errors.CodeValidation,
			"timeout must be positive", "timeout_seconds", r.TimeoutSeconds)
	}

	if r.StartPort > r.EndPort {
		return ScanConfig{}, errors.NewConfigFieldError(errors.CodeValidation,
			"start port must not exceed end port", "start_port", r.StartPort)
	}

	return ScanConfig{
		StartPort: r.StartPort,
		EndPort:   r.EndPort,
		Workers:   r.Workers,
		Timeout:   timeout,
	}, nil
}
