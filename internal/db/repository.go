package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
)

// QueryRecorder receives database query outcomes.
type QueryRecorder interface {
	RecordDatabaseQuery(operation string, duration time.Duration, success bool)
}

var _ QueryRecorder = (*metrics.PrometheusMetrics)(nil)

// ReportRepository stores scan reports.
type ReportRepository struct {
	db      *DB
	metrics QueryRecorder
}

// NewReportRepository creates a repository recording to the global metrics.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db, metrics: metrics.GetGlobalMetrics()}
}

// WithMetrics replaces the query recorder.
func (r *ReportRepository) WithMetrics(m QueryRecorder) *ReportRepository {
	r.metrics = m
	return r
}

func (r *ReportRepository) observe(operation string, start time.Time, err error) {
	if r.metrics != nil {
		r.metrics.RecordDatabaseQuery(operation, time.Since(start), err == nil)
	}
}

// Save inserts a report and its open ports in one transaction. A zero ID is
// replaced with a new one; CreatedAt is set on success.
func (r *ReportRepository) Save(ctx context.Context, report *ScanReport, ports []OpenPort) (err error) {
	start := time.Now()
	defer func() { r.observe("save_report", start, err) }()

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	createdAt := time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitizeDBError("begin save report", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_reports (id, target, ip, os_guess, start_port, end_port, workers,
			state, completed, total, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		report.ID, report.Target, report.IP, report.OSGuess, report.StartPort, report.EndPort,
		report.Workers, report.State, report.Completed, report.Total, report.StartedAt,
		report.FinishedAt, createdAt)
	if err != nil {
		return sanitizeDBError("insert scan report", err)
	}

	for i, p := range ports {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO open_ports (report_id, position, port, banner) VALUES ($1, $2, $3, $4)`,
			report.ID, i, p.Port, p.Banner)
		if err != nil {
			return sanitizeDBError("insert open port", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return sanitizeDBError("commit save report", err)
	}

	report.CreatedAt = createdAt
	logging.InfoDatabase("Scan report saved",
		"report_id", report.ID.String(), "target", report.Target, "open_ports", len(ports))
	return nil
}

// Get returns a report and its open ports in discovery order.
func (r *ReportRepository) Get(ctx context.Context, id uuid.UUID) (_ *ScanReport, _ []OpenPort, err error) {
	start := time.Now()
	defer func() { r.observe("get_report", start, err) }()

	var report ScanReport
	err = r.db.GetContext(ctx, &report, `
		SELECT id, target, ip, os_guess, start_port, end_port, workers, state,
			completed, total, started_at, finished_at, created_at
		FROM scan_reports WHERE id = $1`, id)
	if err != nil {
		return nil, nil, sanitizeDBError("get scan report", err)
	}

	var ports []OpenPort
	err = r.db.SelectContext(ctx, &ports, `
		SELECT report_id, position, port, banner
		FROM open_ports WHERE report_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, nil, sanitizeDBError("get open ports", err)
	}
	return &report, ports, nil
}

// ListRecent returns the newest reports, at most limit of them.
func (r *ReportRepository) ListRecent(ctx context.Context, limit int) (_ []ScanReport, err error) {
	start := time.Now()
	defer func() { r.observe("list_reports", start, err) }()

	if limit <= 0 {
		return nil, errors.ErrConfigInvalid("limit", limit)
	}

	var reports []ScanReport
	err = r.db.SelectContext(ctx, &reports, `
		SELECT id, target, ip, os_guess, start_port, end_port, workers, state,
			completed, total, started_at, finished_at, created_at
		FROM scan_reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, sanitizeDBError("list scan reports", err)
	}
	return reports, nil
}
