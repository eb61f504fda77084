// Package scheduler runs periodic rescans for portsweep's serve mode.
// Each job starts a scan through the coordinator on a cron schedule; a
// job firing while a scan is running replaces it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/scanning"
)

//go:generate mockgen -destination=mock_starter_test.go -package=scheduler github.com/anstrom/portsweep/internal/scheduler Starter

// Starter starts scans. *scanning.Coordinator satisfies it.
type Starter interface {
	StartScan(ctx context.Context, req scanning.ScanRequest) (*scanning.Session, error)
}

var _ Starter = (*scanning.Coordinator)(nil)

// Scheduler manages scheduled scan jobs.
type Scheduler struct {
	cron    *cron.Cron
	starter Starter
	logger  *slog.Logger
	jobs    map[uuid.UUID]*ScheduledJob
	mu      sync.RWMutex

	maxWorkers int
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// ScheduledJob is one scheduled rescan.
type ScheduledJob struct {
	ID             uuid.UUID            `json:"id"`
	CronID         cron.EntryID         `json:"-"`
	Name           string               `json:"name"`
	CronExpression string               `json:"cron_expression"`
	Request        scanning.ScanRequest `json:"request"`
	Enabled        bool                 `json:"enabled"`
	CreatedAt      time.Time            `json:"created_at"`
	LastRun        time.Time            `json:"last_run,omitempty"`
	NextRun        time.Time            `json:"next_run,omitempty"`
	LastSessionID  string               `json:"last_session_id,omitempty"`
	LastError      string               `json:"last_error,omitempty"`
	Runs           int                  `json:"runs"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxWorkers sets the worker limit job requests are checked against.
// It should match the coordinator's limit so a job accepted here does not
// fail every time it fires.
func WithMaxWorkers(n int) Option {
	return func(s *Scheduler) {
		s.maxWorkers = n
	}
}

// NewScheduler creates a new job scheduler.
func NewScheduler(starter Starter, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := logging.Default().With("component", "scheduler")

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))),
		)),
		starter: starter,
		logger:  logger,
		jobs:    make(map[uuid.UUID]*ScheduledJob),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates a scheduler with the configured rescan job, or nil
// when scheduling is disabled. Jobs are checked against
// scanning.max_workers.
func FromConfig(cfg *config.Config, starter Starter) (*Scheduler, error) {
	if !cfg.Schedule.Enabled {
		return nil, nil
	}

	s := NewScheduler(starter, WithMaxWorkers(cfg.Scanning.MaxWorkers))
	req := scanning.ScanRequest{
		Target:         cfg.Schedule.Target,
		StartPort:      cfg.Scanning.StartPort,
		EndPort:        cfg.Scanning.EndPort,
		Workers:        cfg.Scanning.Workers,
		TimeoutSeconds: cfg.Scanning.Timeout.Seconds(),
	}
	if _, err := s.AddScanJob("rescan "+cfg.Schedule.Target, cfg.Schedule.Cron, req); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true
	for _, job := range s.jobs {
		job.NextRun = s.cron.Entry(job.CronID).Next
	}

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops the scheduler and waits for running job functions to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Run starts the scheduler and stops it when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// AddScanJob validates the cron expression and the request, then adds the
// job. Requests are validated again when the job fires.
func (s *Scheduler) AddScanJob(name, cronExpr string, req scanning.ScanRequest) (uuid.UUID, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		cfgErr := errors.ErrConfigInvalid("schedule.cron", cronExpr)
		cfgErr.Cause = err
		return uuid.Nil, cfgErr
	}
	if _, err := req.Validate(s.maxWorkers); err != nil {
		return uuid.Nil, err
	}

	job := &ScheduledJob{
		ID:             uuid.New(),
		Name:           name,
		CronExpression: cronExpr,
		Request:        req,
		Enabled:        true,
		CreatedAt:      time.Now(),
		NextRun:        schedule.Next(time.Now()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job.CronID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.executeScanJob(job.ID)
	}))
	s.jobs[job.ID] = job

	s.logger.Info("Added scan job", "name", name, "schedule", cronExpr, "target", req.Target)
	return job.ID, nil
}

// RemoveJob removes a scheduled job.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return errors.NewConfigFieldError(errors.CodeNotFound, "job not found", "job_id", jobID.String())
	}

	s.cron.Remove(job.CronID)
	delete(s.jobs, jobID)

	s.logger.Info("Removed scan job", "name", job.Name)
	return nil
}

// EnableJob enables a scheduled job.
func (s *Scheduler) EnableJob(jobID uuid.UUID) error {
	return s.setJobEnabled(jobID, true)
}

// DisableJob disables a scheduled job. Disabled jobs stay scheduled but
// do nothing when they fire.
func (s *Scheduler) DisableJob(jobID uuid.UUID) error {
	return s.setJobEnabled(jobID, false)
}

func (s *Scheduler) setJobEnabled(jobID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return errors.NewConfigFieldError(errors.CodeNotFound, "job not found", "job_id", jobID.String())
	}
	job.Enabled = enabled

	action := "disabled"
	if enabled {
		action = "enabled"
	}
	s.logger.Info("Scan job "+action, "name", job.Name)
	return nil
}

// GetJobs returns copies of all jobs, oldest first.
func (s *Scheduler) GetJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		if s.running {
			copied.NextRun = s.cron.Entry(job.CronID).Next
		}
		jobs = append(jobs, copied)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(jobID uuid.UUID) error {
	s.mu.RLock()
	_, exists := s.jobs[jobID]
	s.mu.RUnlock()
	if !exists {
		return errors.NewConfigFieldError(errors.CodeNotFound, "job not found", "job_id", jobID.String())
	}
	s.executeScanJob(jobID)
	return nil
}

// executeScanJob starts the job's scan. The scan itself runs detached.
func (s *Scheduler) executeScanJob(jobID uuid.UUID) {
	s.mu.RLock()
	job, exists := s.jobs[jobID]
	if !exists || !job.Enabled {
		s.mu.RUnlock()
		return
	}
	name, req := job.Name, job.Request
	s.mu.RUnlock()

	started := time.Now()
	session, err := s.starter.StartScan(s.ctx, req)

	s.mu.Lock()
	if job, exists := s.jobs[jobID]; exists {
		job.LastRun = started
		job.Runs++
		if err != nil {
			job.LastError = err.Error()
		} else {
			job.LastError = ""
			job.LastSessionID = session.ID
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled scan failed to start", "name", name, "target", req.Target, "error", err)
		return
	}
	s.logger.Info("Scheduled scan started", "name", name, "target", req.Target, "session_id", session.ID)
}
