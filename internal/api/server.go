// Package api provides the HTTP REST API of portsweep. It exposes scan
// control, report export, health, Prometheus metrics and a websocket
// stream of scan events.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihandlers "github.com/anstrom/portsweep/internal/api/handlers"
	"github.com/anstrom/portsweep/internal/api/middleware"
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/report"
)

const (
	serverShutdownTimeout = 30 * time.Second
	apiPrefix             = "/api/v1"
)

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	hub        *apihandlers.EventHub
	metrics    *metrics.PrometheusMetrics
	jobs       apihandlers.JobManager
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics replaces the metrics instance recorded to and served at
// /metrics.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithScheduler exposes the rescan jobs of jobs under /schedule. Without
// it those routes are not registered.
func WithScheduler(jobs apihandlers.JobManager) Option {
	return func(s *Server) {
		s.jobs = jobs
	}
}

// New creates a new API server. hub streams session events to websocket
// clients and should be installed as the coordinator's session hook; a
// nil hub gets a fresh one. database may be nil, which disables report
// persistence.
func New(cfg *config.Config, svc apihandlers.ScanService, hub *apihandlers.EventHub,
	database *db.DB, version string, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if svc == nil {
		return nil, fmt.Errorf("scan service is required")
	}

	logger := logging.Default().With("component", "api")
	if hub == nil {
		hub = apihandlers.NewEventHub(logger)
	}
	hub.SetOriginCheck(originChecker(cfg.API.AllowedOrigins))

	s := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		hub:     hub,
		metrics: metrics.GetGlobalMetrics(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	var (
		store  report.Store
		pinger apihandlers.Pinger
	)
	if database != nil {
		store = db.NewReportRepository(database).WithMetrics(s.metrics)
		pinger = database
	}

	var schedules *apihandlers.ScheduleHandler
	if s.jobs != nil {
		schedules = apihandlers.NewScheduleHandler(s.jobs, cfg.Scanning, cfg.API.MaxRequestSize, logger)
	}

	s.setupRoutes(
		apihandlers.NewScanHandler(svc, store, cfg.Scanning, cfg.API.MaxRequestSize, logger),
		apihandlers.NewHealthHandler(svc, pinger, version),
		schedules,
	)
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(cfg.API.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes(scans *apihandlers.ScanHandler, health *apihandlers.HealthHandler,
	schedules *apihandlers.ScheduleHandler) {
	api := s.router.PathPrefix(apiPrefix).Subrouter()
	api.Use(middleware.Authentication(s.config.API.APIKeyHash, s.logger, apiPrefix+"/health"))

	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)

	api.HandleFunc("/scans", scans.StartScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/current", scans.GetCurrent).Methods(http.MethodGet)
	api.HandleFunc("/scans/current", scans.CancelCurrent).Methods(http.MethodDelete)
	api.HandleFunc("/scans/current/ports", scans.GetPorts).Methods(http.MethodGet)
	api.HandleFunc("/scans/current/report", scans.GetReport).Methods(http.MethodGet)
	api.HandleFunc("/scans/current/report", scans.SaveReport).Methods(http.MethodPost)

	if schedules != nil {
		api.HandleFunc("/schedule", schedules.ListJobs).Methods(http.MethodGet)
		api.HandleFunc("/schedule", schedules.CreateJob).Methods(http.MethodPost)
		api.HandleFunc("/schedule/{id}", schedules.DeleteJob).Methods(http.MethodDelete)
		api.HandleFunc("/schedule/{id}/run", schedules.RunJob).Methods(http.MethodPost)
		api.HandleFunc("/schedule/{id}/enable", schedules.EnableJob).Methods(http.MethodPost)
		api.HandleFunc("/schedule/{id}/disable", schedules.DisableJob).Methods(http.MethodPost)
	}

	api.HandleFunc("/events", s.hub.ServeWS).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	})).Methods(http.MethodGet)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.ContentType())
}

// Handler returns the root handler including CORS handling.
func (s *Server) Handler() http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.config.API.AllowedOrigins),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", middleware.APIKeyHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.ExposedHeaders([]string{"X-Request-ID", "Content-Disposition"}),
	)(s.router)
}

// Start starts the API server and blocks until ctx is done or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"auth", s.config.API.APIKeyHash != "",
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		s.hub.Shutdown()
		return err
	}
}

// Stop gracefully stops the API server and disconnects websocket clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

// originChecker builds the websocket origin check from the CORS origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
