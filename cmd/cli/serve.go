package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anstrom/portsweep/internal/api"
	apihandlers "github.com/anstrom/portsweep/internal/api/handlers"
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/scanning"
	"github.com/anstrom/portsweep/internal/scheduler"
)

const (
	metricsUpdateInterval = 15 * time.Second
	scanShutdownTimeout   = 10 * time.Second
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the portsweep API server in the foreground.

The server exposes scan control, report export and a websocket stream of
scan events under /api/v1, and Prometheus metrics at /metrics. When
schedule.enabled is set, the configured target is rescanned on its cron
schedule. Stop the server with Ctrl-C.`,
	Example: `  portsweep serve
  portsweep serve --host 0.0.0.0 --port 9090
  PORTSWEEP_API_API_KEY_HASH='$2a$12$...' portsweep serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := config.Default().API
	serveCmd.Flags().String("host", defaults.ListenAddr, "address to listen on")
	serveCmd.Flags().Int("port", defaults.Port, "port to listen on")

	bindFlag("api.listen_addr", serveCmd.Flags().Lookup("host"))
	bindFlag("api.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve runs the API server, the rescan scheduler and the system metrics
// updater until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Default().With("component", "serve")
	logger.Info("Starting portsweep API server",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
		"address", cfg.GetAPIAddress())

	var database *db.DB
	if cfg.Database.Enabled {
		var err error
		database, err = db.ConnectAndMigrate(ctx, &cfg.Database.Config)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer func() {
			if closeErr := database.Close(); closeErr != nil {
				logger.Error("Failed to close database connection", "error", closeErr)
			}
		}()
	}

	hub := apihandlers.NewEventHub(logger)
	coordinator := newCoordinator(cfg, scanning.WithSessionHook(hub.Follow))

	sched, err := scheduler.FromConfig(cfg, coordinator)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if sched == nil {
		// no configured rescan; jobs can still be added over the API
		sched = scheduler.NewScheduler(coordinator, scheduler.WithMaxWorkers(cfg.Scanning.MaxWorkers))
	}

	server, err := api.New(cfg, coordinator, hub, database, getVersion(), api.WithScheduler(sched))
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		metrics.GetGlobalMetrics().StartPeriodicUpdates(gctx, metricsUpdateInterval)
		return nil
	})

	fmt.Printf("API server listening on http://%s\n", cfg.GetAPIAddress())
	fmt.Printf("Health check: http://%s/api/v1/health\n", cfg.GetAPIAddress())

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), scanShutdownTimeout)
	defer cancel()
	if shutdownErr := coordinator.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Scan did not stop before shutdown timeout", "error", shutdownErr)
	}

	if err != nil {
		return err
	}
	fmt.Println("Server stopped successfully")
	return nil
}
