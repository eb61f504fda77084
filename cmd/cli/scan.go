package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/report"
	"github.com/anstrom/portsweep/internal/scanning"
)

const databaseTimeout = 10 * time.Second

var (
	scanOutputDir string
	scanSaveDB    bool
	scanQuiet     bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a port range on one host",
	Long: `Scan a contiguous TCP port range on a single host.

The target is resolved to one IP address, fingerprinted with a ping and
then probed by a pool of workers. Open ports are printed as they are
found, followed by a table of all open ports. Press Ctrl-C to stop the
scan; ports found so far are kept.`,
	Example: `  portsweep scan scanme.example
  portsweep scan 10.0.0.5 --start-port 20 --end-port 25 --workers 6
  portsweep scan 10.0.0.5 --timeout 0.5 --output-dir ./reports
  portsweep scan db.internal --end-port 6000 --save-db`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	defaults := config.Default().Scanning
	scanCmd.Flags().StringP("start-port", "s", strconv.Itoa(defaults.StartPort), "first port to scan")
	scanCmd.Flags().StringP("end-port", "e", strconv.Itoa(defaults.EndPort), "last port to scan")
	scanCmd.Flags().StringP("workers", "w", strconv.Itoa(defaults.Workers), "number of concurrent workers")
	scanCmd.Flags().StringP("timeout", "t", formatSeconds(defaults.Timeout), "per-port timeout in seconds")
	scanCmd.Flags().StringVarP(&scanOutputDir, "output-dir", "o", "", "save txt, json and csv reports to this directory")
	scanCmd.Flags().BoolVar(&scanSaveDB, "save-db", false, "persist the report to the configured database")
	scanCmd.Flags().BoolVarP(&scanQuiet, "quiet", "q", false, "do not print live progress")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	req, err := buildScanRequest(args[0], cmd.Flags(), cfg.Scanning)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return executeScan(ctx, cmd.OutOrStdout(), cfg, newCoordinator(cfg), req, scanOptions{
		outputDir: scanOutputDir,
		saveDB:    scanSaveDB,
		quiet:     scanQuiet,
	})
}

type scanOptions struct {
	outputDir string
	saveDB    bool
	quiet     bool
}

// buildScanRequest takes the range, workers and timeout from flags when
// given and from the scanning defaults otherwise. Values are parsed as
// text so a bad number is reported against its request field.
func buildScanRequest(target string, flags *pflag.FlagSet, defaults config.ScanningConfig) (scanning.ScanRequest, error) {
	value := func(name, fallback string) string {
		if f := flags.Lookup(name); f != nil && f.Changed {
			return f.Value.String()
		}
		return fallback
	}

	return scanning.ParseScanRequest(target,
		value("start-port", strconv.Itoa(defaults.StartPort)),
		value("end-port", strconv.Itoa(defaults.EndPort)),
		value("workers", strconv.Itoa(defaults.Workers)),
		value("timeout", formatSeconds(defaults.Timeout)),
	)
}

// executeScan runs one session to completion, printing its events, and
// then writes the requested reports. Canceling ctx cancels the scan.
func executeScan(ctx context.Context, out io.Writer, cfg *config.Config, coordinator *scanning.Coordinator,
	req scanning.ScanRequest, opts scanOptions) error {
	if opts.saveDB && !cfg.Database.Enabled {
		return errors.NewDatabaseError(errors.CodeDatabaseDisabled,
			"database persistence is disabled, set database.enabled to use --save-db")
	}

	session, err := coordinator.StartScan(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Scanning %s (%s) ports %d-%d with %d workers\n",
		session.Target.Input, session.Target.IP, session.Config.StartPort, session.Config.EndPort, session.Config.Workers)

	go func() {
		select {
		case <-ctx.Done():
			session.Cancel()
		case <-session.Done():
		}
	}()

	progress := newProgressPrinter(out, opts.quiet)
	for ev := range session.Events() {
		progress.handle(ev)
	}
	session.Wait()
	progress.finish()

	st := session.Status()
	records := session.OpenPorts()
	fmt.Fprintf(out, "\nScan %s: %d/%d ports probed, %d open, OS guess: %s\n",
		st.State, st.Completed, st.Total, len(records), st.OSGuess)

	if len(records) == 0 {
		fmt.Fprintln(out, "No open ports found!")
	} else if err := report.Render(out, report.FormatTable, records); err != nil {
		return fmt.Errorf("failed to render results: %w", err)
	}

	if opts.outputDir != "" {
		if err := saveReports(out, opts.outputDir, cfg.Report.Formats, records); err != nil {
			return err
		}
	}

	if opts.saveDB {
		return saveToDatabase(out, &cfg.Database.Config, session)
	}
	return nil
}

// saveReports writes the configured report formats into dir. With no
// formats configured it writes the standard txt, json and csv trio.
func saveReports(out io.Writer, dir string, formats []string, records []scanning.OpenPortRecord) error {
	var (
		paths []string
		err   error
	)
	if len(formats) == 0 {
		paths, err = report.SaveAll(dir, records)
	} else {
		var saver *report.Saver
		saver, err = report.NewSaver(dir, formats)
		if err != nil {
			return err
		}
		paths, err = saver.Save(records)
	}
	if stderrors.Is(err, report.ErrNoOpenPorts) {
		fmt.Fprintln(out, "Nothing to save.")
		return nil
	}
	for _, path := range paths {
		fmt.Fprintf(out, "Saved %s\n", path)
	}
	return err
}

func saveToDatabase(out io.Writer, dbConfig *db.Config, session *scanning.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), databaseTimeout)
	defer cancel()

	database, err := db.ConnectAndMigrate(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logging.Warn("Failed to close database connection", "error", closeErr)
		}
	}()

	saved, err := report.Persist(ctx, db.NewReportRepository(database), session)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	fmt.Fprintf(out, "Report saved to database (id %s)\n", saved.ID)
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
