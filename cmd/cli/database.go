package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/report"
	"github.com/anstrom/portsweep/internal/scanning"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	reportsLimit int
	reportFormat string
)

// databaseCmd represents the db command group
var databaseCmd = &cobra.Command{
	Use:     "db",
	Aliases: []string{"database"},
	Short:   "Manage the report database",
	Long: `Manage the PostgreSQL database that stores scan reports.

Connection settings come from the database section of the config file or
PORTSWEEP_DATABASE_* variables.`,
}

var databaseMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(false, func(ctx context.Context, database *db.DB) error {
			applied, err := db.NewMigrator(database.DB).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s)\n", applied)
			return nil
		})
	},
}

var databaseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(false, func(ctx context.Context, database *db.DB) error {
			statuses, err := db.NewMigrator(database.DB).Status(ctx)
			if err != nil {
				return err
			}
			return printMigrationStatus(cmd.OutOrStdout(), statuses)
		})
	},
}

var databaseReportsCmd = &cobra.Command{
	Use:     "reports",
	Aliases: []string{"ls"},
	Short:   "List saved scan reports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(true, func(ctx context.Context, database *db.DB) error {
			return listReports(ctx, cmd.OutOrStdout(), db.NewReportRepository(database), reportsLimit)
		})
	},
}

var databaseShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print the open ports of a saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid report id %q: %w", args[0], err)
		}
		format, err := report.ParseFormat(reportFormat)
		if err != nil {
			return err
		}
		return withDatabase(true, func(ctx context.Context, database *db.DB) error {
			return showReport(ctx, cmd.OutOrStdout(), db.NewReportRepository(database), id, format)
		})
	},
}

func init() {
	rootCmd.AddCommand(databaseCmd)
	databaseCmd.AddCommand(databaseMigrateCmd, databaseStatusCmd, databaseReportsCmd, databaseShowCmd)

	databaseReportsCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "number of reports to list")
	databaseShowCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatTable),
		"output format: txt, json, csv, table")
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) error {
	table := tablewriter.NewWriter(w)
	table.Header("Migration", "Applied", "Applied At")
	for _, st := range statuses {
		appliedAt := "-"
		if st.Applied {
			appliedAt = st.AppliedAt.Format(timeLayout)
		}
		if err := table.Append([]string{st.Name, strconv.FormatBool(st.Applied), appliedAt}); err != nil {
			return err
		}
	}
	return table.Render()
}

func listReports(ctx context.Context, w io.Writer, repo *db.ReportRepository, limit int) error {
	reports, err := repo.ListRecent(ctx, limit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "No saved reports.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Target", "IP", "OS", "Ports", "State", "Saved")
	for _, r := range reports {
		row := []string{
			r.ID.String(),
			r.Target,
			r.IP,
			r.OSGuess,
			fmt.Sprintf("%d-%d", r.StartPort, r.EndPort),
			r.State,
			r.CreatedAt.Format(timeLayout),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func showReport(ctx context.Context, w io.Writer, repo *db.ReportRepository, id uuid.UUID, format report.Format) error {
	saved, ports, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if format == report.FormatTable {
		fmt.Fprintf(w, "%s (%s) ports %d-%d, %s, OS guess: %s\n",
			saved.Target, saved.IP, saved.StartPort, saved.EndPort, saved.State, saved.OSGuess)
	}

	records := make([]scanning.OpenPortRecord, len(ports))
	for i, p := range ports {
		records[i] = scanning.OpenPortRecord{Port: p.Port, Banner: p.Banner}
	}
	return report.Render(w, format, records)
}
