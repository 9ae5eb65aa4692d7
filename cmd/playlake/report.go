package main

import (
	"fmt"
	"path/filepath"

	"github.com/franz/playlake/internal/report"
	"github.com/franz/playlake/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Generate a Markdown summary of a run",
	Long: `Generate a Markdown summary of a recorded run.

The report includes:
- Input files and records per dataset, with malformed line counts
- Rows, partitions and bytes written per table
- Transform stages that dropped rows

Without a run id the latest run is reported. The report is saved to
<events_dir>/reports/<run-id>/summary.md unless --out is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "output file for the report")
	reportCmd.Flags().String("event-log", "", "path to the run's event log (optional)")
	reportCmd.Flags().Bool("stdout", false, "print the report instead of writing a file")
}

func runReport(cmd *cobra.Command, args []string) error {
	db, dbPath, err := openLedger()
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()

	var runID string
	if len(args) > 0 {
		runID = args[0]
	} else {
		latest, err := db.LatestRun()
		if err != nil {
			return fmt.Errorf("no runs to report: %w", err)
		}
		runID = latest.ID
	}

	eventLogPath, _ := cmd.Flags().GetString("event-log")
	summary, err := report.GenerateSummaryReport(db, runID, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = dbPath

	if toStdout, _ := cmd.Flags().GetBool("stdout"); toStdout {
		fmt.Print(report.RenderMarkdown(summary))
		return nil
	}

	outputPath, _ := cmd.Flags().GetString("out")
	if outputPath == "" {
		outputPath = filepath.Join(GetConfigString("events_dir", "artifacts"), "reports", runID, "summary.md")
	}

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report for run %s written to %s", runID, outputPath)
	if summary.Error != "" {
		util.WarnLog("Run failed: %s", summary.Error)
	}
	return nil
}
