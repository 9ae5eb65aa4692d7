package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/playlake/internal/store"
	"github.com/franz/playlake/internal/util"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	Long: `List pipeline runs recorded in the ledger, newest first.

Use --tables to include the tables each run wrote.`,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntP("limit", "n", 20, "maximum number of runs to list (0 = all)")
	runsCmd.Flags().Bool("tables", false, "show the tables written by each run")
}

func runRuns(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	showTables, _ := cmd.Flags().GetBool("tables")

	db, dbPath, err := openLedger()
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		util.WarnLog("No runs recorded in %s. Run 'playlake run' first.", dbPath)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tDURATION\tINPUT\tOUTPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, statusLabel(r), humanize.Time(r.StartedAt),
			r.Duration().Round(time.Millisecond), r.Input, r.Output)

		if showTables {
			writes, err := db.GetTableWrites(r.ID)
			if err != nil {
				return fmt.Errorf("failed to get table writes for %s: %w", r.ID, err)
			}
			for _, w := range writes {
				fmt.Fprintf(tw, "\t  %s\t%s rows\t%s\t%d partitions\t\n",
					w.Table, humanize.Comma(w.Rows), humanize.Bytes(uint64(w.Bytes)), w.Partitions)
			}
		}
	}
	return tw.Flush()
}

func statusLabel(r *store.Run) string {
	switch r.Status {
	case store.StatusSucceeded:
		return "✓ " + r.Status
	case store.StatusFailed:
		return "✗ " + r.Status
	default:
		return "… " + r.Status
	}
}
