package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/playlake/internal/metrics"
	"github.com/franz/playlake/internal/pipeline"
	"github.com/franz/playlake/internal/report"
	"github.com/franz/playlake/internal/source"
	"github.com/franz/playlake/internal/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the star schema from song and log data",
	Long: `Run the full pipeline against an input root.

The run has two phases:
1. Song data: load the catalog, write the songs and artists tables
2. Log data: load the activity log, write the users and time tables,
   then join plays against songs and artists to write songplays

Every table is overwritten as a whole. The input root may be a local
directory or an s3://bucket/prefix URI, in which case matching objects
are staged to local disk first. The output root must be local.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("input", "i", "", "input root (directory or s3://bucket/prefix)")
	runCmd.Flags().StringP("output", "o", "", "output root for the tables")
	runCmd.Flags().String("song-pattern", source.DefaultSongPattern, "glob for song files, relative to the input root")
	runCmd.Flags().String("log-pattern", source.DefaultLogPattern, "glob for log files, relative to the input root")
	runCmd.Flags().String("timezone", "", "IANA zone used to render start_time (default: local)")
	runCmd.Flags().IntP("concurrency", "c", 8, "number of concurrent workers")
	runCmd.Flags().Int("partitions", 8, "number of in-memory partitions")
	runCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	runCmd.Flags().String("staging-dir", "", "local directory for staged s3 inputs (default: a temp dir)")
	runCmd.Flags().String("report", "", "write a Markdown run summary to this file")

	viper.BindPFlag("input", runCmd.Flags().Lookup("input"))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("song_pattern", runCmd.Flags().Lookup("song-pattern"))
	viper.BindPFlag("log_pattern", runCmd.Flags().Lookup("log-pattern"))
	viper.BindPFlag("timezone", runCmd.Flags().Lookup("timezone"))
	viper.BindPFlag("concurrency", runCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("partitions", runCmd.Flags().Lookup("partitions"))
	viper.BindPFlag("metrics_file", runCmd.Flags().Lookup("metrics-file"))
	viper.BindPFlag("staging_dir", runCmd.Flags().Lookup("staging-dir"))
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	input := viper.GetString("input")
	if input == "" {
		return fmt.Errorf("%w: input root is required (use --input/-i or set in config)", util.ErrInvalidConfig)
	}
	output := viper.GetString("output")
	if output == "" {
		return fmt.Errorf("%w: output root is required (use --output/-o or set in config)", util.ErrInvalidConfig)
	}

	loc, err := util.GetLocation()
	if err != nil {
		return err
	}
	concurrency := util.GetConcurrency()
	runID := uuid.NewString()

	db, dbPath, err := openLedger()
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer db.Close()

	logger := openEventLogger()
	defer logger.Close()
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}

	m := metrics.New(runID)

	var stager *source.S3Stager
	if source.IsS3URI(input) {
		stager, err = newStager(ctx, runID, concurrency)
		if err != nil {
			return err
		}
	}

	p, err := pipeline.New(&pipeline.Config{
		Input:       input,
		Output:      output,
		SongPattern: GetConfigString("song_pattern", source.DefaultSongPattern),
		LogPattern:  GetConfigString("log_pattern", source.DefaultLogPattern),
		Location:    loc,
		Concurrency: concurrency,
		Partitions:  util.GetPartitions(),
		RunID:       runID,
		Ledger:      db,
		Events:      logger,
		Metrics:     m,
		Stager:      stager,
	})
	if err != nil {
		return err
	}

	util.InfoLog("Ledger: %s", dbPath)
	util.InfoLog("Timezone: %s", loc)
	util.InfoLog("Concurrency: %d", concurrency)

	res, runErr := p.Run(ctx)

	if path := viper.GetString("metrics_file"); path != "" {
		if err := m.WriteTextfile(path); err != nil {
			util.WarnLog("Failed to write metrics: %v", err)
		} else {
			util.DebugLog("Metrics written to %s", path)
		}
	}

	if runErr != nil {
		util.ErrorLog("Run %s failed: %v", runID, runErr)
		return runErr
	}

	util.InfoLog("")
	util.SuccessLog("=== Run Summary ===")
	util.InfoLog("Run: %s", res.RunID)
	util.InfoLog("Total time: %v", res.Duration.Round(time.Millisecond))
	for _, in := range []*source.Result{res.Catalog, res.Activity} {
		if in == nil || len(in.Files) == 0 {
			continue
		}
		util.InfoLog("  %s: %d files, %s records", in.Files[0].Dataset, len(in.Files), humanize.Comma(int64(in.Records)))
		if in.Malformed > 0 {
			util.WarnLog("  %s: %d malformed lines dropped", in.Files[0].Dataset, in.Malformed)
		}
	}
	for _, t := range res.Tables {
		util.InfoLog("  %-10s %10s rows  %4d partitions  %s",
			t.Table, humanize.Comma(t.Rows), len(t.Partitions), humanize.Bytes(uint64(t.Bytes)))
	}

	reportPath, _ := cmd.Flags().GetString("report")
	if reportPath != "" {
		summary, err := report.GenerateSummaryReport(db, res.RunID, logger.Path())
		if err != nil {
			util.WarnLog("Failed to build run summary: %v", err)
			return nil
		}
		summary.DatabasePath = dbPath
		if err := report.WriteMarkdownReport(summary, reportPath); err != nil {
			util.WarnLog("Failed to write run summary: %v", err)
			return nil
		}
		util.InfoLog("Summary: %s", reportPath)
	}

	return nil
}

// newStager builds the S3 client from aws.* config keys, falling back to
// the SDK's default credential chain.
func newStager(ctx context.Context, runID string, concurrency int) (*source.S3Stager, error) {
	client, err := source.NewS3Client(ctx, source.S3Options{
		Region:          viper.GetString("aws.region"),
		AccessKeyID:     viper.GetString("aws.access_key_id"),
		SecretAccessKey: viper.GetString("aws.secret_access_key"),
		Endpoint:        viper.GetString("aws.endpoint"),
	})
	if err != nil {
		return nil, err
	}

	dir := viper.GetString("staging_dir")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "playlake-"+runID)
	}
	util.InfoLog("Staging s3 input to %s", dir)

	return source.NewS3Stager(&source.StagerConfig{
		Client:      client,
		StagingDir:  dir,
		Concurrency: concurrency,
	}), nil
}
