package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/franz/playlake/internal/source"
	"github.com/franz/playlake/internal/store"
	"github.com/franz/playlake/internal/util"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure playlake can operate correctly.

This command checks:
- Configuration (timezone, concurrency, partitions)
- Input root: song and log files matching the configured globs
- Output root: exists or can be created, and is writable
- Disk space on the output root
- Ledger accessibility and integrity
- SQLite version

Use this command to troubleshoot issues before running playlake.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("input", "", "input root to check (default: input from config)")
	doctorCmd.Flags().String("output", "", "output root to check (default: output from config)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Playlake Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{
		checkConfig(),
		checkSQLite(),
		checkDatabase(viper.GetString("db")),
	}

	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		input = viper.GetString("input")
	}
	if input != "" {
		results = append(results, checkInputRoot(afero.NewOsFs(), input,
			GetConfigString("song_pattern", source.DefaultSongPattern),
			GetConfigString("log_pattern", source.DefaultLogPattern))...)
	} else {
		results = append(results, checkResult{name: "Input root", warning: true, message: "not configured (use --input or set input in config)"})
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = viper.GetString("output")
	}
	if output != "" {
		results = append(results, checkOutputRoot(output))
		results = append(results, checkDiskSpace(output, "output"))
	} else {
		results = append(results, checkResult{name: "Output root", warning: true, message: "not configured (use --output or set output in config)"})
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors, hasWarnings := printResults(results)

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running playlake.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! Ready to run.")
	}

	return nil
}

func printResults(results []checkResult) (hasErrors, hasWarnings bool) {
	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}
	return hasErrors, hasWarnings
}

// checkConfig validates settings that would otherwise fail mid-run
func checkConfig() checkResult {
	loc, err := util.GetLocation()
	if err != nil {
		return checkResult{name: "Configuration", error: true, message: err.Error()}
	}

	file := viper.ConfigFileUsed()
	if file == "" {
		file = "no config file"
	}
	return checkResult{
		name: "Configuration",
		message: fmt.Sprintf("%s (timezone %s, concurrency %d, partitions %d)",
			file, loc, util.GetConcurrency(), util.GetPartitions()),
	}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the ledger is accessible and intact
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Ledger",
			warning: true,
			message: "no ledger path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Ledger",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Ledger",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	latest := "no runs yet"
	if run, err := db.LatestRun(); err == nil {
		latest = fmt.Sprintf("last run %s %s", run.Status, humanize.Time(run.StartedAt))
	}

	return checkResult{
		name:    "Ledger",
		message: fmt.Sprintf("%s (%s, %s)", dbPath, humanize.Bytes(uint64(info.Size())), latest),
	}
}

// checkInputRoot verifies both datasets have files under root. S3 roots
// are only checked for syntax.
func checkInputRoot(fs afero.Fs, root, songPattern, logPattern string) []checkResult {
	if source.IsS3URI(root) {
		if _, _, err := source.ParseS3URI(root); err != nil {
			return []checkResult{{name: "Input root", error: true, message: err.Error()}}
		}
		return []checkResult{{name: "Input root", message: fmt.Sprintf("%s (s3, not listed)", root)}}
	}

	info, err := fs.Stat(root)
	if err != nil {
		return []checkResult{{name: "Input root", error: true, message: fmt.Sprintf("cannot access %s: %v", root, err)}}
	}
	if !info.IsDir() {
		return []checkResult{{name: "Input root", error: true, message: fmt.Sprintf("%s is not a directory", root)}}
	}

	results := []checkResult{{name: "Input root", message: root}}
	for _, ds := range []struct{ name, pattern string }{
		{source.SongData, songPattern},
		{source.LogData, logPattern},
	} {
		name := fmt.Sprintf("Input %s", ds.name)
		paths, err := source.Discover(fs, root, ds.pattern)
		if err != nil {
			results = append(results, checkResult{
				name:    name,
				error:   true,
				message: fmt.Sprintf("%v", err),
			})
			continue
		}

		var size int64
		for _, p := range paths {
			if fi, err := fs.Stat(p); err == nil {
				size += fi.Size()
			}
		}
		results = append(results, checkResult{
			name:    name,
			message: fmt.Sprintf("%d files matching %s (%s)", len(paths), ds.pattern, humanize.Bytes(uint64(size))),
		})
	}
	return results
}

// checkOutputRoot verifies the output root is a writable directory
func checkOutputRoot(path string) checkResult {
	if source.IsS3URI(path) {
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("%s: tables can only be written to a local root", path),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Output root",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Output root",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".playlake_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Output root",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Output root",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// warn below 1GB free or above 90% used
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.Bytes(availBytes), warningMsg),
	}
}
