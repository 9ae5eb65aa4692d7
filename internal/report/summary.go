package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/playlake/internal/store"
)

// SummaryReport represents the summary of one pipeline run
type SummaryReport struct {
	GeneratedAt time.Time
	RunID       string
	Status      string
	Error       string
	Duration    time.Duration

	// Input statistics, one entry per dataset
	Datasets []DatasetSummary

	// Output statistics, in write order
	Tables []TableSummary

	// Transform stages that dropped rows
	Drops []StageSummary

	// Metadata
	InputPath    string
	OutputPath   string
	DatabasePath string
	EventLogPath string
}

// DatasetSummary aggregates the input files of one dataset
type DatasetSummary struct {
	Name      string
	Files     int
	Records   int
	Malformed int
	Bytes     int64
}

// TableSummary describes one written table
type TableSummary struct {
	Name       string
	Path       string
	Rows       int64
	Partitions int
	Files      int
	Bytes      int64
}

// StageSummary describes the row flow through one transform stage
type StageSummary struct {
	Stage   string
	RowsIn  int
	RowsOut int
}

// Dropped returns the number of rows the stage removed
func (s StageSummary) Dropped() int {
	return s.RowsIn - s.RowsOut
}

// TotalRows returns the number of rows written across all tables
func (r *SummaryReport) TotalRows() int64 {
	var total int64
	for _, t := range r.Tables {
		total += t.Rows
	}
	return total
}

// TotalBytes returns the number of bytes written across all tables
func (r *SummaryReport) TotalBytes() int64 {
	var total int64
	for _, t := range r.Tables {
		total += t.Bytes
	}
	return total
}

// GenerateSummaryReport creates a summary report for a run from the ledger
func GenerateSummaryReport(db *store.Store, runID string, eventLogPath string) (*SummaryReport, error) {
	run, err := db.GetRun(runID)
	if err != nil {
		return nil, err
	}

	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		RunID:        run.ID,
		Status:       run.Status,
		Error:        run.Error,
		Duration:     run.Duration(),
		InputPath:    run.Input,
		OutputPath:   run.Output,
		EventLogPath: eventLogPath,
		Datasets:     make([]DatasetSummary, 0),
		Tables:       make([]TableSummary, 0),
		Drops:        make([]StageSummary, 0),
	}

	inputs, err := db.GetInputFiles(runID)
	if err != nil {
		return nil, err
	}
	report.Datasets = gatherDatasets(inputs)

	writes, err := db.GetTableWrites(runID)
	if err != nil {
		return nil, err
	}
	for _, w := range writes {
		report.Tables = append(report.Tables, TableSummary{
			Name:       w.Table,
			Path:       w.Path,
			Rows:       w.Rows,
			Partitions: w.Partitions,
			Files:      w.Files,
			Bytes:      w.Bytes,
		})
	}

	stages, err := db.GetStageCounts(runID)
	if err != nil {
		return nil, err
	}
	for _, c := range stages {
		if c.Dropped() > 0 {
			report.Drops = append(report.Drops, StageSummary{Stage: c.Stage, RowsIn: c.RowsIn, RowsOut: c.RowsOut})
		}
	}

	// Largest drops first
	sort.SliceStable(report.Drops, func(i, j int) bool {
		return report.Drops[i].Dropped() > report.Drops[j].Dropped()
	})

	return report, nil
}

// gatherDatasets folds input files into per-dataset totals sorted by name
func gatherDatasets(inputs []*store.InputFile) []DatasetSummary {
	byName := make(map[string]*DatasetSummary)
	for _, in := range inputs {
		ds, ok := byName[in.Dataset]
		if !ok {
			ds = &DatasetSummary{Name: in.Dataset}
			byName[in.Dataset] = ds
		}
		ds.Files++
		ds.Records += in.Records
		ds.Malformed += in.Malformed
		ds.Bytes += in.SizeBytes
	}

	datasets := make([]DatasetSummary, 0, len(byName))
	for _, ds := range byName {
		datasets = append(datasets, *ds)
	}
	sort.Slice(datasets, func(i, j int) bool {
		return datasets[i].Name < datasets[j].Name
	})

	return datasets
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// RenderMarkdown renders the summary report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	// Header
	md.WriteString("# Playlake - Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Run:** `%s` (%s)\n\n", report.RunID, report.Status))
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.Duration > 0 {
		md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", report.Duration.Round(time.Millisecond)))
	}
	if report.Error != "" {
		md.WriteString(fmt.Sprintf("**Error:** %s\n\n", report.Error))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Input
	if len(report.Datasets) > 0 {
		md.WriteString("## 📥 Input\n\n")
		if report.InputPath != "" {
			md.WriteString(fmt.Sprintf("Root: `%s`\n\n", report.InputPath))
		}
		md.WriteString("| Dataset | Files | Records | Malformed | Size |\n")
		md.WriteString("|---------|-------|---------|-----------|------|\n")
		for _, ds := range report.Datasets {
			md.WriteString(fmt.Sprintf("| %s | %d | %s | %d | %s |\n",
				ds.Name, ds.Files, humanize.Comma(int64(ds.Records)), ds.Malformed, humanize.Bytes(uint64(ds.Bytes))))
		}
		md.WriteString("\n")
	}

	// Output
	if len(report.Tables) > 0 {
		md.WriteString("## 📦 Tables\n\n")
		if report.OutputPath != "" {
			md.WriteString(fmt.Sprintf("Root: `%s`\n\n", report.OutputPath))
		}
		md.WriteString("| Table | Rows | Partitions | Files | Size |\n")
		md.WriteString("|-------|------|------------|-------|------|\n")
		for _, t := range report.Tables {
			md.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %s |\n",
				t.Name, humanize.Comma(t.Rows), t.Partitions, t.Files, humanize.Bytes(uint64(t.Bytes))))
		}
		md.WriteString(fmt.Sprintf("| **Total** | %s | | | %s |\n",
			humanize.Comma(report.TotalRows()), humanize.Bytes(uint64(report.TotalBytes()))))
		md.WriteString("\n")
	}

	// Drops
	if len(report.Drops) > 0 {
		md.WriteString("## ⚠️ Dropped Rows\n\n")
		md.WriteString("| Stage | In | Out | Dropped |\n")
		md.WriteString("|-------|----|-----|---------|\n")
		for _, d := range report.Drops {
			md.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				d.Stage, humanize.Comma(int64(d.RowsIn)), humanize.Comma(int64(d.RowsOut)), humanize.Comma(int64(d.Dropped()))))
		}
		md.WriteString("\n")
	}

	// Footer
	md.WriteString("---\n\n")
	md.WriteString("*Generated by playlake*\n")

	return md.String()
}
