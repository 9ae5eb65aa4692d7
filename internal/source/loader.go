package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/franz/playlake/internal/frame"
	"github.com/franz/playlake/internal/metrics"
	"github.com/franz/playlake/internal/record"
	"github.com/franz/playlake/internal/report"
	"github.com/franz/playlake/internal/util"
)

// Loader reads JSON-lines files into frames
type Loader struct {
	fs          afero.Fs
	concurrency int
	partitions  int
	logger      *report.EventLogger
	metrics     *metrics.Pipeline
}

// Config holds loader configuration
type Config struct {
	Fs          afero.Fs
	Concurrency int
	Partitions  int
	Logger      *report.EventLogger
	Metrics     *metrics.Pipeline
}

// New creates a new Loader
func New(cfg *Config) *Loader {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = cfg.Concurrency
	}

	return &Loader{
		fs:          cfg.Fs,
		concurrency: cfg.Concurrency,
		partitions:  cfg.Partitions,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// FileStats describes one loaded input file
type FileStats struct {
	Dataset   string
	Path      string
	Records   int
	Malformed int
	Bytes     int64
}

// Result summarizes a load
type Result struct {
	Files     []FileStats
	Records   int
	Malformed int
}

type fileRows[T any] struct {
	index int
	rows  []T
	stats FileStats
}

// LoadCatalog reads song catalog files
func (l *Loader) LoadCatalog(ctx context.Context, paths []string) (*frame.Frame[record.Catalog], *Result, error) {
	return Load(ctx, l, SongData, paths, record.DecodeCatalog)
}

// LoadActivity reads activity log files
func (l *Loader) LoadActivity(ctx context.Context, paths []string) (*frame.Frame[record.Activity], *Result, error) {
	return Load(ctx, l, LogData, paths, record.DecodeActivity)
}

// Load reads every file concurrently and decodes each JSON object line with
// decode. Lines that are not JSON objects are dropped and counted. File i
// lands in frame partition i mod partitions, preserving line order within a
// file.
func Load[T any](ctx context.Context, l *Loader, dataset string, paths []string, decode func(map[string]any) T) (*frame.Frame[T], *Result, error) {
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", dataset, util.ErrNoInput)
	}

	bar := newProgressBar(dataset, len(paths))

	p := pool.NewWithResults[fileRows[T]]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(l.concurrency)

	for i, path := range paths {
		p.Go(func(ctx context.Context) (fileRows[T], error) {
			rows, stats, err := readFile(ctx, l, dataset, path, decode)
			if err != nil {
				return fileRows[T]{}, err
			}
			if bar != nil {
				_ = bar.Add(1)
			}
			return fileRows[T]{index: i, rows: rows, stats: stats}, nil
		})
	}

	results, err := p.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	n := min(l.partitions, len(paths))
	parts := make([][]T, n)
	res := &Result{Files: make([]FileStats, 0, len(results))}
	for _, r := range results {
		parts[r.index%n] = append(parts[r.index%n], r.rows...)
		res.Files = append(res.Files, r.stats)
		res.Records += r.stats.Records
		res.Malformed += r.stats.Malformed
	}

	if res.Malformed > 0 {
		util.WarnLog("%s: dropped %d malformed lines across %d files", dataset, res.Malformed, len(paths))
	}
	util.DebugLog("%s: loaded %d records from %d files into %d partitions", dataset, res.Records, len(paths), n)

	return frame.FromPartitions(parts, frame.WithWorkers(l.concurrency)), res, nil
}

func readFile[T any](ctx context.Context, l *Loader, dataset, path string, decode func(map[string]any) T) ([]T, FileStats, error) {
	stats := FileStats{Dataset: dataset, Path: path}

	f, err := l.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, stats, fmt.Errorf("failed to open %s: %w", path, util.ErrPermission)
		}
		return nil, stats, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []T
	r := bufio.NewReaderSize(f, 64*1024)
	for lineNo := 1; ; lineNo++ {
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}

		line, readErr := r.ReadBytes('\n')
		stats.Bytes += int64(len(line))
		if readErr != nil && readErr != io.EOF {
			return nil, stats, fmt.Errorf("failed to read %s: %w", path, readErr)
		}

		if line = bytes.TrimSpace(line); len(line) > 0 {
			obj, err := record.ParseObject(line)
			if err != nil {
				stats.Malformed++
				l.logger.LogMalformed(dataset, path, lineNo, err)
			} else {
				rows = append(rows, decode(obj))
				stats.Records++
			}
		}

		if readErr == io.EOF {
			break
		}
	}

	l.logger.LogLoad(dataset, path, stats.Records, stats.Malformed, stats.Bytes)
	l.metrics.ObserveFile(dataset, stats.Records, stats.Malformed)

	return rows, stats, nil
}

// newProgressBar returns nil when stderr is not a terminal or output is quiet
func newProgressBar(dataset string, total int) *progressbar.ProgressBar {
	if !util.IsTerminal(os.Stderr) || util.IsQuiet() {
		return nil
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Loading "+dataset),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
