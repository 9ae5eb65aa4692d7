package lake

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/franz/playlake/internal/frame"
	"github.com/franz/playlake/internal/util"
	"github.com/sourcegraph/conc/pool"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// Table declares how rows of type T are laid out on disk. F is the
// parquet-tagged record written to data files; it holds every column
// except the partition columns.
type Table[T any, F any] struct {
	Name        string
	PartitionBy []string

	// Partition returns the row's partition values in PartitionBy order.
	Partition func(T) []PartitionValue
	Encode    func(T) F
	Decode    func(F, Partition) T
}

func (t Table[T, F]) partitionDir(row T) string {
	if len(t.PartitionBy) == 0 {
		return ""
	}
	return partitionDir(t.PartitionBy, t.Partition(row))
}

type fileStats struct {
	dir   string
	rows  int64
	bytes int64
}

// Write replaces the table with the rows of f. The table directory is
// removed first; every frame partition then writes one file per output
// partition it holds rows for, and the _SUCCESS manifest is written last.
// A failure leaves the table without a marker.
func Write[T any, F any](ctx context.Context, s *Store, t Table[T, F], f *frame.Frame[T]) (*Manifest, error) {
	base := s.TablePath(t.Name)
	if err := s.fs.RemoveAll(base); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", base, err)
	}
	if err := s.fs.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", base, err)
	}

	p := pool.NewWithResults[[]fileStats]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(s.workers)

	for i, rows := range f.Partitions() {
		p.Go(func(ctx context.Context) ([]fileStats, error) {
			return writePartition(ctx, s, t, i, rows)
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to write table %s: %w", t.Name, err)
	}

	m := &Manifest{
		Table:       t.Name,
		RunID:       s.runID,
		PartitionBy: t.PartitionBy,
		WrittenAt:   time.Now().UTC(),
	}
	dirs := make(map[string]struct{})
	for _, stats := range results {
		for _, st := range stats {
			m.Files++
			m.Rows += st.rows
			m.Bytes += st.bytes
			if st.dir != "" {
				dirs[st.dir] = struct{}{}
			}
		}
	}
	for d := range dirs {
		m.Partitions = append(m.Partitions, d)
	}
	sort.Strings(m.Partitions)

	if err := s.writeManifest(m); err != nil {
		return nil, err
	}

	util.DebugLog("Wrote %s: %d rows, %d files, %d partitions", t.Name, m.Rows, m.Files, len(m.Partitions))
	return m, nil
}

// writePartition writes the rows of one frame partition, grouped by output
// partition directory.
func writePartition[T any, F any](ctx context.Context, s *Store, t Table[T, F], part int, rows []T) ([]fileStats, error) {
	groups := make(map[string][]T)
	var order []string
	for _, r := range rows {
		dir := t.partitionDir(r)
		if _, ok := groups[dir]; !ok {
			order = append(order, dir)
		}
		groups[dir] = append(groups[dir], r)
	}

	stats := make([]fileStats, 0, len(order))
	for _, dir := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := filepath.Join(s.TablePath(t.Name), filepath.FromSlash(dir), s.dataFileName(part))
		n, err := writeFile(s, p, t, groups[dir])
		if err != nil {
			return nil, err
		}
		stats = append(stats, fileStats{dir: dir, rows: int64(len(groups[dir])), bytes: n})
	}
	return stats, nil
}

func writeFile[T any, F any](s *Store, p string, t Table[T, F], rows []T) (n int64, err error) {
	if err := s.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", filepath.Dir(p), err)
	}
	fh, err := s.fs.Create(p)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", p, err)
	}
	defer func() {
		if cerr := fh.Close(); cerr != nil && err == nil {
			n, err = 0, fmt.Errorf("failed to close %s: %w", p, cerr)
		}
	}()

	pw, err := writer.NewParquetWriter(&parquetFile{File: fh, fs: s.fs}, new(F), 1)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet writer for %s: %w", p, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		if err := pw.Write(t.Encode(r)); err != nil {
			return 0, fmt.Errorf("failed to write row to %s: %w", p, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("failed to finish %s: %w", p, err)
	}

	info, err := fh.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return info.Size(), nil
}

// Read loads a table written by Write. Each data file becomes one frame
// partition. The table must carry a _SUCCESS marker.
func Read[T any, F any](ctx context.Context, s *Store, t Table[T, F], opts ...frame.Option) (*frame.Frame[T], error) {
	if _, err := s.ReadManifest(t.Name); err != nil {
		return nil, err
	}

	files, err := s.listDataFiles(t.Name)
	if err != nil {
		return nil, err
	}

	var rowsRead atomic.Int64
	p := pool.NewWithResults[[]T]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(s.workers)

	for _, rel := range files {
		p.Go(func(ctx context.Context) ([]T, error) {
			part, err := parsePartitionDir(t.PartitionBy, path.Dir(rel))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", util.ErrCorrupt, rel, err)
			}
			rows, err := readFile(s, filepath.Join(s.TablePath(t.Name), filepath.FromSlash(rel)), t, part)
			if err != nil {
				return nil, err
			}
			rowsRead.Add(int64(len(rows)))
			return rows, nil
		})
	}

	parts, err := p.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", t.Name, err)
	}

	util.DebugLog("Read %s: %d rows from %d files", t.Name, rowsRead.Load(), len(files))
	return frame.FromPartitions(parts, opts...), nil
}

func readFile[T any, F any](s *Store, p string, t Table[T, F], part Partition) ([]T, error) {
	fh, err := s.fs.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer fh.Close()

	pr, err := reader.NewParquetReader(&parquetFile{File: fh, fs: s.fs}, new(F), 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrCorrupt, p, err)
	}
	defer pr.ReadStop()

	records := make([]F, int(pr.GetNumRows()))
	if len(records) > 0 {
		if err := pr.Read(&records); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", util.ErrCorrupt, p, err)
		}
	}

	rows := make([]T, len(records))
	for i, rec := range records {
		rows[i] = t.Decode(rec, part)
	}
	return rows, nil
}
