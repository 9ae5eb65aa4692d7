// Package lake stores tables as Hive-style partitioned Parquet files.
//
// A table lives in <root>/<name>/. Partitioned tables nest files under
// one k=v directory per partition column; partition columns are kept in
// the path only. A completed write ends with a _SUCCESS manifest, and
// readers refuse tables without one.
package lake

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/franz/playlake/internal/util"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// SuccessMarker is written last by every table write.
const SuccessMarker = "_SUCCESS"

// Store is a table location on a filesystem.
type Store struct {
	fs      afero.Fs
	root    string
	runID   string
	workers int
}

// Config holds store configuration
type Config struct {
	Fs      afero.Fs // defaults to the OS filesystem
	Root    string
	RunID   string // embedded in data file names
	Workers int    // concurrent file writers/readers
}

// New creates a Store rooted at cfg.Root.
func New(cfg *Config) *Store {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	runID := cfg.RunID
	if runID == "" {
		runID = "local"
	}
	return &Store{
		fs:      fsys,
		root:    cfg.Root,
		runID:   runID,
		workers: workers,
	}
}

// Fs returns the underlying filesystem
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Root returns the output root
func (s *Store) Root() string {
	return s.root
}

// TablePath returns the directory of a table
func (s *Store) TablePath(name string) string {
	return filepath.Join(s.root, name)
}

// Manifest describes one completed table write. It is the content of the
// table's _SUCCESS marker.
type Manifest struct {
	Table       string    `yaml:"table"`
	RunID       string    `yaml:"run_id"`
	Rows        int64     `yaml:"rows"`
	Files       int       `yaml:"files"`
	Bytes       int64     `yaml:"bytes"`
	PartitionBy []string  `yaml:"partition_by,omitempty"`
	Partitions  []string  `yaml:"partitions,omitempty"`
	WrittenAt   time.Time `yaml:"written_at"`
}

// ReadManifest loads the _SUCCESS marker of a table. A missing marker is
// reported as util.ErrTableNotReady.
func (s *Store) ReadManifest(table string) (*Manifest, error) {
	p := filepath.Join(s.TablePath(table), SuccessMarker)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s has no %s marker", util.ErrTableNotReady, s.TablePath(table), SuccessMarker)
		}
		return nil, fmt.Errorf("failed to read manifest for %s: %w", table, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest for %s: %v", util.ErrCorrupt, table, err)
	}
	return &m, nil
}

func (s *Store) writeManifest(m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	p := filepath.Join(s.TablePath(m.Table), SuccessMarker)
	if err := afero.WriteFile(s.fs, p, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest for %s: %w", m.Table, err)
	}
	return nil
}

// dataFileName follows the part-NNNNN-<run>.c000.snappy.parquet convention.
func (s *Store) dataFileName(part int) string {
	return fmt.Sprintf("part-%05d-%s.c000.snappy.parquet", part, s.runID)
}

// listDataFiles returns table-relative paths of every data file, sorted.
// Hidden and underscore-prefixed entries are ignored.
func (s *Store) listDataFiles(table string) ([]string, error) {
	base := s.TablePath(table)
	var files []string
	err := afero.Walk(s.fs, base, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if p != base && (name[0] == '_' || name[0] == '.') {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || path.Ext(name) != ".parquet" {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", base, err)
	}
	return files, nil
}
