package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/playlake/internal/util"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run represents one pipeline execution
type Run struct {
	ID         string
	Input      string
	Output     string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took, or how long it has been running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// InputFile represents one input file read by a run
type InputFile struct {
	RunID     string
	Dataset   string
	Path      string
	Records   int
	Malformed int
	SizeBytes int64
}

// TableWrite represents a completed table write
type TableWrite struct {
	RunID      string
	Table      string
	Path       string
	Rows       int64
	Partitions int
	Files      int
	Bytes      int64
	WrittenAt  time.Time
}

// StageCount records rows entering and leaving a transform stage
type StageCount struct {
	RunID   string
	Stage   string
	RowsIn  int
	RowsOut int
}

// Dropped returns the number of rows the stage removed
func (c StageCount) Dropped() int {
	return c.RowsIn - c.RowsOut
}

// StartRun inserts a new run in the running state
func (s *Store) StartRun(r *Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.Status = StatusRunning

	_, err := s.db.Exec(`
		INSERT INTO runs (id, input, output, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.Input, r.Output, r.Status, r.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	return nil
}

// FinishRun marks a run succeeded, or failed when runErr is non-nil
func (s *Store) FinishRun(id string, runErr error) error {
	status := StatusSucceeded
	errMsg := ""
	if runErr != nil {
		status = StatusFailed
		errMsg = runErr.Error()
	}

	result, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, util.ErrNotFound)
	}

	return nil
}

const runColumns = `id, input, output, status, COALESCE(error, ''), started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Input, &r.Output, &r.Status, &r.Error, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, nil
}

// GetRun retrieves a run by id
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first, at most limit (0 means all)
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// LatestRun returns the most recently started run
func (s *Store) LatestRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded: %w", util.ErrNotFound)
	}
	return runs[0], nil
}

// RecordInputFile records an input file read by a run
func (s *Store) RecordInputFile(f *InputFile) error {
	_, err := s.db.Exec(`
		INSERT INTO input_files (run_id, dataset, path, records, malformed, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO UPDATE SET
			records = excluded.records,
			malformed = excluded.malformed,
			size_bytes = excluded.size_bytes
	`, f.RunID, f.Dataset, f.Path, f.Records, f.Malformed, f.SizeBytes)
	if err != nil {
		return fmt.Errorf("failed to record input file: %w", err)
	}
	return nil
}

// RecordInputFiles records a batch of input files in one transaction
func (s *Store) RecordInputFiles(files []*InputFile) error {
	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO input_files (run_id, dataset, path, records, malformed, size_bytes)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare input insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range files {
			if _, err := stmt.Exec(f.RunID, f.Dataset, f.Path, f.Records, f.Malformed, f.SizeBytes); err != nil {
				return fmt.Errorf("failed to record input file %s: %w", f.Path, err)
			}
		}
		return nil
	})
}

// GetInputFiles returns the input files of a run ordered by dataset and path
func (s *Store) GetInputFiles(runID string) ([]*InputFile, error) {
	rows, err := s.db.Query(`
		SELECT run_id, dataset, path, records, malformed, size_bytes
		FROM input_files
		WHERE run_id = ?
		ORDER BY dataset, path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get input files: %w", err)
	}
	defer rows.Close()

	var files []*InputFile
	for rows.Next() {
		f := &InputFile{}
		if err := rows.Scan(&f.RunID, &f.Dataset, &f.Path, &f.Records, &f.Malformed, &f.SizeBytes); err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// RecordTableWrite records a completed table write
func (s *Store) RecordTableWrite(w *TableWrite) error {
	if w.WrittenAt.IsZero() {
		w.WrittenAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO table_writes
		(run_id, table_name, path, rows, partitions, files, bytes, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.RunID, w.Table, w.Path, w.Rows, w.Partitions, w.Files, w.Bytes, w.WrittenAt)
	if err != nil {
		return fmt.Errorf("failed to record table write: %w", err)
	}
	return nil
}

// GetTableWrites returns the tables written by a run in write order
func (s *Store) GetTableWrites(runID string) ([]*TableWrite, error) {
	rows, err := s.db.Query(`
		SELECT run_id, table_name, path, rows, partitions, files, bytes, written_at
		FROM table_writes
		WHERE run_id = ?
		ORDER BY written_at, table_name
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get table writes: %w", err)
	}
	defer rows.Close()

	var writes []*TableWrite
	for rows.Next() {
		w := &TableWrite{}
		if err := rows.Scan(&w.RunID, &w.Table, &w.Path, &w.Rows, &w.Partitions, &w.Files, &w.Bytes, &w.WrittenAt); err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}

	return writes, rows.Err()
}

// RecordStageCount records row counts for a transform stage
func (s *Store) RecordStageCount(c *StageCount) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO stage_counts (run_id, stage, rows_in, rows_out)
		VALUES (?, ?, ?, ?)
	`, c.RunID, c.Stage, c.RowsIn, c.RowsOut)
	if err != nil {
		return fmt.Errorf("failed to record stage count: %w", err)
	}
	return nil
}

// GetStageCounts returns the stage counts of a run
func (s *Store) GetStageCounts(runID string) ([]*StageCount, error) {
	rows, err := s.db.Query(`
		SELECT run_id, stage, rows_in, rows_out
		FROM stage_counts
		WHERE run_id = ?
		ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage counts: %w", err)
	}
	defer rows.Close()

	var counts []*StageCount
	for rows.Next() {
		c := &StageCount{}
		if err := rows.Scan(&c.RunID, &c.Stage, &c.RowsIn, &c.RowsOut); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
