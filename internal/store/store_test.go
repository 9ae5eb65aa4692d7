package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/playlake/internal/util"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}

	if version != len(migrations) {
		t.Errorf("expected schema version %d, got %d", len(migrations), version)
	}

	tables := []string{"runs", "input_files", "table_writes", "stage_counts", "schema_version"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
}

func TestStoreReopenKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := first.StartRun(&Run{ID: "r1", Input: "/in", Output: "/out"}); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer second.Close()

	if _, err := second.GetRun("r1"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

func TestOpenSharedStorage(t *testing.T) {
	store, err := OpenWithOptions(filepath.Join(t.TempDir(), "ledger.db"), &OpenOptions{SharedStorage: true})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	var sync int
	if err := store.db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatalf("failed to read pragma: %v", err)
	}
	if sync != 1 {
		t.Errorf("expected synchronous=NORMAL (1), got %d", sync)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	run := &Run{ID: "run-1", Input: "/in", Output: "/out", StartedAt: time.Now().Add(-time.Minute)}
	if err := store.StartRun(run); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusRunning {
		t.Errorf("expected status %q, got %q", StatusRunning, got.Status)
	}
	if !got.FinishedAt.IsZero() {
		t.Error("expected no finish time while running")
	}

	if err := store.FinishRun("run-1", nil); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err = store.GetRun("run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("expected status %q, got %q", StatusSucceeded, got.Status)
	}
	if got.Duration() < time.Minute {
		t.Errorf("expected duration >= 1m, got %s", got.Duration())
	}
}

func TestFinishRunFailed(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartRun(&Run{ID: "run-1", Input: "/in", Output: "/out"}); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if err := store.FinishRun("run-1", util.ErrTableNotReady); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, got.Status)
	}
	if got.Error != util.ErrTableNotReady.Error() {
		t.Errorf("expected error %q, got %q", util.ErrTableNotReady.Error(), got.Error)
	}

	if err := store.FinishRun("missing", nil); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown run, got %v", err)
	}
	if _, err := store.GetRun("missing"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown run, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := openTestStore(t)

	if _, err := store.LatestRun(); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound on empty ledger, got %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &Run{ID: id, Input: "/in", Output: "/out", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.StartRun(run); err != nil {
			t.Fatalf("failed to start run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[2].ID != "a" {
		t.Errorf("expected newest first, got %s..%s", runs[0].ID, runs[2].ID)
	}

	limited, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}

	latest, err := store.LatestRun()
	if err != nil {
		t.Fatalf("failed to get latest run: %v", err)
	}
	if latest.ID != "c" {
		t.Errorf("expected latest run c, got %s", latest.ID)
	}
}

func TestInputFilesAndTableWrites(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartRun(&Run{ID: "run-1", Input: "/in", Output: "/out"}); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	inputs := []*InputFile{
		{RunID: "run-1", Dataset: "song_data", Path: "/in/song_data/A/a.json", Records: 1, SizeBytes: 240},
		{RunID: "run-1", Dataset: "log_data", Path: "/in/log_data/2018-11-01-events.json", Records: 15, Malformed: 1, SizeBytes: 9000},
	}
	if err := store.RecordInputFiles(inputs); err != nil {
		t.Fatalf("failed to record inputs: %v", err)
	}
	// re-recording a path replaces it
	inputs[1].Records = 14
	if err := store.RecordInputFile(inputs[1]); err != nil {
		t.Fatalf("failed to record input: %v", err)
	}

	gotInputs, err := store.GetInputFiles("run-1")
	if err != nil {
		t.Fatalf("failed to get inputs: %v", err)
	}
	if len(gotInputs) != 2 {
		t.Fatalf("expected 2 inputs, got %d", len(gotInputs))
	}
	if gotInputs[0].Dataset != "log_data" || gotInputs[0].Records != 14 || gotInputs[0].Malformed != 1 {
		t.Errorf("unexpected log input: %+v", gotInputs[0])
	}

	now := time.Now()
	writes := []*TableWrite{
		{RunID: "run-1", Table: "songs", Path: "/out/songs", Rows: 71, Partitions: 69, Files: 69, Bytes: 1 << 20, WrittenAt: now},
		{RunID: "run-1", Table: "artists", Path: "/out/artists", Rows: 69, Files: 1, Bytes: 4096, WrittenAt: now.Add(time.Second)},
	}
	for _, w := range writes {
		if err := store.RecordTableWrite(w); err != nil {
			t.Fatalf("failed to record write: %v", err)
		}
	}

	gotWrites, err := store.GetTableWrites("run-1")
	if err != nil {
		t.Fatalf("failed to get writes: %v", err)
	}
	if len(gotWrites) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(gotWrites))
	}
	if gotWrites[0].Table != "songs" || gotWrites[0].Rows != 71 || gotWrites[0].Partitions != 69 {
		t.Errorf("unexpected first write: %+v", gotWrites[0])
	}

	if err := store.RecordStageCount(&StageCount{RunID: "run-1", Stage: "join_song_title", RowsIn: 6820, RowsOut: 1}); err != nil {
		t.Fatalf("failed to record stage: %v", err)
	}
	counts, err := store.GetStageCounts("run-1")
	if err != nil {
		t.Fatalf("failed to get stage counts: %v", err)
	}
	if len(counts) != 1 || counts[0].Dropped() != 6819 {
		t.Errorf("unexpected stage counts: %+v", counts)
	}
}

func TestSQLiteVersion(t *testing.T) {
	if SQLiteVersion() == "" {
		t.Error("expected a SQLite version string")
	}
}
