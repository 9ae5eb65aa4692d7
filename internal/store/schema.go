package store

// Schema v1 - run ledger
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per pipeline run
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  input TEXT NOT NULL,
  output TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'running',
  error TEXT,
  started_at DATETIME NOT NULL,
  finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

-- Input files read by a run
CREATE TABLE IF NOT EXISTS input_files (
  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  dataset TEXT NOT NULL,
  path TEXT NOT NULL,
  records INTEGER NOT NULL DEFAULT 0,
  malformed INTEGER NOT NULL DEFAULT 0,
  size_bytes INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, path)
);

-- Completed table writes per run
CREATE TABLE IF NOT EXISTS table_writes (
  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  table_name TEXT NOT NULL,
  path TEXT NOT NULL,
  rows INTEGER NOT NULL DEFAULT 0,
  partitions INTEGER NOT NULL DEFAULT 0,
  files INTEGER NOT NULL DEFAULT 0,
  bytes INTEGER NOT NULL DEFAULT 0,
  written_at DATETIME NOT NULL,
  PRIMARY KEY (run_id, table_name)
);
`

// Schema v2 - stage counters and lookup indexes
const schemaV2 = `
-- Row counts in and out of each transform stage
CREATE TABLE IF NOT EXISTS stage_counts (
  run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  stage TEXT NOT NULL,
  rows_in INTEGER NOT NULL DEFAULT 0,
  rows_out INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (run_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_input_files_dataset ON input_files(run_id, dataset);
CREATE INDEX IF NOT EXISTS idx_table_writes_table ON table_writes(table_name, written_at);
`
