package journal

// Schema v1 - scan history tables
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per scan invocation
CREATE TABLE IF NOT EXISTS scan_runs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  started_at TEXT NOT NULL,
  completed_at TEXT,
  bands_total INTEGER DEFAULT 0,
  bands_scanned INTEGER DEFAULT 0,
  bands_failed INTEGER DEFAULT 0,
  albums_seen INTEGER DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'running',
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_started_at ON scan_runs(started_at);

-- One row per band touched by a run
CREATE TABLE IF NOT EXISTS band_scans (
  run_id TEXT NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
  band_name TEXT NOT NULL,
  folder_path TEXT,
  local_albums INTEGER DEFAULT 0,
  missing_albums INTEGER DEFAULT 0,
  tracks INTEGER DEFAULT 0,
  structure_type TEXT,
  consistency_score INTEGER DEFAULT 0,
  duration_ms INTEGER DEFAULT 0,
  cached INTEGER DEFAULT 0,
  error TEXT,
  PRIMARY KEY (run_id, band_name)
);

CREATE INDEX IF NOT EXISTS idx_band_scans_band_name ON band_scans(band_name);
`
