// Package journal keeps a history of scan runs in a SQLite database
// stored inside the collection root. The journal is advisory: scan and
// save paths treat journal failures as warnings, never as errors.
package journal

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	currentSchemaVersion = 1

	// FileName is the journal database file inside the collection root.
	FileName = ".collection_scans.db"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Run kinds.
const (
	KindFull        = "full"
	KindIncremental = "incremental"
)

// Journal records scan runs and their per-band outcomes.
type Journal struct {
	db *sql.DB
}

// Run is one scan invocation.
type Run struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	BandsTotal   int    `json:"bands_total"`
	BandsScanned int    `json:"bands_scanned"`
	BandsFailed  int    `json:"bands_failed"`
	AlbumsSeen   int    `json:"albums_seen"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// BandScan is the outcome of scanning one band during a run.
type BandScan struct {
	RunID            string `json:"run_id"`
	BandName         string `json:"band_name"`
	FolderPath       string `json:"folder_path,omitempty"`
	LocalAlbums      int    `json:"local_albums"`
	MissingAlbums    int    `json:"missing_albums"`
	Tracks           int    `json:"tracks"`
	StructureType    string `json:"structure_type,omitempty"`
	ConsistencyScore int    `json:"consistency_score"`
	DurationMS       int64  `json:"duration_ms"`
	Cached           bool   `json:"cached"`
	Error            string `json:"error,omitempty"`
}

// Path returns the journal database path for a collection root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Open opens or creates the journal database at the given path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &Journal{db: db}

	if err := j.applyPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}

	return j, nil
}

func (j *Journal) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := j.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// CheckIntegrity runs PRAGMA integrity_check on the database.
func (j *Journal) CheckIntegrity() error {
	var result string
	err := j.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// migrate applies database migrations
func (j *Journal) migrate() error {
	version, err := j.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := j.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	// Future migrations would go here:
	// if version < 2 { ... }

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

func (j *Journal) getSchemaVersion() (int, error) {
	var exists int
	err := j.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

func (j *Journal) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// StartRun records the beginning of a scan run. A missing ID is filled
// with a fresh UUID.
func (j *Journal) StartRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}

	_, err := j.db.Exec(`
		INSERT INTO scan_runs (id, kind, started_at, status)
		VALUES (?, ?, ?, ?)
	`, run.ID, run.Kind, run.StartedAt, run.Status)

	if err != nil {
		return fmt.Errorf("failed to insert scan run: %w", err)
	}

	return nil
}

// FinishRun records the final counters and status of a run.
func (j *Journal) FinishRun(run *Run) error {
	_, err := j.db.Exec(`
		UPDATE scan_runs SET
			completed_at = ?,
			bands_total = ?,
			bands_scanned = ?,
			bands_failed = ?,
			albums_seen = ?,
			status = ?,
			error = ?
		WHERE id = ?
	`, run.CompletedAt, run.BandsTotal, run.BandsScanned, run.BandsFailed,
		run.AlbumsSeen, run.Status, run.Error, run.ID)

	if err != nil {
		return fmt.Errorf("failed to update scan run: %w", err)
	}

	return nil
}

// InsertBandScanBatch inserts band outcomes in a single transaction.
func (j *Journal) InsertBandScanBatch(scans []*BandScan) error {
	if len(scans) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO band_scans
		(run_id, band_name, folder_path, local_albums, missing_albums,
		 tracks, structure_type, consistency_score, duration_ms, cached, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, bs := range scans {
		cached := 0
		if bs.Cached {
			cached = 1
		}
		if _, err := stmt.Exec(bs.RunID, bs.BandName, bs.FolderPath,
			bs.LocalAlbums, bs.MissingAlbums, bs.Tracks, bs.StructureType,
			bs.ConsistencyScore, bs.DurationMS, cached, bs.Error); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.Query(`
		SELECT id, kind, started_at, COALESCE(completed_at, ''),
		       bands_total, bands_scanned, bands_failed, albums_seen,
		       status, COALESCE(error, '')
		FROM scan_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)

	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r := &Run{}
		err := rows.Scan(
			&r.ID, &r.Kind, &r.StartedAt, &r.CompletedAt,
			&r.BandsTotal, &r.BandsScanned, &r.BandsFailed, &r.AlbumsSeen,
			&r.Status, &r.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// LastCompletedRun returns the most recent completed run, or nil if
// no run has completed yet.
func (j *Journal) LastCompletedRun() (*Run, error) {
	r := &Run{}
	err := j.db.QueryRow(`
		SELECT id, kind, started_at, COALESCE(completed_at, ''),
		       bands_total, bands_scanned, bands_failed, albums_seen,
		       status, COALESCE(error, '')
		FROM scan_runs
		WHERE status = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`, RunStatusCompleted).Scan(
		&r.ID, &r.Kind, &r.StartedAt, &r.CompletedAt,
		&r.BandsTotal, &r.BandsScanned, &r.BandsFailed, &r.AlbumsSeen,
		&r.Status, &r.Error,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	return r, nil
}

// BandScans returns the per-band outcomes of one run, by band name.
func (j *Journal) BandScans(runID string) ([]*BandScan, error) {
	rows, err := j.db.Query(`
		SELECT run_id, band_name, COALESCE(folder_path, ''),
		       local_albums, missing_albums, tracks,
		       COALESCE(structure_type, ''), consistency_score,
		       duration_ms, cached, COALESCE(error, '')
		FROM band_scans
		WHERE run_id = ?
		ORDER BY band_name
	`, runID)

	if err != nil {
		return nil, fmt.Errorf("failed to query band scans: %w", err)
	}
	defer rows.Close()

	var scans []*BandScan
	for rows.Next() {
		bs := &BandScan{}
		var cached int
		err := rows.Scan(
			&bs.RunID, &bs.BandName, &bs.FolderPath,
			&bs.LocalAlbums, &bs.MissingAlbums, &bs.Tracks,
			&bs.StructureType, &bs.ConsistencyScore,
			&bs.DurationMS, &cached, &bs.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan band scan: %w", err)
		}
		bs.Cached = cached == 1
		scans = append(scans, bs)
	}

	return scans, rows.Err()
}
