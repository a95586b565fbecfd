package journal

import (
	"path/filepath"
	"testing"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	return j
}

func TestOpenAndMigrate(t *testing.T) {
	j := openTestJournal(t)

	version, err := j.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{"scan_runs", "band_scans", "schema_version"}
	for _, table := range tables {
		var count int
		err := j.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	if err := j.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed on fresh journal: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)

	run := &Run{
		Kind:      KindFull,
		StartedAt: "2026-08-25T10:00:00Z",
	}
	if err := j.StartRun(run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("StartRun did not assign an ID")
	}

	run.CompletedAt = "2026-08-25T10:05:00Z"
	run.BandsTotal = 12
	run.BandsScanned = 10
	run.BandsFailed = 2
	run.AlbumsSeen = 87
	run.Status = RunStatusCompleted
	if err := j.FinishRun(run); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := j.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}

	got := runs[0]
	if got.ID != run.ID {
		t.Errorf("run ID = %q, expected %q", got.ID, run.ID)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("run status = %q, expected %q", got.Status, RunStatusCompleted)
	}
	if got.BandsScanned != 10 || got.BandsFailed != 2 || got.AlbumsSeen != 87 {
		t.Errorf("run counters = %d/%d/%d, expected 10/2/87",
			got.BandsScanned, got.BandsFailed, got.AlbumsSeen)
	}
}

func TestRecentRunsOrder(t *testing.T) {
	j := openTestJournal(t)

	times := []string{
		"2026-08-23T09:00:00Z",
		"2026-08-24T09:00:00Z",
		"2026-08-25T09:00:00Z",
	}
	for _, ts := range times {
		run := &Run{Kind: KindIncremental, StartedAt: ts}
		if err := j.StartRun(run); err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
	}

	runs, err := j.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].StartedAt != times[2] || runs[1].StartedAt != times[1] {
		t.Errorf("runs not in newest-first order: %s, %s",
			runs[0].StartedAt, runs[1].StartedAt)
	}
}

func TestLastCompletedRun(t *testing.T) {
	j := openTestJournal(t)

	if run, err := j.LastCompletedRun(); err != nil || run != nil {
		t.Fatalf("LastCompletedRun on empty journal = %v, %v, expected nil, nil", run, err)
	}

	completed := &Run{Kind: KindFull, StartedAt: "2026-08-24T09:00:00Z"}
	if err := j.StartRun(completed); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	completed.CompletedAt = "2026-08-24T09:10:00Z"
	completed.Status = RunStatusCompleted
	if err := j.FinishRun(completed); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	// A newer run that is still running must not be returned
	running := &Run{Kind: KindFull, StartedAt: "2026-08-25T09:00:00Z"}
	if err := j.StartRun(running); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	got, err := j.LastCompletedRun()
	if err != nil {
		t.Fatalf("LastCompletedRun failed: %v", err)
	}
	if got == nil || got.ID != completed.ID {
		t.Errorf("LastCompletedRun = %v, expected run %s", got, completed.ID)
	}
}

func TestBandScanBatch(t *testing.T) {
	j := openTestJournal(t)

	run := &Run{Kind: KindFull, StartedAt: "2026-08-25T10:00:00Z"}
	if err := j.StartRun(run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	batch := []*BandScan{
		{
			RunID:            run.ID,
			BandName:         "Pink Floyd",
			FolderPath:       "/music/Pink Floyd",
			LocalAlbums:      14,
			MissingAlbums:    1,
			Tracks:           130,
			StructureType:    "enhanced",
			ConsistencyScore: 95,
			DurationMS:       420,
		},
		{
			RunID:    run.ID,
			BandName: "Rush",
			Cached:   true,
		},
		{
			RunID:    run.ID,
			BandName: "Yes",
			Error:    "permission denied",
		},
	}
	if err := j.InsertBandScanBatch(batch); err != nil {
		t.Fatalf("InsertBandScanBatch failed: %v", err)
	}

	scans, err := j.BandScans(run.ID)
	if err != nil {
		t.Fatalf("BandScans failed: %v", err)
	}
	if len(scans) != 3 {
		t.Fatalf("expected 3 band scans, got %d", len(scans))
	}

	// Ordered by band name
	if scans[0].BandName != "Pink Floyd" || scans[1].BandName != "Rush" || scans[2].BandName != "Yes" {
		t.Errorf("band scans out of order: %s, %s, %s",
			scans[0].BandName, scans[1].BandName, scans[2].BandName)
	}

	if scans[0].LocalAlbums != 14 || scans[0].StructureType != "enhanced" {
		t.Errorf("Pink Floyd scan = %+v, expected 14 local albums, enhanced", scans[0])
	}
	if !scans[1].Cached {
		t.Error("Rush scan should be cached")
	}
	if scans[2].Error != "permission denied" {
		t.Errorf("Yes scan error = %q, expected %q", scans[2].Error, "permission denied")
	}
}

func TestBandScanBatchUpsert(t *testing.T) {
	j := openTestJournal(t)

	run := &Run{Kind: KindIncremental, StartedAt: "2026-08-25T10:00:00Z"}
	if err := j.StartRun(run); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}

	first := []*BandScan{{RunID: run.ID, BandName: "Opeth", LocalAlbums: 3}}
	if err := j.InsertBandScanBatch(first); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}

	second := []*BandScan{{RunID: run.ID, BandName: "Opeth", LocalAlbums: 13}}
	if err := j.InsertBandScanBatch(second); err != nil {
		t.Fatalf("second batch failed: %v", err)
	}

	scans, err := j.BandScans(run.ID)
	if err != nil {
		t.Fatalf("BandScans failed: %v", err)
	}
	if len(scans) != 1 {
		t.Fatalf("expected 1 band scan after upsert, got %d", len(scans))
	}
	if scans[0].LocalAlbums != 13 {
		t.Errorf("LocalAlbums = %d, expected 13 after upsert", scans[0].LocalAlbums)
	}
}

func TestEmptyBatchIsNoop(t *testing.T) {
	j := openTestJournal(t)

	if err := j.InsertBandScanBatch(nil); err != nil {
		t.Errorf("empty batch returned error: %v", err)
	}
}
