package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/util"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s := New(&Config{
		Root:        root,
		LockTimeout: 2 * time.Second,
		CacheTTL:    time.Hour,
	})
	return s, root
}

func mkBandDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	return dir
}

func testBand(name string) *model.Band {
	b := model.NewBand(name)
	b.Albums = []model.Album{
		{AlbumName: "The Wall", Year: "1979", Type: model.TypeAlbum, FolderPath: "1979 - The Wall"},
	}
	b.Normalize()
	return b
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s, root := newTestStore(t)
	dir := mkBandDir(t, root, "Pink Floyd")
	ctx := context.Background()

	res, err := s.SaveBand(ctx, "Pink Floyd", testBand("Pink Floyd"), SaveOptions{PreserveAnalyze: true, CreateMissing: true})
	if err != nil {
		t.Fatalf("SaveBand: %v", err)
	}
	if !res.Created {
		t.Error("expected Created on first save")
	}
	if !util.FileExists(MetadataPath(dir)) {
		t.Fatal("metadata file not written")
	}

	loaded, err := s.LoadBand(ctx, "Pink Floyd")
	if err != nil {
		t.Fatalf("LoadBand: %v", err)
	}
	if loaded.BandName != "Pink Floyd" {
		t.Errorf("BandName = %q", loaded.BandName)
	}
	if loaded.AlbumsCount != 1 || loaded.LocalAlbumsCount != 1 {
		t.Errorf("counts = %d/%d", loaded.AlbumsCount, loaded.LocalAlbumsCount)
	}
	if loaded.SchemaVersion != model.CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d", loaded.SchemaVersion)
	}
	if loaded.LastUpdated == "" {
		t.Error("LastUpdated not stamped")
	}
}

func TestSaveNoBandFolder(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.SaveBand(context.Background(), "Ghost", testBand("Ghost"), SaveOptions{CreateMissing: true})
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("error = %v, expected ErrNotFound", err)
	}
}

func TestSavePreservesAnalyze(t *testing.T) {
	s, root := newTestStore(t)
	mkBandDir(t, root, "Pink Floyd")
	ctx := context.Background()

	first := testBand("Pink Floyd")
	first.Analyze = &model.BandAnalysis{Rate: 9, Review: "essential"}
	if _, err := s.SaveBand(ctx, "Pink Floyd", first, SaveOptions{PreserveAnalyze: true, CreateMissing: true}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// second save omits the analysis entirely
	second := testBand("Pink Floyd")
	second.Genres = []string{"Progressive Rock"}
	if _, err := s.SaveBand(ctx, "Pink Floyd", second, SaveOptions{PreserveAnalyze: true}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := s.LoadBand(ctx, "Pink Floyd")
	if err != nil {
		t.Fatalf("LoadBand: %v", err)
	}
	if loaded.Analyze == nil || loaded.Analyze.Rate != 9 {
		t.Errorf("analysis not preserved: %+v", loaded.Analyze)
	}
	if len(loaded.Genres) != 1 || loaded.Genres[0] != "Progressive Rock" {
		t.Errorf("Genres = %v", loaded.Genres)
	}

	// explicit opt-out drops it
	third := testBand("Pink Floyd")
	if _, err := s.SaveBand(ctx, "Pink Floyd", third, SaveOptions{PreserveAnalyze: false}); err != nil {
		t.Fatalf("third save: %v", err)
	}
	loaded, err = s.LoadBand(ctx, "Pink Floyd")
	if err != nil {
		t.Fatalf("LoadBand: %v", err)
	}
	if loaded.Analyze != nil {
		t.Errorf("analysis kept despite PreserveAnalyze=false: %+v", loaded.Analyze)
	}
}

func TestSaveCreatesBackup(t *testing.T) {
	s, root := newTestStore(t)
	dir := mkBandDir(t, root, "Opeth")
	ctx := context.Background()
	path := MetadataPath(dir)

	if _, err := s.SaveBand(ctx, "Opeth", testBand("Opeth"), SaveOptions{CreateMissing: true}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if util.FileExists(path + BackupSuffix) {
		t.Error("backup exists after first save")
	}
	firstContent, _ := os.ReadFile(path)

	second := testBand("Opeth")
	second.Origin = "Stockholm, Sweden"
	if _, err := s.SaveBand(ctx, "Opeth", second, SaveOptions{}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	backup, err := os.ReadFile(path + BackupSuffix)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backup) != string(firstContent) {
		t.Error("backup does not hold the previous version")
	}
	if util.FileExists(path + TempSuffix) {
		t.Error("temporary file left behind")
	}
}

func TestRollback(t *testing.T) {
	s, root := newTestStore(t)
	mkBandDir(t, root, "Opeth")
	ctx := context.Background()

	if _, err := s.SaveBand(ctx, "Opeth", testBand("Opeth"), SaveOptions{CreateMissing: true}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	second := testBand("Opeth")
	second.Origin = "Stockholm, Sweden"
	if _, err := s.SaveBand(ctx, "Opeth", second, SaveOptions{}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	restored, err := s.Rollback(ctx, "Opeth")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if restored.Origin != "" {
		t.Errorf("Origin = %q after rollback, expected empty", restored.Origin)
	}

	loaded, err := s.LoadBand(ctx, "Opeth")
	if err != nil {
		t.Fatalf("LoadBand: %v", err)
	}
	if loaded.Origin != "" {
		t.Errorf("rollback not persisted, Origin = %q", loaded.Origin)
	}
}

func TestRollbackWithoutBackup(t *testing.T) {
	s, root := newTestStore(t)
	mkBandDir(t, root, "Opeth")

	_, err := s.Rollback(context.Background(), "Opeth")
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("error = %v, expected ErrNotFound", err)
	}
}

func TestLoadCorruptFallsBackToBackup(t *testing.T) {
	s, root := newTestStore(t)
	dir := mkBandDir(t, root, "Opeth")
	ctx := context.Background()
	path := MetadataPath(dir)

	if _, err := s.SaveBand(ctx, "Opeth", testBand("Opeth"), SaveOptions{CreateMissing: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	good, _ := os.ReadFile(path)
	if err := os.WriteFile(path+BackupSuffix, good, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}
	s.cache.Clear()

	loaded, err := s.LoadBand(ctx, "Opeth")
	if err != nil {
		t.Fatalf("LoadBand with backup: %v", err)
	}
	if loaded.BandName != "Opeth" {
		t.Errorf("BandName = %q", loaded.BandName)
	}
}

func TestLoadBothCorrupt(t *testing.T) {
	s, root := newTestStore(t)
	dir := mkBandDir(t, root, "Opeth")
	path := MetadataPath(dir)

	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+BackupSuffix, []byte("also bad"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadBand(context.Background(), "Opeth")
	if !errors.Is(err, util.ErrCorrupt) {
		t.Errorf("error = %v, expected ErrCorrupt", err)
	}
	// both files stay untouched for manual recovery
	data, _ := os.ReadFile(path)
	if string(data) != "{truncated" {
		t.Error("corrupt file was modified")
	}
}

func TestLoadMigratesLegacySchema(t *testing.T) {
	s, root := newTestStore(t)
	dir := mkBandDir(t, root, "Pink Floyd")
	path := MetadataPath(dir)

	legacy := map[string]any{
		"band_name":      "Pink Floyd",
		"schema_version": 1,
		"albums": []map[string]any{
			{"album_name": "The Wall", "year": "1979", "missing": false, "folder_path": "1979 - The Wall"},
			{"album_name": "The Final Cut", "year": "1983", "missing": true},
		},
	}
	data, _ := json.Marshal(legacy)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadBand(context.Background(), "Pink Floyd")
	if err != nil {
		t.Fatalf("LoadBand: %v", err)
	}
	if len(loaded.Albums) != 1 || len(loaded.AlbumsMissing) != 1 {
		t.Fatalf("split wrong: %d local, %d missing", len(loaded.Albums), len(loaded.AlbumsMissing))
	}
	if loaded.AlbumsMissing[0].AlbumName != "The Final Cut" {
		t.Errorf("AlbumsMissing[0] = %q", loaded.AlbumsMissing[0].AlbumName)
	}
	if loaded.SchemaVersion != model.CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d", loaded.SchemaVersion)
	}

	// migration is in-memory only until the next save
	onDisk, _ := os.ReadFile(path)
	var raw map[string]any
	json.Unmarshal(onDisk, &raw)
	if raw["schema_version"].(float64) != 1 {
		t.Error("load rewrote the file")
	}
}

func TestSaveValidationFailureWritesNothing(t *testing.T) {
	s, root := newTestStore(t)
	dir := mkBandDir(t, root, "Opeth")
	ctx := context.Background()
	path := MetadataPath(dir)

	if _, err := s.SaveBand(ctx, "Opeth", testBand("Opeth"), SaveOptions{CreateMissing: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, _ := os.ReadFile(path)

	bad := testBand("Opeth")
	bad.Albums[0].Year = "19799"
	_, err := s.SaveBand(ctx, "Opeth", bad, SaveOptions{})
	if !errors.Is(err, util.ErrValidation) {
		t.Fatalf("error = %v, expected ErrValidation", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("failed save modified the file")
	}
}

func TestSaveLockTimeout(t *testing.T) {
	root := t.TempDir()
	s := New(&Config{Root: root, LockTimeout: 50 * time.Millisecond})
	dir := mkBandDir(t, root, "Opeth")
	ctx := context.Background()

	release, err := s.locks.Acquire(ctx, MetadataPath(dir), time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = s.SaveBand(ctx, "Opeth", testBand("Opeth"), SaveOptions{CreateMissing: true})
	if !errors.Is(err, util.ErrLock) {
		t.Errorf("error = %v, expected ErrLock", err)
	}
}

func TestSaveAnalysisFiltersMissingRefs(t *testing.T) {
	s, root := newTestStore(t)
	mkBandDir(t, root, "Pink Floyd")
	ctx := context.Background()

	band := testBand("Pink Floyd")
	band.AlbumsMissing = []model.Album{{AlbumName: "The Final Cut", Year: "1983", Type: model.TypeAlbum}}
	band.Normalize()
	if _, err := s.SaveBand(ctx, "Pink Floyd", band, SaveOptions{CreateMissing: true}); err != nil {
		t.Fatalf("save: %v", err)
	}

	analysis := &model.BandAnalysis{
		Rate: 9,
		Albums: []model.AlbumAnalysis{
			{AlbumName: "The Wall", Rate: 10},
			{AlbumName: "The Final Cut", Rate: 7},
		},
	}
	if _, err := s.SaveAnalysis(ctx, "Pink Floyd", analysis, false); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	loaded, _ := s.LoadBand(ctx, "Pink Floyd")
	if len(loaded.Analyze.Albums) != 1 || loaded.Analyze.Albums[0].AlbumName != "The Wall" {
		t.Errorf("Analyze.Albums = %+v, expected missing reference dropped", loaded.Analyze.Albums)
	}

	if _, err := s.SaveAnalysis(ctx, "Pink Floyd", analysis, true); err != nil {
		t.Fatalf("SaveAnalysis keep missing: %v", err)
	}
	loaded, _ = s.LoadBand(ctx, "Pink Floyd")
	if len(loaded.Analyze.Albums) != 2 {
		t.Errorf("Analyze.Albums = %+v, expected both kept", loaded.Analyze.Albums)
	}
}

func TestBandDirRejectsTraversal(t *testing.T) {
	s, _ := newTestStore(t)

	for _, name := range []string{"", "..", ".", "a/b", `a\b`} {
		if _, err := s.BandDir(name); !errors.Is(err, util.ErrValidation) {
			t.Errorf("BandDir(%q) error = %v, expected ErrValidation", name, err)
		}
	}
	if _, err := s.BandDir("Sigur Rós"); err != nil {
		t.Errorf("BandDir(unicode) error = %v", err)
	}
}
