package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/reconcile"
	"github.com/franz/music-indexer/internal/util"
	"github.com/franz/music-indexer/internal/validate"
)

const (
	// MetadataFileName is the per-band metadata document.
	MetadataFileName = ".band_metadata.json"
	// IndexFileName is the collection index at the collection root.
	IndexFileName = ".collection_index.json"
	// BackupSuffix marks the previous version of a persisted file.
	BackupSuffix = ".bak"
	// TempSuffix marks in-flight writes awaiting their atomic rename.
	TempSuffix = ".tmp"
)

// Store reads and writes the persisted collection state: per-band
// metadata files, their backups and the collection index. All writes
// go through a temporary file and an atomic rename under the owning
// path lock.
type Store struct {
	root        string
	locks       *LockRegistry
	cache       *Cache
	lockTimeout time.Duration
	retry       *util.RetryConfig
}

// Config holds store configuration.
type Config struct {
	Root        string
	LockTimeout time.Duration
	CacheTTL    time.Duration
}

// New creates a Store rooted at cfg.Root. Network-mounted roots get a
// more patient retry profile for renames and removals.
func New(cfg *Config) *Store {
	timeout := cfg.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retry := util.DefaultRetryConfig()
	if info, err := util.DetectNetworkFilesystem(cfg.Root); err == nil && info.IsNetwork {
		util.DebugLog("Collection root is on a %s mount, using NAS retry profile", info.Protocol)
		retry = util.NASRetryConfig()
	}
	return &Store{
		root:        cfg.Root,
		locks:       NewLockRegistry(),
		cache:       NewCache(cfg.CacheTTL),
		lockTimeout: timeout,
		retry:       retry,
	}
}

// Root returns the collection root path.
func (s *Store) Root() string {
	return s.root
}

// Close drops cached state. Pending writers finish on their own locks.
func (s *Store) Close() {
	hits, misses := s.cache.Stats()
	if hits+misses > 0 {
		util.DebugLog("Metadata cache: %d hits, %d misses", hits, misses)
	}
	s.cache.Clear()
}

// BandDir resolves the folder for a band name, rejecting names that
// would escape the collection root.
func (s *Store) BandDir(bandName string) (string, error) {
	name := strings.TrimSpace(bandName)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid band name %q", util.ErrValidation, bandName)
	}
	return filepath.Join(s.root, name), nil
}

// MetadataPath returns the metadata file path for a band folder.
func MetadataPath(bandDir string) string {
	return filepath.Join(bandDir, MetadataFileName)
}

// HasMetadata reports whether a band folder carries a metadata file.
func HasMetadata(bandDir string) bool {
	return util.FileExists(MetadataPath(bandDir))
}

// MetadataMTime returns the metadata file's mtime, or the zero time.
func MetadataMTime(bandDir string) time.Time {
	return util.FileModTime(MetadataPath(bandDir))
}

// LoadBand reads a band's metadata document. The cache is consulted
// first; corrupt files fall back to their backup; legacy schemas are
// migrated in memory. A band without a metadata file yields ErrNotFound.
func (s *Store) LoadBand(ctx context.Context, bandName string) (*model.Band, error) {
	dir, err := s.BandDir(bandName)
	if err != nil {
		return nil, err
	}
	return s.LoadBandDir(ctx, dir)
}

// LoadBandDir is LoadBand for an already-resolved band folder.
func (s *Store) LoadBandDir(ctx context.Context, bandDir string) (*model.Band, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := MetadataPath(bandDir)
	mtime := util.FileModTime(path)

	if !mtime.IsZero() {
		if band, ok := s.cache.Get(path, mtime); ok {
			return band, nil
		}
	}

	band, err := readBandFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(band); err != nil {
		return nil, err
	}
	band.Normalize()
	s.cache.Put(path, band, mtime)
	return band, nil
}

// readBandFile parses a metadata file, trying the backup when the
// primary is corrupt. Both corrupt is ErrCorrupt; absent is ErrNotFound.
func readBandFile(path string) (*model.Band, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", util.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", util.ErrStorage, path, err)
	}

	var band model.Band
	jsonErr := json.Unmarshal(data, &band)
	if jsonErr == nil {
		return &band, nil
	}
	util.WarnLog("Corrupt metadata %s: %v, trying backup", path, jsonErr)

	backup, bakErr := os.ReadFile(path + BackupSuffix)
	if bakErr != nil {
		return nil, fmt.Errorf("%w: %s and its backup are unreadable", util.ErrCorrupt, path)
	}
	var fromBak model.Band
	if err := json.Unmarshal(backup, &fromBak); err != nil {
		return nil, fmt.Errorf("%w: %s and its backup are unreadable", util.ErrCorrupt, path)
	}
	util.WarnLog("Recovered %s from backup", path)
	return &fromBak, nil
}

// SaveOptions controls the merge step of SaveBand.
type SaveOptions struct {
	// PreserveAnalyze keeps the stored analysis when the incoming
	// document omits it.
	PreserveAnalyze bool
	// CreateMissing allows creating the metadata file when none
	// exists yet. When false an absent band is ErrNotFound.
	CreateMissing bool
}

// SaveResult reports the outcome of a completed save.
type SaveResult struct {
	Band    *model.Band
	Created bool
	Report  *validate.Report
}

// SaveBand runs the full write protocol for caller-provided metadata:
// lock, read current state (backup fallback), migrate, merge, validate,
// atomic write, unlock. The incoming document replaces the stored one;
// analysis is preserved per opts.
func (s *Store) SaveBand(ctx context.Context, bandName string, incoming *model.Band, opts SaveOptions) (*SaveResult, error) {
	return s.Update(ctx, bandName, opts.CreateMissing, func(existing *model.Band) (*model.Band, error) {
		merged := incoming.Clone()
		if merged == nil {
			return nil, fmt.Errorf("%w: metadata payload is not serializable", util.ErrValidation)
		}
		merged.BandName = bandName
		if existing != nil {
			if opts.PreserveAnalyze && merged.Analyze == nil {
				merged.Analyze = existing.Analyze
			}
			if merged.FolderStructure == nil {
				merged.FolderStructure = existing.FolderStructure
			}
			if len(merged.Gallery) == 0 {
				merged.Gallery = existing.Gallery
			}
		}
		return merged, nil
	})
}

// SaveAnalysis attaches reviews and ratings to a band. References to
// missing albums are dropped unless analyzeMissing is set. A band
// folder without metadata gets a fresh document, first-save style.
func (s *Store) SaveAnalysis(ctx context.Context, bandName string, analysis *model.BandAnalysis, analyzeMissing bool) (*SaveResult, error) {
	return s.Update(ctx, bandName, true, func(existing *model.Band) (*model.Band, error) {
		band := existing
		if band == nil {
			band = model.NewBand(bandName)
		}

		an := &model.BandAnalysis{
			Review:       analysis.Review,
			Rate:         analysis.Rate,
			SimilarBands: append([]string{}, analysis.SimilarBands...),
			Albums:       []model.AlbumAnalysis{},
		}

		missingKeys := map[string]bool{}
		for _, a := range band.AlbumsMissing {
			missingKeys[reconcile.NormalizeName(a.AlbumName)] = true
		}
		skipped := 0
		for _, aa := range analysis.Albums {
			if !analyzeMissing && missingKeys[reconcile.NormalizeName(aa.AlbumName)] {
				skipped++
				continue
			}
			an.Albums = append(an.Albums, aa)
		}
		if skipped > 0 {
			util.DebugLog("Dropped %d album analyses referencing missing albums of %q", skipped, bandName)
		}

		band.Analyze = an
		return band, nil
	})
}

// Update is the locked read-modify-write primitive under SaveBand and
// the scanner. mutate receives the current document (nil when absent
// and create is allowed) and returns the document to persist.
// Returning a nil document skips the write.
func (s *Store) Update(ctx context.Context, bandName string, create bool, mutate func(existing *model.Band) (*model.Band, error)) (*SaveResult, error) {
	dir, err := s.BandDir(bandName)
	if err != nil {
		return nil, err
	}
	if !util.DirExists(dir) {
		return nil, fmt.Errorf("%w: band folder %s", util.ErrNotFound, dir)
	}
	path := MetadataPath(dir)

	release, err := s.locks.Acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := readBandFile(path)
	created := false
	switch {
	case err == nil:
		if _, err := Migrate(existing); err != nil {
			return nil, err
		}
		existing.Normalize()
	case errors.Is(err, util.ErrNotFound):
		if !create {
			return nil, fmt.Errorf("%w: no metadata for band %q", util.ErrNotFound, bandName)
		}
		existing = nil
		created = true
	default:
		return nil, err
	}

	updated, err := mutate(existing)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return &SaveResult{Band: existing}, nil
	}

	updated.SchemaVersion = model.CurrentSchemaVersion
	updated.Normalize()
	updated.Touch()

	report := validate.Band(updated)
	if err := report.Err(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.writeFile(path, updated); err != nil {
		return nil, err
	}
	s.cache.Put(path, updated, util.FileModTime(path))

	return &SaveResult{Band: updated, Created: created, Report: report}, nil
}

// writeFile persists doc at path atomically: marshal to a temporary
// file, fsync, preserve the current file as backup, rename into place.
func (s *Store) writeFile(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling %s: %v", util.ErrWrite, path, err)
	}
	data = append(data, '\n')

	tmp := path + TempSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", util.ErrWrite, tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		util.RetryableRemove(tmp, s.retry)
		return fmt.Errorf("%w: writing %s: %v", util.ErrWrite, tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		util.RetryableRemove(tmp, s.retry)
		return fmt.Errorf("%w: syncing %s: %v", util.ErrWrite, tmp, err)
	}
	if err := f.Close(); err != nil {
		util.RetryableRemove(tmp, s.retry)
		return fmt.Errorf("%w: closing %s: %v", util.ErrWrite, tmp, err)
	}

	if util.FileExists(path) {
		if err := util.CopyFile(path, path+BackupSuffix); err != nil {
			util.RetryableRemove(tmp, s.retry)
			return fmt.Errorf("%w: backing up %s: %v", util.ErrWrite, path, err)
		}
	}

	if err := util.RetryableRename(tmp, path, s.retry); err != nil {
		util.RetryableRemove(tmp, s.retry)
		return fmt.Errorf("%w: replacing %s: %v", util.ErrWrite, path, err)
	}
	return nil
}

// Rollback restores a band's metadata from its backup file. The
// current file becomes the new backup, so rollback is reversible.
func (s *Store) Rollback(ctx context.Context, bandName string) (*model.Band, error) {
	dir, err := s.BandDir(bandName)
	if err != nil {
		return nil, err
	}
	path := MetadataPath(dir)

	release, err := s.locks.Acquire(ctx, path, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	backup, err := os.ReadFile(path + BackupSuffix)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no backup for band %q", util.ErrNotFound, bandName)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading backup for %q: %v", util.ErrStorage, bandName, err)
	}

	var band model.Band
	if err := json.Unmarshal(backup, &band); err != nil {
		return nil, fmt.Errorf("%w: backup for %q is unreadable", util.ErrCorrupt, bandName)
	}
	if _, err := Migrate(&band); err != nil {
		return nil, err
	}
	band.Normalize()

	if err := s.writeFile(path, &band); err != nil {
		return nil, err
	}
	s.cache.Invalidate(path)
	return &band, nil
}
