package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/music-indexer/internal/index"
	"github.com/franz/music-indexer/internal/journal"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/parse"
	"github.com/franz/music-indexer/internal/reconcile"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/structure"
	"github.com/franz/music-indexer/internal/util"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// progressEventThreshold is the band count above which periodic
// progress callbacks are emitted.
const progressEventThreshold = 50

// ProgressFunc receives periodic progress while a scan runs.
type ProgressFunc func(scanned, total int, etaSeconds float64)

// Scanner walks the collection root, reconciles every band folder with
// its stored metadata and rebuilds the collection index.
type Scanner struct {
	store       *storage.Store
	journal     *journal.Journal
	workers     int
	batchSize   int
	exclude     map[string]bool
	progress    ProgressFunc
	showBar     bool
	maxCacheAge time.Duration
	noCache     bool
}

// Config holds scanner configuration.
type Config struct {
	Store     *storage.Store
	Journal   *journal.Journal // optional scan history
	Workers   int
	BatchSize int
	Exclude   []string // folder names beyond the built-in exclusions
	Progress  ProgressFunc
	ShowBar   bool // render a progress bar on stderr when it is a TTY
	// MaxCacheAge bounds how old the previous scan may be before an
	// incremental scan is promoted to a full one. Zero means no bound.
	MaxCacheAge time.Duration
	// NoCache disables incremental scanning entirely.
	NoCache bool
}

// New creates a new Scanner.
func New(cfg *Config) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	exclude := make(map[string]bool)
	for _, name := range DefaultExcludedFolders {
		exclude[strings.ToLower(name)] = true
	}
	for _, name := range cfg.Exclude {
		exclude[strings.ToLower(name)] = true
	}

	return &Scanner{
		store:       cfg.Store,
		journal:     cfg.Journal,
		workers:     cfg.Workers,
		batchSize:   cfg.BatchSize,
		exclude:     exclude,
		progress:    cfg.Progress,
		showBar:     cfg.ShowBar,
		maxCacheAge: cfg.MaxCacheAge,
		noCache:     cfg.NoCache,
	}
}

// Options select the scan mode.
type Options struct {
	// Force rescans every band and rewrites metadata even when nothing
	// changed.
	Force bool
	// Full rescans every band; writes still happen only on change.
	Full bool
	// DryRun observes and reports without writing any file.
	DryRun bool
	// Only restricts re-scanning to the named bands; other indexed
	// bands carry their index entries forward untouched. Ignored on
	// full scans.
	Only []string
	// Progress overrides the scanner's progress callback for this run.
	Progress ProgressFunc
}

// BandResult is the outcome of scanning one band.
type BandResult struct {
	BandName         string            `json:"band_name"`
	FolderPath       string            `json:"folder_path"`
	LocalAlbums      int               `json:"local_albums"`
	MissingAlbums    int               `json:"missing_albums"`
	Tracks           int               `json:"tracks"`
	StructureType    string            `json:"structure_type,omitempty"`
	ConsistencyScore int               `json:"consistency_score,omitempty"`
	Cached           bool              `json:"cached,omitempty"`
	Changed          bool              `json:"changed,omitempty"`
	DurationMS       int64             `json:"duration_ms"`
	MissingPaths     map[string]string `json:"missing_paths,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Result is the outcome of one collection scan.
type Result struct {
	ScanID       string       `json:"scan_id"`
	Kind         string       `json:"kind"`
	StartedAt    string       `json:"started_at"`
	CompletedAt  string       `json:"completed_at"`
	DurationMS   int64        `json:"duration_ms"`
	BandsTotal   int          `json:"bands_total"`
	BandsScanned int          `json:"bands_scanned"`
	BandsCached  int          `json:"bands_cached"`
	BandsFailed  int          `json:"bands_failed"`
	BandsChanged int          `json:"bands_changed"`
	AlbumsSeen   int          `json:"albums_seen"`
	TracksSeen   int          `json:"tracks_seen"`
	Bands        []BandResult `json:"bands"`
	Errors       []string     `json:"errors,omitempty"`
	DryRun       bool         `json:"dry_run,omitempty"`
}

// bandOutcome carries one band's result plus its collection index
// entry through the worker pool.
type bandOutcome struct {
	res     BandResult
	entry   *model.BandIndexEntry
	invalid bool // candidate folder held no album folders
}

// Scan runs a collection scan. The scan is incremental when the index
// carries a previous scan time and no full scan was requested: only
// bands that are new or changed since then are re-read from disk.
func (s *Scanner) Scan(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now().UTC()
	root := s.store.Root()

	idx, err := s.store.LoadIndex(ctx)
	if err != nil {
		util.WarnLog("Collection index unreadable, forcing full scan: %v", err)
		idx = model.NewCollectionIndex()
		opts.Full = true
	}

	full := opts.Force || opts.Full || s.noCache || idx.LastScan == ""
	lastScan := model.ParseTimestamp(idx.LastScan)
	if !full && s.maxCacheAge > 0 && time.Since(lastScan) > s.maxCacheAge {
		util.InfoLog("Previous scan is older than %s, promoting to full scan", s.maxCacheAge)
		full = true
	}
	kind := journal.KindIncremental
	if full {
		kind = journal.KindFull
	}
	util.InfoLog("Starting %s scan of %s", kind, root)

	candidates, err := DiscoverBands(root, s.exclude)
	if err != nil {
		return nil, err
	}
	util.InfoLog("Found %d candidate band folders", len(candidates))

	result := &Result{
		ScanID:    uuid.NewString(),
		Kind:      kind,
		StartedAt: model.Timestamp(started),
		DryRun:    opts.DryRun,
	}

	var journalRun *journal.Run
	if s.journal != nil && !opts.DryRun {
		journalRun = &journal.Run{ID: result.ScanID, Kind: kind, StartedAt: result.StartedAt}
		if err := s.journal.StartRun(journalRun); err != nil {
			util.WarnLog("Scan journal unavailable: %v", err)
			journalRun = nil
		}
	}

	// Counters for progress reporting (atomic for thread-safety)
	var bandsScanned atomic.Int64
	var bandsCached atomic.Int64
	var bandsFailed atomic.Int64
	var bandsInvalid atomic.Int64
	var bandsChanged atomic.Int64
	var albumsSeen atomic.Int64
	var tracksSeen atomic.Int64

	progressCtx, cancelProgress := context.WithCancel(context.Background())
	defer cancelProgress()

	var bar *progressbar.ProgressBar
	if s.showBar && util.StderrIsTerminal() && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(candidates),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	etaSeed := s.etaSeed()
	total := len(candidates)
	progress := s.progress
	if opts.Progress != nil {
		progress = opts.Progress
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				done := int(bandsScanned.Load() + bandsCached.Load() +
					bandsFailed.Load() + bandsInvalid.Load())

				if bar != nil {
					bar.Describe(fmt.Sprintf("Scanning | %d/%d bands | %d albums",
						done, total, albumsSeen.Load()))
					bar.Set(done)
				}
				if progress != nil && total > progressEventThreshold {
					progress(done, total, etaSeconds(done, total, started, etaSeed))
				}
			}
		}
	}()

	// Collector goroutine: the single writer of result fields, index
	// entries and journal batches.
	results := make(chan bandOutcome, s.workers)
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)

	entries := make([]model.BandIndexEntry, 0, len(candidates))
	go func() {
		defer collectorWg.Done()

		batch := make([]*journal.BandScan, 0, s.batchSize)
		flush := func() {
			if len(batch) == 0 || journalRun == nil {
				return
			}
			if err := s.journal.InsertBandScanBatch(batch); err != nil {
				util.WarnLog("Failed to record band scans: %v", err)
			}
			batch = batch[:0]
		}

		for out := range results {
			if out.invalid {
				continue
			}
			result.Bands = append(result.Bands, out.res)
			if out.entry != nil {
				entries = append(entries, *out.entry)
			}
			if journalRun != nil {
				batch = append(batch, bandScanRow(result.ScanID, out.res))
				if len(batch) >= s.batchSize {
					flush()
				}
			}
		}
		flush()
	}()

	// Worker pool over candidate band folders
	work := make(chan BandFolder)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for band := range work {
				select {
				case <-ctx.Done():
					return
				default:
				}

				out := s.scanBand(ctx, band, idx, lastScan, full, opts)
				switch {
				case out.invalid:
					bandsInvalid.Add(1)
				case out.res.Error != "":
					bandsFailed.Add(1)
				case out.res.Cached:
					bandsCached.Add(1)
				default:
					bandsScanned.Add(1)
					albumsSeen.Add(int64(out.res.LocalAlbums))
					tracksSeen.Add(int64(out.res.Tracks))
					if out.res.Changed {
						bandsChanged.Add(1)
					}
				}
				results <- out
			}
		}()
	}

	var only map[string]bool
	if !full && len(opts.Only) > 0 {
		only = make(map[string]bool, len(opts.Only))
		for _, name := range opts.Only {
			only[strings.ToLower(name)] = true
		}
	}

feed:
	for _, band := range candidates {
		if only != nil && !only[strings.ToLower(band.Name)] {
			if out, ok := carriedOutcome(band, idx); ok {
				bandsCached.Add(1)
				select {
				case results <- out:
					continue
				case <-ctx.Done():
					break feed
				}
			}
		}
		select {
		case work <- band:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	close(results)
	collectorWg.Wait()
	cancelProgress()

	if bar != nil {
		bar.Finish()
	}

	completed := time.Now().UTC()
	result.CompletedAt = model.Timestamp(completed)
	result.DurationMS = completed.Sub(started).Milliseconds()
	result.BandsScanned = int(bandsScanned.Load())
	result.BandsCached = int(bandsCached.Load())
	result.BandsFailed = int(bandsFailed.Load())
	result.BandsChanged = int(bandsChanged.Load())
	result.BandsTotal = result.BandsScanned + result.BandsCached + result.BandsFailed
	result.AlbumsSeen = int(albumsSeen.Load())
	result.TracksSeen = int(tracksSeen.Load())

	sort.Slice(result.Bands, func(i, j int) bool {
		return result.Bands[i].BandName < result.Bands[j].BandName
	})
	for _, br := range result.Bands {
		if br.Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", br.BandName, br.Error))
		}
	}

	if err := ctx.Err(); err != nil {
		s.finishRun(journalRun, result, journal.RunStatusCancelled, err.Error())
		util.WarnLog("Scan cancelled after %d of %d bands", result.BandsScanned, result.BandsTotal)
		return result, err
	}

	if !opts.DryRun {
		// The scan time is stamped at completion with nanosecond
		// precision: metadata files written during this scan must not
		// look newer than it on the next incremental pass.
		newIdx := index.Rebuild(entries, completed.Format(time.RFC3339Nano))
		newIdx.Insights = idx.Insights
		if index.SameContent(idx, newIdx) {
			util.DebugLog("Collection index unchanged, skipping write")
		} else if err := s.store.SaveIndex(ctx, newIdx); err != nil {
			util.ErrorLog("Failed to write collection index: %v", err)
			result.Errors = append(result.Errors, fmt.Sprintf("collection index: %v", err))
		}
	}

	status := journal.RunStatusCompleted
	if result.BandsFailed > 0 && result.BandsScanned == 0 {
		status = journal.RunStatusFailed
	}
	s.finishRun(journalRun, result, status, "")

	util.SuccessLog("Scan complete: %d bands scanned, %d cached, %d failed, %d albums seen",
		result.BandsScanned, result.BandsCached, result.BandsFailed, result.AlbumsSeen)
	return result, nil
}

// carriedOutcome reuses a band's index entry without touching its
// folder, for bands excluded from a restricted scan.
func carriedOutcome(band BandFolder, idx *model.CollectionIndex) (bandOutcome, bool) {
	old := idx.FindBand(band.Name)
	if old == nil {
		return bandOutcome{}, false
	}
	entry := *old
	return bandOutcome{
		res: BandResult{
			BandName:      band.Name,
			FolderPath:    band.Path,
			LocalAlbums:   old.LocalAlbums,
			MissingAlbums: old.MissingAlbums,
			Cached:        true,
		},
		entry: &entry,
	}, true
}

// scanBand processes one candidate band folder end to end: incremental
// decision, album discovery, structure analysis, reconciliation with
// stored metadata and the conditional write.
func (s *Scanner) scanBand(ctx context.Context, band BandFolder, idx *model.CollectionIndex, lastScan time.Time, full bool, opts Options) bandOutcome {
	bandStart := time.Now()
	old := idx.FindBand(band.Name)

	if !full && old != nil {
		metaMTime := storage.MetadataMTime(band.Path)
		if !band.MTime.After(lastScan) && !metaMTime.After(lastScan) {
			util.DebugLog("Band %q unchanged since last scan, using cached entry", band.Name)
			entry := *old
			return bandOutcome{
				res: BandResult{
					BandName:      band.Name,
					FolderPath:    band.Path,
					LocalAlbums:   old.LocalAlbums,
					MissingAlbums: old.MissingAlbums,
					Cached:        true,
					DurationMS:    time.Since(bandStart).Milliseconds(),
				},
				entry: &entry,
			}
		}
	}

	albums, bandGallery, warnings, err := discoverAlbums(band.Path)
	if err != nil {
		return s.failBand(band, old, bandStart, warnings, err)
	}
	if len(albums) == 0 {
		util.DebugLog("No album folders in %s, skipping", band.Path)
		return bandOutcome{invalid: true}
	}

	obs := make([]structure.AlbumObservation, len(albums))
	for i, a := range albums {
		parsed, _ := parse.ParseAlbumFolder(a.Name)
		obs[i] = structure.AlbumObservation{
			FolderName: a.Name,
			ParentType: a.ParentType,
			Parsed:     parsed,
			HasMusic:   a.AccessErr == nil && a.Tracks > 0,
			TrackCount: a.Tracks,
		}
	}
	fs := structure.Analyze(obs)

	physical := make([]model.Album, 0, len(albums))
	tracksTotal := 0
	for i, a := range albums {
		album, warn := s.physicalAlbum(a, obs[i], fs.StructureType)
		if warn != "" {
			warnings = append(warnings, warn)
			util.WarnLog("Band %q: %s", band.Name, warn)
		}
		tracksTotal += a.Tracks
		physical = append(physical, album)
	}

	var rec reconcile.Result
	wrote := false
	mutate := func(existing *model.Band) (*model.Band, error) {
		doc := model.NewBand(band.Name)
		var storedAlbums []model.Album
		if existing != nil {
			doc = existing.Clone()
			storedAlbums = existing.AllAlbums()
		}
		rec = reconcile.Merge(storedAlbums, physical, fs.StructureType)

		doc.Albums = rec.Local
		doc.AlbumsMissing = rec.Missing
		doc.FolderStructure = fs
		doc.Gallery = bandGallery
		doc.Normalize()

		if existing != nil && !opts.Force && sameBand(existing, doc) {
			return nil, nil
		}
		wrote = true
		return doc, nil
	}

	var final *model.Band
	if opts.DryRun {
		stored, loadErr := s.store.LoadBandDir(ctx, band.Path)
		if loadErr != nil && !errors.Is(loadErr, util.ErrNotFound) {
			return s.failBand(band, old, bandStart, warnings, loadErr)
		}
		doc, _ := mutate(stored)
		if doc == nil {
			doc = stored
		}
		final = doc
	} else {
		saveRes, saveErr := s.store.Update(ctx, band.Name, true, mutate)
		if saveErr != nil {
			return s.failBand(band, old, bandStart, warnings, saveErr)
		}
		final = saveRes.Band
	}

	out := bandOutcome{
		res: BandResult{
			BandName:         band.Name,
			FolderPath:       band.Path,
			LocalAlbums:      final.LocalAlbumsCount,
			MissingAlbums:    final.MissingAlbumsCount,
			Tracks:           tracksTotal,
			StructureType:    string(fs.StructureType),
			ConsistencyScore: fs.ConsistencyScore,
			Changed:          wrote,
			DurationMS:       time.Since(bandStart).Milliseconds(),
			MissingPaths:     rec.MissingPaths,
			Warnings:         warnings,
		},
	}
	if !opts.DryRun {
		entry := index.Entry(final, band.Path, model.Timestamp(bandStart.UTC()))
		out.entry = &entry
	}
	return out
}

// physicalAlbum builds the Album record for one discovered folder.
// Unreadable folders become placeholders: no track count, UNKNOWN
// format and an access_error note on the compliance issues.
func (s *Scanner) physicalAlbum(a albumInfo, o structure.AlbumObservation, st model.StructureType) (model.Album, string) {
	album := model.Album{
		AlbumName:  o.Parsed.AlbumName,
		Year:       o.Parsed.Year,
		Type:       albumTypeFor(o),
		Edition:    o.Parsed.Edition,
		FolderPath: a.RelPath,
		Gallery:    a.Gallery,
	}

	in := structure.ComplianceInput{
		FolderName:    a.Name,
		RelPath:       a.RelPath,
		ParentType:    a.ParentType,
		StructureType: st,
		AlbumType:     album.Type,
		Parsed:        o.Parsed,
		HasMusic:      o.HasMusic,
	}

	if a.AccessErr != nil {
		album.PrimaryFormat = "UNKNOWN"
		in.HasMusic = true // unreadable is not known-empty
		album.Compliance = structure.ScoreCompliance(in)
		album.Compliance.Issues = append(album.Compliance.Issues,
			fmt.Sprintf("access_error: %v", a.AccessErr))
		return album, fmt.Sprintf("album folder %s unreadable: %v", a.RelPath, a.AccessErr)
	}

	album.SetTracks(a.Tracks)
	album.PrimaryFormat = a.Primary
	album.Compliance = structure.ScoreCompliance(in)
	return album, ""
}

// albumTypeFor resolves the album type: parent type folder first, then
// keywords in the album or folder name, then the track-count heuristic.
func albumTypeFor(o structure.AlbumObservation) model.AlbumType {
	if o.ParentType != "" {
		return o.ParentType
	}
	if t, ok := parse.TypeFromKeywords(o.Parsed.AlbumName); ok {
		return t
	}
	if o.FolderName != o.Parsed.AlbumName {
		if t, ok := parse.TypeFromKeywords(o.FolderName); ok {
			return t
		}
	}
	if o.Parsed.Type != "" {
		return o.Parsed.Type
	}
	if o.TrackCount > 0 {
		return parse.TypeFromTrackCount(o.TrackCount)
	}
	return model.TypeAlbum
}

// failBand logs a whole-band failure and keeps the previous index
// entry, leaving that band stale rather than dropping it.
func (s *Scanner) failBand(band BandFolder, old *model.BandIndexEntry, start time.Time, warnings []string, err error) bandOutcome {
	util.ErrorLog("Failed to scan band %q: %v", band.Name, err)
	out := bandOutcome{
		res: BandResult{
			BandName:   band.Name,
			FolderPath: band.Path,
			DurationMS: time.Since(start).Milliseconds(),
			Warnings:   warnings,
			Error:      err.Error(),
		},
	}
	if old != nil {
		entry := *old
		out.entry = &entry
	}
	return out
}

// finishRun closes the journal entry for this scan, if one was opened.
func (s *Scanner) finishRun(run *journal.Run, result *Result, status, errMsg string) {
	if run == nil {
		return
	}
	run.CompletedAt = result.CompletedAt
	run.BandsTotal = result.BandsTotal
	run.BandsScanned = result.BandsScanned
	run.BandsFailed = result.BandsFailed
	run.AlbumsSeen = result.AlbumsSeen
	run.Status = status
	run.Error = errMsg
	if err := s.journal.FinishRun(run); err != nil {
		util.WarnLog("Failed to close journal run: %v", err)
	}
}

// etaSeed estimates seconds per band from the last completed run, so
// early progress events carry a usable ETA.
func (s *Scanner) etaSeed() float64 {
	if s.journal == nil {
		return 0
	}
	run, err := s.journal.LastCompletedRun()
	if err != nil || run == nil || run.BandsScanned == 0 {
		return 0
	}
	started := model.ParseTimestamp(run.StartedAt)
	completed := model.ParseTimestamp(run.CompletedAt)
	if started.IsZero() || completed.IsZero() || !completed.After(started) {
		return 0
	}
	return completed.Sub(started).Seconds() / float64(run.BandsScanned)
}

// etaSeconds projects the remaining scan time from observed throughput,
// falling back to the seeded per-band estimate before any band is done.
func etaSeconds(done, total int, started time.Time, seed float64) float64 {
	remaining := total - done
	if remaining <= 0 {
		return 0
	}
	perBand := seed
	if done > 0 {
		perBand = time.Since(started).Seconds() / float64(done)
	}
	if perBand <= 0 {
		return 0
	}
	return perBand * float64(remaining)
}

// bandScanRow converts a band result into its journal row.
func bandScanRow(runID string, res BandResult) *journal.BandScan {
	return &journal.BandScan{
		RunID:            runID,
		BandName:         res.BandName,
		FolderPath:       res.FolderPath,
		LocalAlbums:      res.LocalAlbums,
		MissingAlbums:    res.MissingAlbums,
		Tracks:           res.Tracks,
		StructureType:    res.StructureType,
		ConsistencyScore: res.ConsistencyScore,
		DurationMS:       res.DurationMS,
		Cached:           res.Cached,
		Error:            res.Error,
	}
}

// sameBand reports whether two normalized documents carry the same
// content, ignoring the last_updated stamp.
func sameBand(a, b *model.Band) bool {
	ca, cb := a.Clone(), b.Clone()
	if ca == nil || cb == nil {
		return false
	}
	ca.LastUpdated = ""
	cb.LastUpdated = ""
	ba, err1 := json.Marshal(ca)
	bb, err2 := json.Marshal(cb)
	return err1 == nil && err2 == nil && bytes.Equal(ba, bb)
}
