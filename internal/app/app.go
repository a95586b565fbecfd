// Package app assembles the service from validated configuration. One
// App holds the component graph (store, journal, scanner, query and
// insights engines) shared by the CLI commands and the protocol server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/music-indexer/internal/index"
	"github.com/franz/music-indexer/internal/insights"
	"github.com/franz/music-indexer/internal/journal"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/query"
	"github.com/franz/music-indexer/internal/scan"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
)

// ErrRootUnusable reports a music root that passed configuration
// validation but cannot be opened on disk.
var ErrRootUnusable = errors.New("music root unusable")

// Config is the resolved service configuration. CacheDays carries the
// value the configuration layer resolved for CACHE_DURATION_DAYS;
// zero is the documented "cache disabled" setting, so no default is
// applied here.
type Config struct {
	Root             string
	CacheDays        int
	LogLevel         string
	Workers          int
	BatchSize        int
	LockTimeout      time.Duration
	OpTimeout        time.Duration
	MetadataCacheTTL time.Duration
	Exclude          []string
	ShowBar          bool
	Version          string
}

// ApplyDefaults fills unset fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 30 * time.Second
	}
	if c.MetadataCacheTTL <= 0 {
		c.MetadataCacheTTL = time.Hour
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: MUSIC_ROOT_PATH is required", util.ErrInvalidConfig)
	}
	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("%w: MUSIC_ROOT_PATH must be an absolute path, got %q", util.ErrInvalidConfig, c.Root)
	}
	if c.CacheDays < 0 {
		return fmt.Errorf("%w: CACHE_DURATION_DAYS must be >= 0, got %d", util.ErrInvalidConfig, c.CacheDays)
	}
	if _, err := util.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	return nil
}

// App is the assembled service.
type App struct {
	Config   *Config
	Store    *storage.Store
	Journal  *journal.Journal // nil when the journal could not open
	Scanner  *scan.Scanner
	Query    *query.Engine
	Insights *insights.Engine
}

// New validates the configuration, probes the music root and builds
// the component graph. A journal that fails to open degrades to a
// warning; everything else is fatal.
func New(cfg *Config) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := util.SetLevelName(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	util.SetColors(util.StderrIsTerminal())

	if !util.DirExists(cfg.Root) {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootUnusable, cfg.Root)
	}
	f, err := os.Open(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnusable, err)
	}
	_, rdErr := f.Readdirnames(1)
	f.Close()
	if rdErr != nil && rdErr != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrRootUnusable, rdErr)
	}

	st := storage.New(&storage.Config{
		Root:        cfg.Root,
		LockTimeout: cfg.LockTimeout,
		CacheTTL:    cfg.MetadataCacheTTL,
	})

	j, err := journal.Open(journal.Path(cfg.Root))
	if err != nil {
		util.WarnLog("Scan journal unavailable: %v", err)
		j = nil
	}

	sc := scan.New(&scan.Config{
		Store:       st,
		Journal:     j,
		Workers:     cfg.Workers,
		BatchSize:   cfg.BatchSize,
		Exclude:     cfg.Exclude,
		ShowBar:     cfg.ShowBar,
		MaxCacheAge: time.Duration(cfg.CacheDays) * 24 * time.Hour,
		NoCache:     cfg.CacheDays == 0,
	})

	return &App{
		Config:   cfg,
		Store:    st,
		Journal:  j,
		Scanner:  sc,
		Query:    query.New(st),
		Insights: insights.New(st),
	}, nil
}

// Close releases the journal and drops cached state. In-flight writers
// finish on their own locks.
func (a *App) Close() {
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			util.WarnLog("Closing scan journal: %v", err)
		}
	}
	a.Store.Close()
}

// RefreshBandIndex upserts one band's index entry after a save or
// rollback. Best effort: the index is re-derivable from the metadata
// files, so failures degrade to a warning rather than undoing a
// completed write.
func (a *App) RefreshBandIndex(ctx context.Context, band *model.Band) {
	dir, err := a.Store.BandDir(band.BandName)
	if err != nil {
		util.WarnLog("Index refresh for %q: %v", band.BandName, err)
		return
	}
	_, err = a.Store.UpdateIndex(ctx, func(idx *model.CollectionIndex) (bool, error) {
		entry := index.Entry(band, dir, "")
		if prev := idx.FindBand(band.BandName); prev != nil {
			entry.LastScanned = prev.LastScanned
		}
		idx.Upsert(entry)
		index.Refresh(idx)
		return true, nil
	})
	if err != nil {
		util.WarnLog("Index refresh for %q: %v", band.BandName, err)
	}
}

// ScrubResult reports what a collection index scrub found.
type ScrubResult struct {
	Checked int      `json:"checked"`
	Removed []string `json:"removed"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// Scrub drops index entries whose band folders no longer exist. It
// never touches metadata files; a folder that reappears is picked up
// again by the next scan.
func (a *App) Scrub(ctx context.Context, dryRun bool) (*ScrubResult, error) {
	res := &ScrubResult{Removed: []string{}, DryRun: dryRun}
	_, err := a.Store.UpdateIndex(ctx, func(idx *model.CollectionIndex) (bool, error) {
		res.Checked = len(idx.Bands)
		for _, e := range idx.Bands {
			if util.DirExists(e.FolderPath) {
				continue
			}
			res.Removed = append(res.Removed, e.BandName)
		}
		if len(res.Removed) == 0 || dryRun {
			return false, nil
		}
		for _, name := range res.Removed {
			idx.Remove(name)
		}
		index.Refresh(idx)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Rollback restores a band's previous metadata file and refreshes its
// index entry.
func (a *App) Rollback(ctx context.Context, bandName string) (*model.Band, error) {
	band, err := a.Store.Rollback(ctx, bandName)
	if err != nil {
		return nil, err
	}
	a.RefreshBandIndex(ctx, band)
	return band, nil
}
