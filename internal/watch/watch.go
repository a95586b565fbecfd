// Package watch rescans bands as their folders change on disk. The
// collection root and every band folder are watched; events are
// debounced and batched into one restricted incremental scan per
// quiet period. Band folders appearing or vanishing at the root
// trigger an unrestricted scan so the collection index is refreshed.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/music-indexer/internal/scan"
	"github.com/franz/music-indexer/internal/util"
)

// DefaultDebounce is the quiet period after the last event before a
// rescan is triggered.
const DefaultDebounce = 2 * time.Second

// relevantOps are the event kinds that can change scan results.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Config holds watcher configuration.
type Config struct {
	Root     string
	Scanner  *scan.Scanner
	Debounce time.Duration
	Exclude  []string // folder names beyond the built-in exclusions
}

// Watcher debounces filesystem events into incremental scans.
type Watcher struct {
	root     string
	scanner  *scan.Scanner
	debounce time.Duration
	exclude  map[string]bool
}

// New creates a Watcher for the collection root.
func New(cfg *Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	exclude := make(map[string]bool)
	for _, name := range scan.DefaultExcludedFolders {
		exclude[strings.ToLower(name)] = true
	}
	for _, name := range cfg.Exclude {
		exclude[strings.ToLower(name)] = true
	}

	return &Watcher{
		root:     cfg.Root,
		scanner:  cfg.Scanner,
		debounce: cfg.Debounce,
		exclude:  exclude,
	}
}

// Run watches until ctx is cancelled. Scans run inside the event loop,
// so overlapping change bursts serialize into consecutive scans.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating filesystem watcher: %v", util.ErrScan, err)
	}
	defer fw.Close()

	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("%w: watching %s: %v", util.ErrScan, w.root, err)
	}
	watched, err := w.addBandFolders(fw)
	if err != nil {
		return err
	}
	util.InfoLog("Watching %s and %d band folders, %s debounce", w.root, watched, w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	dirty := map[string]bool{}
	refreshAll := false

	for {
		select {
		case <-ctx.Done():
			util.InfoLog("Watcher stopping")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			t, relevant := w.classify(ev)
			if !relevant {
				continue
			}
			if t.add {
				if fi, statErr := os.Stat(ev.Name); statErr == nil && fi.IsDir() {
					if err := fw.Add(ev.Name); err != nil {
						util.WarnLog("Failed to watch new band folder %s: %v", ev.Name, err)
					}
				}
			}
			dirty[t.band] = true
			if t.all {
				refreshAll = true
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", err)

		case <-timer.C:
			w.flush(ctx, dirty, refreshAll)
			dirty = map[string]bool{}
			refreshAll = false
		}
	}
}

// addBandFolders registers every current band folder so album-level
// changes inside them are seen.
func (w *Watcher) addBandFolders(fw *fsnotify.Watcher) (int, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return 0, fmt.Errorf("%w: reading collection root %s: %v", util.ErrScan, w.root, err)
	}

	watched := 0
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || w.exclude[strings.ToLower(name)] {
			continue
		}
		if err := fw.Add(filepath.Join(w.root, name)); err != nil {
			util.WarnLog("Failed to watch band folder %s: %v", name, err)
			continue
		}
		watched++
	}
	return watched, nil
}

// target attributes one filesystem event to a band.
type target struct {
	band string
	all  bool // band folder level change: the whole index needs a refresh
	add  bool // new band folder that should be watched from now on
}

// classify decides whether an event matters and which band it belongs
// to. Dotted names cover the service's own files (metadata, backups,
// index, journal), so their writes never feed back into a rescan.
func (w *Watcher) classify(ev fsnotify.Event) (target, bool) {
	if ev.Op&relevantOps == 0 {
		return target{}, false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return target{}, false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return target{}, false
	}

	band := strings.Split(filepath.ToSlash(rel), "/")[0]
	if strings.HasPrefix(band, ".") || w.exclude[strings.ToLower(band)] {
		return target{}, false
	}

	if !strings.Contains(rel, string(filepath.Separator)) {
		t := target{band: band, all: true}
		if ev.Op&fsnotify.Create != 0 {
			t.add = true
		}
		return t, true
	}
	return target{band: band}, true
}

// flush runs one scan covering everything collected since the last
// quiet period.
func (w *Watcher) flush(ctx context.Context, dirty map[string]bool, refreshAll bool) {
	if len(dirty) == 0 && !refreshAll {
		return
	}

	opts := scan.Options{}
	if refreshAll {
		util.InfoLog("Watcher: band folders changed, refreshing the whole collection")
	} else {
		names := make([]string, 0, len(dirty))
		for name := range dirty {
			names = append(names, name)
		}
		sort.Strings(names)
		opts.Only = names
		util.InfoLog("Watcher: rescanning %d changed band folder(s): %s",
			len(names), strings.Join(names, ", "))
	}

	if _, err := w.scanner.Scan(ctx, opts); err != nil {
		util.ErrorLog("Watcher rescan failed: %v", err)
	}
}
