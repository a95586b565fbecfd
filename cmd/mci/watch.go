package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/music-indexer/internal/scan"
	"github.com/franz/music-indexer/internal/util"
	"github.com/franz/music-indexer/internal/watch"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the collection and rescan changed bands",
	Long: `Watch the music root for filesystem changes and keep the metadata and
index current without manual scans.

Changes are debounced and batched: editing a few albums triggers one
incremental scan restricted to the affected bands, while creating,
renaming or removing band folders refreshes the whole collection.

An incremental scan runs once at startup so the watcher begins from a
current index. Stop with Ctrl-C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "settle time before reacting to changes")
	watchCmd.Flags().Bool("no-initial-scan", false, "skip the scan at startup")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	debounce, _ := cmd.Flags().GetDuration("debounce")
	noInitial, _ := cmd.Flags().GetBool("no-initial-scan")

	// Background rescans share stderr with the event log, so no bar.
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if !noInitial {
		started := time.Now()
		result, err := a.Scanner.Scan(ctx, scan.Options{})
		if err != nil {
			return err
		}
		util.InfoLog("Initial scan: %d bands (%d scanned, %d cached) in %v",
			result.BandsTotal, result.BandsScanned, result.BandsCached,
			time.Since(started).Round(time.Millisecond))
	}

	w := watch.New(&watch.Config{
		Root:     a.Config.Root,
		Scanner:  a.Scanner,
		Debounce: debounce,
		Exclude:  a.Config.Exclude,
	})
	return w.Run(ctx)
}
