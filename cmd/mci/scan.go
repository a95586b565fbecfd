package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/music-indexer/internal/scan"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the collection and refresh metadata and index",
	Long: `Scan the music root for band folders and reconcile each one with its
stored metadata.

By default the scan is incremental: bands whose folders have not changed
since the previous scan keep their index entries and are not re-read.
A full scan re-reads every band; --force additionally rewrites metadata
files even when nothing changed.

Use --dry-run to see what a scan would do without writing anything.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Bool("force", false, "rescan every band and rewrite metadata files")
	scanCmd.Flags().Bool("full", false, "rescan every band (writes only on change)")
	scanCmd.Flags().Bool("dry-run", false, "report without writing metadata or index")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	force, _ := cmd.Flags().GetBool("force")
	full, _ := cmd.Flags().GetBool("full")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	result, err := a.Scanner.Scan(ctx, scan.Options{
		Force:  force,
		Full:   full,
		DryRun: dryRun,
	})
	if err != nil {
		return err
	}

	duration := time.Since(started).Round(time.Millisecond)

	util.InfoLog("")
	if dryRun {
		util.SuccessLog("=== Scan Summary (dry run) ===")
	} else {
		util.SuccessLog("=== Scan Summary ===")
	}
	util.InfoLog("Scan: %s (%s) in %v", result.ScanID, result.Kind, duration)
	util.InfoLog("Bands found: %s", humanize.Comma(int64(result.BandsTotal)))
	util.InfoLog("  Scanned: %d", result.BandsScanned)
	if result.BandsCached > 0 {
		util.InfoLog("  Unchanged (cached): %d", result.BandsCached)
	}
	if result.BandsChanged > 0 {
		util.InfoLog("  Changed: %d", result.BandsChanged)
	}
	if result.BandsFailed > 0 {
		util.WarnLog("  Failed: %d", result.BandsFailed)
	}
	util.InfoLog("Albums seen: %s, tracks: %s",
		humanize.Comma(int64(result.AlbumsSeen)), humanize.Comma(int64(result.TracksSeen)))

	if len(result.Errors) > 0 {
		util.InfoLog("")
		util.WarnLog("Errors encountered:")
		for i, msg := range result.Errors {
			if i >= 10 {
				util.WarnLog("... and %d more errors", len(result.Errors)-10)
				break
			}
			util.WarnLog("  - %s", msg)
		}
	}

	util.InfoLog("")
	util.InfoLog("Next step: mci list")
	return nil
}
