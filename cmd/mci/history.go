package main

import (
	"fmt"
	"time"

	"github.com/franz/music-indexer/internal/journal"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scan runs from the journal",
	Long: `List the most recent scan runs recorded in the scan journal, newest
first: when each ran, whether it was full or incremental, how many
bands it covered and how it ended.

Use --bands <run-id> to list the per-band outcomes of one run.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "l", 20, "number of runs to show")
	historyCmd.Flags().String("bands", "", "show per-band outcomes for this run id")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	runID, _ := cmd.Flags().GetString("bands")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Journal == nil {
		return fmt.Errorf("%w: scan journal unavailable", util.ErrStorage)
	}

	if runID != "" {
		return printBandScans(a.Journal, runID)
	}

	runs, err := a.Journal.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		util.InfoLog("No scans recorded yet. Run 'mci scan' first.")
		return nil
	}

	fmt.Printf("%-10s %-12s %-16s %9s %7s %7s %7s  %s\n",
		"RUN", "KIND", "STARTED", "DURATION", "BANDS", "FAILED", "ALBUMS", "STATUS")
	for _, r := range runs {
		fmt.Printf("%-10s %-12s %-16s %9s %7d %7d %7d  %s\n",
			shortID(r.ID), r.Kind, relativeTime(r.StartedAt), runDuration(r),
			r.BandsScanned, r.BandsFailed, r.AlbumsSeen, runStatus(r))
	}
	return nil
}

func printBandScans(j *journal.Journal, runID string) error {
	scans, err := j.BandScans(runID)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		util.InfoLog("No band outcomes recorded for run %s", runID)
		return nil
	}

	fmt.Printf("%-40s %7s %8s %7s %9s  %s\n",
		"BAND", "ALBUMS", "MISSING", "TRACKS", "DURATION", "NOTE")
	for _, bs := range scans {
		note := ""
		switch {
		case bs.Error != "":
			note = "error: " + bs.Error
		case bs.Cached:
			note = "cached"
		}
		fmt.Printf("%-40s %7d %8d %7d %8dms  %s\n",
			truncate(bs.BandName, 40), bs.LocalAlbums, bs.MissingAlbums,
			bs.Tracks, bs.DurationMS, note)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(r *journal.Run) string {
	started := model.ParseTimestamp(r.StartedAt)
	completed := model.ParseTimestamp(r.CompletedAt)
	if started.IsZero() || completed.IsZero() {
		return "-"
	}
	return completed.Sub(started).Round(time.Millisecond).String()
}

func runStatus(r *journal.Run) string {
	if r.Error != "" {
		return r.Status + " (" + r.Error + ")"
	}
	return r.Status
}
