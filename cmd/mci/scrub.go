package main

import (
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Drop index entries for band folders that no longer exist",
	Long: `Check every collection index entry against the filesystem and remove
the ones whose band folders are gone.

Only the index is touched; metadata files are never deleted, and a
folder that comes back (a remounted NAS share, a restored backup) is
picked up again by the next scan.`,
	RunE: runScrub,
}

func init() {
	rootCmd.AddCommand(scrubCmd)

	scrubCmd.Flags().Bool("dry-run", false, "report without changing the index")
}

func runScrub(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Scrub(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	if len(res.Removed) == 0 {
		util.SuccessLog("Checked %d entries, all band folders present", res.Checked)
		return nil
	}

	for _, name := range res.Removed {
		util.WarnLog("Folder gone: %s", name)
	}
	if dryRun {
		util.InfoLog("Dry run: %d of %d entries would be removed", len(res.Removed), res.Checked)
	} else {
		util.SuccessLog("Removed %d of %d entries", len(res.Removed), res.Checked)
	}
	return nil
}
