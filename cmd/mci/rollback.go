package main

import (
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <band>",
	Short: "Restore a band's previous metadata file",
	Long: `Replace a band's metadata file with its backup. Every save keeps the
previous version as .band_metadata.json.bak, so exactly one step can be
undone. The replaced file becomes the new backup: running rollback
twice restores the original state.

The band's collection index entry is refreshed to match.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	band, err := a.Rollback(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	util.SuccessLog("Restored %s: %d albums (%d local, %d missing), last updated %s",
		band.BandName, band.AlbumsCount, band.LocalAlbumsCount,
		band.MissingAlbumsCount, band.LastUpdated)
	return nil
}
