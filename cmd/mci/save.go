package main

import (
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save <band>",
	Short: "Save a metadata document for a band",
	Long: `Replace a band's metadata file with a document read from a JSON file
("-" for stdin). The document is validated first; an invalid document
leaves the stored file untouched.

Stored reviews and ratings survive a save that omits them, unless
--no-preserve-analyze is given. The band's folder must exist under the
music root; the metadata file is created if the band has none yet.

Validate a document without writing it: mci validate <band> --file ...`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)

	saveCmd.Flags().StringP("file", "f", "", "JSON metadata document to save (required)")
	saveCmd.Flags().Bool("no-preserve-analyze", false, "drop stored analysis instead of keeping it")
	saveCmd.MarkFlagRequired("file")
}

func runSave(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	noPreserve, _ := cmd.Flags().GetBool("no-preserve-analyze")

	band, err := readBandDocument(file)
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Store.SaveBand(cmd.Context(), args[0], band, storage.SaveOptions{
		PreserveAnalyze: !noPreserve,
		CreateMissing:   true,
	})
	if err != nil {
		return err
	}
	a.RefreshBandIndex(cmd.Context(), res.Band)

	verb := "Updated"
	if res.Created {
		verb = "Created"
	}
	util.SuccessLog("%s %s: %d albums (%d local, %d missing)",
		verb, res.Band.BandName, res.Band.AlbumsCount,
		res.Band.LocalAlbumsCount, res.Band.MissingAlbumsCount)

	if res.Report != nil {
		for _, d := range res.Report.Warnings {
			util.WarnLog("%s: %s", d.Field, d.Message)
		}
	}
	return nil
}
