package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
	"github.com/franz/music-indexer/internal/validate"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <band>",
	Short: "Validate band metadata without writing anything",
	Long: `Run the save-time validation checks against a metadata document and
print the findings. Nothing is written; this is the dry run for a save.

By default the band's stored metadata file is checked. With --file the
document is read from a JSON file instead ("-" for stdin), which lets
you verify a payload before sending it to save.

The command fails when the document has validation errors; warnings
alone do not fail it.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("file", "f", "", "validate this JSON document instead of the stored one")
}

func runValidate(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var band *model.Band
	if file != "" {
		band, err = readBandDocument(file)
		if err != nil {
			return err
		}
		if band.BandName == "" {
			band.BandName = args[0]
		}
	} else {
		stored, err := a.Store.LoadBand(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		band = stored.Clone()
	}

	if _, err := storage.Migrate(band); err != nil {
		return err
	}
	band.Normalize()

	report := validate.Band(band)
	printReport(band.BandName, report)

	if !report.Valid {
		return fmt.Errorf("%w: %d errors", util.ErrValidation, len(report.Errors))
	}
	return nil
}

// readBandDocument parses a metadata document from path, or stdin when
// path is "-".
func readBandDocument(path string) (*model.Band, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var band model.Band
	if err := json.Unmarshal(data, &band); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrParse, err)
	}
	return &band, nil
}

func printReport(bandName string, report *validate.Report) {
	if report.Valid && len(report.Warnings) == 0 {
		fmt.Printf("%s: valid\n", bandName)
		return
	}

	fmt.Printf("%s: %d errors, %d warnings\n", bandName, len(report.Errors), len(report.Warnings))
	for _, d := range report.Errors {
		fmt.Printf("  ✗ %s: %s\n", d.Field, d.Message)
	}
	for _, d := range report.Warnings {
		fmt.Printf("  ⚠ %s: %s\n", d.Field, d.Message)
	}
}
