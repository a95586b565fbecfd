package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/franz/music-indexer/internal/app"
	"github.com/franz/music-indexer/internal/insights"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Analyze the collection and print its analytics report",
	Long: `Compute collection-wide analytics: album type distribution, how
diverse each discography is, the compliance spread, and a weighted
maturity grade for the whole collection.

Every invocation recomputes from the current index and metadata files.
Use --saved to print the last insight payload an external analyzer
stored in the collection index instead, and --json for raw output.`,
	RunE: runInsights,
}

func init() {
	rootCmd.AddCommand(insightsCmd)

	insightsCmd.Flags().Bool("json", false, "print the raw analytics report")
	insightsCmd.Flags().Bool("saved", false, "print the last saved insight payload instead of recomputing")
}

func runInsights(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	saved, _ := cmd.Flags().GetBool("saved")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if saved {
		return printSavedInsight(cmd, a, asJSON)
	}

	report, err := a.Insights.Analyze(cmd.Context())
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printInsights(report)
	return nil
}

// printSavedInsight dumps the insight block persisted in the collection
// index. The payload is opaque to the service, so it prints as JSON in
// both modes; human mode adds the generation age.
func printSavedInsight(cmd *cobra.Command, a *app.App, asJSON bool) error {
	ins, err := a.Insights.Saved(cmd.Context())
	if err != nil {
		return err
	}
	if ins == nil {
		return fmt.Errorf("%w: no saved insight in the collection index", util.ErrNotFound)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if asJSON {
		return enc.Encode(ins)
	}

	fmt.Printf("Saved insight, generated %s:\n", relativeTime(ins.GeneratedAt))
	return enc.Encode(ins.Insights)
}

func printInsights(r *insights.CollectionAnalytics) {
	fmt.Printf("=== Collection Insights ===\n")
	fmt.Printf("Bands: %s, albums: %s (%s missing)\n",
		humanize.Comma(int64(r.TotalBands)),
		humanize.Comma(int64(r.TotalAlbums)),
		humanize.Comma(int64(r.Stats.TotalMissingAlbums)))
	if r.Stats.CompletionUndefined {
		fmt.Printf("Completion: n/a (no albums known)\n")
	} else {
		fmt.Printf("Completion: %.1f%%\n", r.Stats.CompletionPercentage)
	}
	fmt.Printf("Albums per band: avg %.1f, median %.1f (min %d, max %d)\n",
		r.Stats.AvgAlbumsPerBand, r.Stats.MedianAlbumsPerBand,
		r.Stats.MinAlbumsPerBand, r.Stats.MaxAlbumsPerBand)

	fmt.Printf("\nMaturity: %s (%.1f/100)\n", r.Maturity.Level, r.Maturity.Score)
	fmt.Printf("  Size         %5.1f\n", r.Maturity.Size)
	fmt.Printf("  Diversity    %5.1f\n", r.Maturity.Diversity)
	fmt.Printf("  Structure    %5.1f\n", r.Maturity.Structure)
	fmt.Printf("  Metadata     %5.1f\n", r.Maturity.Metadata)
	fmt.Printf("  Completeness %5.1f\n", r.Maturity.Completeness)
	fmt.Printf("Health score: %.1f/100\n", r.HealthScore)

	if len(r.Types.Types) > 0 {
		fmt.Printf("\nAlbum types:\n")
		for _, tc := range r.Types.Types {
			fmt.Printf("  %-14s %5d (%4.1f%%) across %d bands\n",
				tc.Type, tc.Count, tc.Percentage, tc.BandCount)
		}
	}

	if len(r.Types.ByDecade) > 0 {
		decades := make([]string, 0, len(r.Types.ByDecade))
		for d := range r.Types.ByDecade {
			decades = append(decades, d)
		}
		sort.Strings(decades)

		fmt.Printf("\nBy decade:\n")
		for _, d := range decades {
			total := 0
			for _, n := range r.Types.ByDecade[d] {
				total += n
			}
			fmt.Printf("  %s: %d albums\n", d, total)
		}
	}

	fmt.Printf("\nDiversity: %.1f types per band on average, %d well-rounded bands\n",
		r.Diversity.AvgTypesPerBand, r.Diversity.WellRoundedBands)
	for _, opp := range r.Diversity.Opportunities {
		if len(opp.Bands) > 3 {
			fmt.Printf("  No %s yet: %s and %d more\n",
				opp.Type, strings.Join(opp.Bands[:3], ", "), len(opp.Bands)-3)
		} else {
			fmt.Printf("  No %s yet: %s\n", opp.Type, strings.Join(opp.Bands, ", "))
		}
	}

	if r.Compliance.AlbumsScored > 0 {
		fmt.Printf("\nCompliance (%d albums scored):\n", r.Compliance.AlbumsScored)
		for _, lc := range r.Compliance.Levels {
			fmt.Printf("  %-10s %5d\n", lc.Level, lc.Count)
		}
		fmt.Printf("Consistency: mean %.1f, median %.1f, stdev %.1f across %d bands\n",
			r.Compliance.MeanConsistency, r.Compliance.MedianConsistency,
			r.Compliance.StdevConsistency, r.Compliance.BandsAnalyzed)
	}

	fmt.Printf("\nGenerated %s\n", relativeTime(r.GeneratedAt))
}
