package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/query"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List bands from the collection index",
	Long: `List bands with their album counts and metadata state, filtered,
sorted and paged.

The boolean filters are three-valued: leaving --has-metadata unset shows
all bands, --has-metadata shows only bands with metadata, and
--has-metadata=false only bands without.

Examples:
  # Bands with missing albums, most recently updated first
  mci list --has-missing --sort last_updated --order desc

  # Bands whose name contains "iron"
  mci list --search iron

  # Incomplete discographies of at least 5 albums
  mci list --min-albums 5 --has-missing`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("page-size", 50, "bands per page (max 200)")
	listCmd.Flags().String("sort", "name", "sort by: name, albums_count, completion, last_updated")
	listCmd.Flags().String("order", "asc", "sort order: asc, desc")
	listCmd.Flags().String("search", "", "filter by band name substring")
	listCmd.Flags().Bool("has-metadata", false, "filter by metadata presence")
	listCmd.Flags().Bool("has-analysis", false, "filter by analysis presence")
	listCmd.Flags().Bool("has-missing", false, "filter by missing albums")
	listCmd.Flags().Int("min-albums", 0, "minimum total album count")
	listCmd.Flags().Int("min-rating", 0, "minimum band rating (1-10)")
	listCmd.Flags().String("album-type", "", "only bands with an album of this type")
	listCmd.Flags().String("compliance", "", "only bands with an album at this compliance level")
	listCmd.Flags().String("structure", "", "only bands with this folder structure type")
}

func runList(cmd *cobra.Command, args []string) error {
	params := query.BandListParams{}
	params.Page, _ = cmd.Flags().GetInt("page")
	params.PageSize, _ = cmd.Flags().GetInt("page-size")
	params.SortBy, _ = cmd.Flags().GetString("sort")
	params.Order, _ = cmd.Flags().GetString("order")
	params.Search, _ = cmd.Flags().GetString("search")
	params.MinAlbums, _ = cmd.Flags().GetInt("min-albums")
	params.MinRating, _ = cmd.Flags().GetInt("min-rating")
	params.FilterAlbumType, _ = cmd.Flags().GetString("album-type")
	params.FilterComplianceLevel, _ = cmd.Flags().GetString("compliance")
	params.FilterStructureType, _ = cmd.Flags().GetString("structure")

	// Only flags the user actually set become filters; the zero value
	// of a bool flag cannot express "don't care".
	if cmd.Flags().Changed("has-metadata") {
		v, _ := cmd.Flags().GetBool("has-metadata")
		params.HasMetadata = &v
	}
	if cmd.Flags().Changed("has-analysis") {
		v, _ := cmd.Flags().GetBool("has-analysis")
		params.HasAnalysis = &v
	}
	if cmd.Flags().Changed("has-missing") {
		v, _ := cmd.Flags().GetBool("has-missing")
		params.HasMissing = &v
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Query.BandList(cmd.Context(), params)
	if err != nil {
		return err
	}

	if result.Pagination.TotalItems == 0 {
		util.InfoLog("No bands match. Run 'mci scan' first, or relax the filters.")
		return nil
	}

	fmt.Printf("%-40s %7s %7s %8s  %-5s %-5s %s\n",
		"BAND", "ALBUMS", "LOCAL", "MISSING", "META", "RATED", "UPDATED")
	for _, e := range result.Bands {
		fmt.Printf("%-40s %7d %7d %8d  %-5s %-5s %s\n",
			truncate(e.BandName, 40),
			e.AlbumsCount, e.LocalAlbums, e.MissingAlbums,
			yesNo(e.HasMetadata), yesNo(e.HasAnalysis),
			relativeTime(e.LastUpdated))
	}

	p := result.Pagination
	fmt.Printf("\nPage %d/%d, %s bands total (sorted by %s %s)\n",
		p.Page, p.TotalPages, humanize.Comma(int64(p.TotalItems)),
		result.SortBy, result.Order)
	if p.HasNext {
		util.InfoLog("Next page: mci list --page %d", p.Page+1)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// relativeTime renders a persisted timestamp as a humanized age, or "-"
// when it is absent or unparseable.
func relativeTime(ts string) string {
	t := model.ParseTimestamp(ts)
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
