package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/franz/music-indexer/internal/query"
	"github.com/franz/music-indexer/internal/util"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search albums across the whole collection",
	Long: `Search albums across every band with metadata. All given filters must
match (AND).

Can output in human-readable format, JSONL, or CSV.

Examples:
  # Every EP and demo from the seventies
  mci search --type EP --type Demo --year-min 1970 --year-max 1979

  # Albums you rated 8 or higher
  mci search --rating-min 8

  # Missing albums of bands whose name contains "maiden"
  mci search --band maiden --missing-only

  # Export poorly organized albums to CSV
  mci search --compliance poor --compliance critical -o csv > fixme.csv`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	// Filter flags
	searchCmd.Flags().StringP("band", "b", "", "band name contains")
	searchCmd.Flags().StringP("album", "a", "", "album name contains")
	searchCmd.Flags().StringSliceP("type", "t", nil, "album type (repeatable)")
	searchCmd.Flags().StringP("edition", "e", "", "edition contains")
	searchCmd.Flags().String("year-min", "", "earliest release year (YYYY)")
	searchCmd.Flags().String("year-max", "", "latest release year (YYYY)")
	searchCmd.Flags().Int("tracks-min", 0, "minimum track count")
	searchCmd.Flags().Int("tracks-max", 0, "maximum track count")
	searchCmd.Flags().Int("rating-min", 0, "minimum album rating (1-10)")
	searchCmd.Flags().Int("rating-max", 0, "maximum album rating (1-10)")
	searchCmd.Flags().StringSlice("compliance", nil, "compliance level (repeatable)")
	searchCmd.Flags().Bool("missing-only", false, "only albums missing from disk")
	searchCmd.Flags().Bool("present-only", false, "only albums present on disk")

	// Output flags
	searchCmd.Flags().StringP("output", "o", "human", "output format: human, jsonl, csv")
}

func runSearch(cmd *cobra.Command, args []string) error {
	params := query.AlbumSearchParams{}
	params.BandNameContains, _ = cmd.Flags().GetString("band")
	params.AlbumNameContains, _ = cmd.Flags().GetString("album")
	params.TypeIn, _ = cmd.Flags().GetStringSlice("type")
	params.EditionContains, _ = cmd.Flags().GetString("edition")
	params.YearMin, _ = cmd.Flags().GetString("year-min")
	params.YearMax, _ = cmd.Flags().GetString("year-max")
	params.TracksMin, _ = cmd.Flags().GetInt("tracks-min")
	params.TracksMax, _ = cmd.Flags().GetInt("tracks-max")
	params.RatingMin, _ = cmd.Flags().GetInt("rating-min")
	params.RatingMax, _ = cmd.Flags().GetInt("rating-max")
	params.ComplianceLevelIn, _ = cmd.Flags().GetStringSlice("compliance")
	params.MissingOnly, _ = cmd.Flags().GetBool("missing-only")
	params.PresentOnly, _ = cmd.Flags().GetBool("present-only")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Query.SearchAlbums(cmd.Context(), params)
	if err != nil {
		return err
	}

	outputFormat, _ := cmd.Flags().GetString("output")
	switch outputFormat {
	case "jsonl":
		return searchJSONL(result)
	case "csv":
		return searchCSV(result)
	default:
		return searchHuman(result)
	}
}

func searchHuman(result *query.AlbumSearchResult) error {
	if result.TotalMatches == 0 {
		util.InfoLog("No albums match (searched %d bands)", result.BandsSearched)
		return nil
	}

	lastBand := ""
	for _, m := range result.Matches {
		if m.BandName != lastBand {
			fmt.Printf("\n%s\n", m.BandName)
			lastBand = m.BandName
		}

		al := m.Album
		line := "  "
		if al.Year != "" {
			line += al.Year + " - "
		}
		line += al.AlbumName
		if al.Edition != "" {
			line += fmt.Sprintf(" (%s)", al.Edition)
		}
		fmt.Println(line)

		detail := fmt.Sprintf("      %s", al.Type)
		if n := al.Tracks(); n >= 0 {
			detail += fmt.Sprintf(", %d tracks", n)
		}
		if al.Missing {
			detail += ", MISSING"
		} else if al.Compliance != nil {
			detail += fmt.Sprintf(", %s (%d)", al.Compliance.Level, al.Compliance.Score)
		}
		if m.Rating > 0 {
			detail += fmt.Sprintf(", rated %d/10", m.Rating)
		}
		fmt.Println(detail)
	}

	fmt.Printf("\n%d albums matched across %d bands\n", result.TotalMatches, result.BandsSearched)
	return nil
}

func searchJSONL(result *query.AlbumSearchResult) error {
	encoder := json.NewEncoder(os.Stdout)
	for _, m := range result.Matches {
		if err := encoder.Encode(m); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	}
	return nil
}

func searchCSV(result *query.AlbumSearchResult) error {
	writer := csv.NewWriter(os.Stdout)
	defer writer.Flush()

	header := []string{
		"band", "album", "year", "type", "edition", "tracks",
		"missing", "compliance_level", "compliance_score", "rating", "folder_path",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, m := range result.Matches {
		al := m.Album

		tracks := ""
		if n := al.Tracks(); n >= 0 {
			tracks = strconv.Itoa(n)
		}
		level, score := "", ""
		if al.Compliance != nil {
			level = string(al.Compliance.Level)
			score = strconv.Itoa(al.Compliance.Score)
		}
		rating := ""
		if m.Rating > 0 {
			rating = strconv.Itoa(m.Rating)
		}

		row := []string{
			m.BandName,
			al.AlbumName,
			al.Year,
			string(al.Type),
			al.Edition,
			tracks,
			strconv.FormatBool(al.Missing),
			level,
			score,
			rating,
			al.FolderPath,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	return nil
}
