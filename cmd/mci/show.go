package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/franz/music-indexer/internal/model"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <band>",
	Short: "Show one band's metadata, structure and compliance",
	Long: `Display a band's stored metadata in a human-readable format: the
discography with per-album compliance, missing albums, reviews and
ratings, and the folder structure analysis.

The band is looked up by folder name under the music root. Use --json
to dump the raw metadata document instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().Bool("json", false, "print the raw metadata document")
}

func runShow(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	band, err := a.Store.LoadBand(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(band)
	}

	printBand(band)
	return nil
}

func printBand(b *model.Band) {
	fmt.Printf("=== %s ===\n", b.BandName)
	if b.Formed != "" {
		fmt.Printf("Formed:  %s\n", b.Formed)
	}
	if b.Origin != "" {
		fmt.Printf("Origin:  %s\n", b.Origin)
	}
	if len(b.Genres) > 0 {
		fmt.Printf("Genres:  %s\n", strings.Join(b.Genres, ", "))
	}
	if len(b.Members) > 0 {
		fmt.Printf("Members: %s\n", strings.Join(b.Members, ", "))
	}
	if b.Description != "" {
		fmt.Printf("\n%s\n", b.Description)
	}

	ratings := map[string]int{}
	if b.Analyze != nil {
		for _, aa := range b.Analyze.Albums {
			if aa.Rate > 0 {
				ratings[aa.AlbumName] = aa.Rate
			}
		}
	}

	fmt.Printf("\nAlbums (%d local, %d missing):\n", b.LocalAlbumsCount, b.MissingAlbumsCount)
	for _, al := range b.Albums {
		printAlbum(al, ratings[al.AlbumName])
	}
	for _, al := range b.AlbumsMissing {
		printAlbum(al, ratings[al.AlbumName])
	}

	if b.Analyze != nil && (b.Analyze.Rate > 0 || b.Analyze.Review != "" || len(b.Analyze.SimilarBands) > 0) {
		fmt.Printf("\nAnalysis:\n")
		if b.Analyze.Rate > 0 {
			fmt.Printf("  Rating: %d/10\n", b.Analyze.Rate)
		}
		if b.Analyze.Review != "" {
			fmt.Printf("  Review: %s\n", b.Analyze.Review)
		}
		if len(b.Analyze.SimilarBands) > 0 {
			fmt.Printf("  Similar: %s\n", strings.Join(b.Analyze.SimilarBands, ", "))
		}
	}

	if fs := b.FolderStructure; fs != nil {
		fmt.Printf("\nFolder structure:\n")
		fmt.Printf("  Type: %s\n", fs.StructureType)
		fmt.Printf("  Consistency: %s (%d/100)\n", fs.Consistency, fs.ConsistencyScore)
		fmt.Printf("  Year prefixes: %d of %d albums\n", fs.AlbumsWithYearPrefix, fs.AlbumsAnalyzed)
		if len(fs.TypeFoldersFound) > 0 {
			fmt.Printf("  Type folders: %s\n", strings.Join(fs.TypeFoldersFound, ", "))
		}
		for _, issue := range fs.Issues {
			fmt.Printf("  ! %s\n", issue)
		}
		for _, rec := range fs.Recommendations {
			fmt.Printf("  > %s\n", rec)
		}
	}

	if b.LastUpdated != "" {
		fmt.Printf("\nLast updated: %s (%s)\n", b.LastUpdated, relativeTime(b.LastUpdated))
	}
}

func printAlbum(al model.Album, rating int) {
	marker := "  ✓ "
	if al.Missing {
		marker = "  ✗ "
	}

	line := marker
	if al.Year != "" {
		line += al.Year + " - "
	}
	line += al.AlbumName
	if al.Edition != "" {
		line += fmt.Sprintf(" (%s)", al.Edition)
	}

	var extras []string
	if al.Type != model.TypeAlbum {
		extras = append(extras, string(al.Type))
	}
	if n := al.Tracks(); n >= 0 {
		extras = append(extras, fmt.Sprintf("%d tracks", n))
	}
	if al.PrimaryFormat != "" {
		extras = append(extras, al.PrimaryFormat)
	}
	if al.Compliance != nil {
		extras = append(extras, fmt.Sprintf("%s %d", al.Compliance.Level, al.Compliance.Score))
	}
	if rating > 0 {
		extras = append(extras, fmt.Sprintf("rated %d/10", rating))
	}
	if len(extras) > 0 {
		line += " [" + strings.Join(extras, ", ") + "]"
	}
	fmt.Println(line)
}
