package structure

import (
	"fmt"
	"math"
	"strings"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/parse"
)

// Thresholds for structure type determination.
const (
	enhancedRatio = 0.8
	defaultRatio  = 0.8
	mixedFloor    = 0.2
	legacyCeiling = 0.3
)

// Consistency score weights.
const (
	weightDominant  = 0.70
	weightYears     = 0.15
	weightCleanName = 0.15
)

// forbiddenChars are characters that break portability of folder names.
const forbiddenChars = `:/\?*|"<>`

// AlbumObservation is one album folder as seen by the scanner,
// carrying everything the analyzer and scorer need without touching
// the filesystem again.
type AlbumObservation struct {
	FolderName string
	ParentType model.AlbumType // set when the folder sits under a type folder
	Parsed     parse.AlbumFolder
	HasMusic   bool
	TrackCount int
}

// InTypeFolder reports whether the album sits under a type folder.
func (o AlbumObservation) InTypeFolder() bool {
	return o.ParentType != ""
}

// Analyze derives a FolderStructure from the observed album folders of
// one band. The caller guarantees at least one observation.
func Analyze(obs []AlbumObservation) *model.FolderStructure {
	fs := &model.FolderStructure{
		StructureType:    model.StructureUnknown,
		TypeFoldersFound: []string{},
		Recommendations:  []string{},
		Issues:           []string{},
	}
	if len(obs) == 0 {
		fs.Consistency = model.ConsistencyUnknown
		return fs
	}

	total := len(obs)
	typeFolders := map[model.AlbumType]bool{}
	withPrefix := 0
	inTypeFolder := 0
	cleanNames := 0
	for _, o := range obs {
		if o.Parsed.HasPrefix {
			withPrefix++
		}
		if o.InTypeFolder() {
			inTypeFolder++
			typeFolders[o.ParentType] = true
		}
		if !strings.ContainsAny(o.FolderName, forbiddenChars) {
			cleanNames++
		}
	}

	fs.AlbumsAnalyzed = total
	fs.AlbumsWithYearPrefix = withPrefix
	fs.AlbumsWithoutYearPrefix = total - withPrefix
	fs.AlbumsWithTypeFolders = inTypeFolder
	for _, t := range model.AlbumTypes() {
		if typeFolders[t] {
			fs.TypeFoldersFound = append(fs.TypeFoldersFound, string(t))
		}
	}

	yearRatio := float64(withPrefix) / float64(total)
	typeRatio := float64(inTypeFolder) / float64(total)

	switch {
	case typeRatio >= enhancedRatio:
		fs.StructureType = model.StructureEnhanced
	case yearRatio >= defaultRatio:
		fs.StructureType = model.StructureDefault
	case typeRatio > mixedFloor && yearRatio > mixedFloor:
		fs.StructureType = model.StructureMixed
	case yearRatio < legacyCeiling:
		fs.StructureType = model.StructureLegacy
	default:
		fs.StructureType = model.StructureUnknown
	}

	dominant := dominantRatio(fs.StructureType, yearRatio, typeRatio)
	score := weightDominant*dominant + weightYears*yearRatio + weightCleanName*(float64(cleanNames)/float64(total))
	fs.ConsistencyScore = clampScore(int(math.Round(score * 100)))
	fs.Consistency = model.ConsistencyForScore(fs.ConsistencyScore)
	fs.StructureScore = clampScore(fs.ConsistencyScore + structureBonus(fs.StructureType))

	fs.Recommendations = recommendations(obs, fs, typeRatio)
	fs.Issues = issues(fs, typeRatio)

	fs.AnalysisMetadata = map[string]any{
		"year_prefix_ratio": round2(yearRatio),
		"type_folder_ratio": round2(typeRatio),
	}
	return fs
}

// dominantRatio returns the fraction of albums matching the pattern
// the structure type implies.
func dominantRatio(st model.StructureType, yearRatio, typeRatio float64) float64 {
	switch st {
	case model.StructureEnhanced:
		return typeRatio
	case model.StructureDefault:
		return yearRatio
	case model.StructureLegacy:
		return 1 - yearRatio
	default: // mixed, unknown
		return math.Max(yearRatio, typeRatio)
	}
}

func structureBonus(st model.StructureType) int {
	switch st {
	case model.StructureEnhanced:
		return 5
	case model.StructureLegacy, model.StructureUnknown:
		return -10
	default:
		return 0
	}
}

func recommendations(obs []AlbumObservation, fs *model.FolderStructure, typeRatio float64) []string {
	recs := []string{}

	outside := fs.AlbumsAnalyzed - fs.AlbumsWithTypeFolders
	if typeRatio > 0 && typeRatio < enhancedRatio {
		recs = append(recs, fmt.Sprintf("Move %d albums into type folders", outside))
	}
	if fs.AlbumsWithYearPrefix > 0 && fs.AlbumsWithoutYearPrefix > 0 {
		recs = append(recs, fmt.Sprintf("Add year prefix to %d album folders", fs.AlbumsWithoutYearPrefix))
	}
	if countEditionStyles(obs) > 1 {
		recs = append(recs, "Standardize edition suffix style")
	}
	return recs
}

func issues(fs *model.FolderStructure, typeRatio float64) []string {
	out := []string{}
	if fs.AlbumsWithYearPrefix > 0 && fs.AlbumsWithoutYearPrefix > 0 {
		out = append(out, fmt.Sprintf("%d albums have no year prefix", fs.AlbumsWithoutYearPrefix))
	}
	if outside := fs.AlbumsAnalyzed - fs.AlbumsWithTypeFolders; typeRatio > 0 && typeRatio < enhancedRatio {
		out = append(out, fmt.Sprintf("%d albums outside type folders", outside))
	}
	return out
}

// countEditionStyles counts distinct ways editions are written across
// the band: parenthesized suffixes versus edition words embedded in
// the album name.
func countEditionStyles(obs []AlbumObservation) int {
	styles := map[string]bool{}
	for _, o := range obs {
		if o.Parsed.Edition != "" {
			styles["parenthesized"] = true
		} else if hasInlineEdition(o.Parsed.AlbumName) {
			styles["inline"] = true
		}
	}
	return len(styles)
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
