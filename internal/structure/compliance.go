package structure

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/parse"
)

// Per-check deductions from a perfect score of 100. Values keep the
// relative severity ordering: empty folders are worst, then missing
// year prefixes, misplaced type albums, loose editions and bad
// characters.
const (
	deductNoYearPrefix     = 25
	deductWrongTypeFolder  = 15
	deductInlineEdition    = 10
	deductForbiddenChar    = 10
	deductForbiddenCharCap = 30
	deductEmptyFolder      = 40
)

// ComplianceInput describes one local album folder for scoring.
type ComplianceInput struct {
	FolderName    string
	RelPath       string // album path relative to the band folder
	ParentType    model.AlbumType
	StructureType model.StructureType
	AlbumType     model.AlbumType
	Parsed        parse.AlbumFolder
	HasMusic      bool
}

// ScoreCompliance checks one album folder against the band's layout
// conventions and returns the scored result.
func ScoreCompliance(in ComplianceInput) *model.AlbumCompliance {
	score := 100
	issues := []string{}

	if !in.Parsed.HasPrefix {
		score -= deductNoYearPrefix
		issues = append(issues, "missing year prefix")
	}

	if in.StructureType == model.StructureEnhanced {
		if t, ok := parse.TypeFromKeywords(in.FolderName); ok && in.ParentType != t {
			score -= deductWrongTypeFolder
			issues = append(issues, fmt.Sprintf("type keyword suggests %s/ but album is not under it", t))
		}
	}

	if hasInlineEdition(in.Parsed.AlbumName) {
		score -= deductInlineEdition
		issues = append(issues, "edition not in parentheses")
	}

	if n := countForbiddenChars(in.FolderName); n > 0 {
		d := n * deductForbiddenChar
		if d > deductForbiddenCharCap {
			d = deductForbiddenCharCap
		}
		score -= d
		issues = append(issues, fmt.Sprintf("%d forbidden characters in folder name", n))
	}

	if !in.HasMusic {
		score -= deductEmptyFolder
		issues = append(issues, "no music files in album folder")
	}

	score = clampScore(score)
	c := &model.AlbumCompliance{
		Score:  score,
		Level:  model.LevelForScore(score),
		Issues: issues,
	}
	if rec := RecommendedPath(in); rec != "" && rec != filepath.ToSlash(in.RelPath) {
		c.RecommendedPath = rec
	}
	return c
}

// RecommendedPath builds the canonical location for an album given the
// band's structure type: "Type/YYYY - Name (Edition)" for enhanced
// layouts, "YYYY - Name (Edition)" otherwise. Albums without a known
// year keep their bare name.
func RecommendedPath(in ComplianceInput) string {
	f := in.Parsed
	if f.AlbumName == "" {
		return ""
	}
	name := parse.FormatAlbumFolder(parse.AlbumFolder{
		AlbumName: cleanName(f.AlbumName),
		Year:      f.Year,
		Edition:   f.Edition,
	})
	if in.StructureType == model.StructureEnhanced {
		t := in.AlbumType
		if t == "" {
			t = model.TypeAlbum
		}
		return string(t) + "/" + name
	}
	return name
}

// MissingAlbumPath suggests where a known-but-absent album would live
// if it were acquired, following the band's structure type.
func MissingAlbumPath(a model.Album, st model.StructureType) string {
	in := ComplianceInput{
		StructureType: st,
		AlbumType:     a.Type,
		Parsed: parse.AlbumFolder{
			AlbumName: a.AlbumName,
			Year:      a.Year,
			Edition:   a.Edition,
		},
	}
	return RecommendedPath(in)
}

// hasInlineEdition reports whether an edition word from the recognized
// vocabulary appears inside the album name rather than in parentheses.
func hasInlineEdition(albumName string) bool {
	lower := strings.ToLower(albumName)
	for _, e := range []string{"deluxe", "remastered", "limited edition", "anniversary edition", "collector's edition", "demo version"} {
		if idx := strings.Index(lower, e); idx >= 0 {
			if isWordBounded(lower, idx, len(e)) {
				return true
			}
		}
	}
	return false
}

func isWordBounded(s string, idx, length int) bool {
	if idx > 0 {
		prev := s[idx-1]
		if prev >= 'a' && prev <= 'z' {
			return false
		}
	}
	if end := idx + length; end < len(s) {
		next := s[end]
		if next >= 'a' && next <= 'z' {
			return false
		}
	}
	return true
}

func countForbiddenChars(name string) int {
	n := 0
	for _, r := range name {
		if strings.ContainsRune(forbiddenChars, r) {
			n++
		}
	}
	return n
}

func cleanName(name string) string {
	out := name
	for _, r := range forbiddenChars {
		out = strings.ReplaceAll(out, string(r), "")
	}
	return strings.Join(strings.Fields(out), " ")
}
