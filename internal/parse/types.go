package parse

import (
	"regexp"
	"strings"

	"github.com/franz/music-indexer/internal/model"
)

// typeKeywords maps detection keywords to album types. Order matters:
// earlier entries win when several keywords appear in one name.
var typeKeywords = []struct {
	albumType model.AlbumType
	keywords  []string
}{
	{model.TypeLive, []string{"live", "concert", "unplugged", "acoustic", "in concert", "live at", "live in", "live from"}},
	{model.TypeCompilation, []string{"greatest hits", "best of", "collection", "anthology", "compilation", "hits", "complete", "essential"}},
	{model.TypeEP, []string{"ep", "e.p."}},
	{model.TypeSingle, []string{"single"}},
	{model.TypeDemo, []string{"demo", "demos", "early recordings", "unreleased", "rough mixes", "rehearsal", "pre-production"}},
	{model.TypeInstrumental, []string{"instrumental", "instrumentals"}},
	{model.TypeSplit, []string{"split", "vs.", "vs", "versus", "with"}},
}

// keywordRes holds one compiled matcher per type, built once at init.
// Keywords match on word boundaries so that "Sleep" is not an EP and
// "Demolition" is not a demo.
var keywordRes []struct {
	albumType model.AlbumType
	re        *regexp.Regexp
}

func init() {
	for _, group := range typeKeywords {
		parts := make([]string, len(group.keywords))
		for i, kw := range group.keywords {
			parts[i] = regexp.QuoteMeta(kw)
		}
		pattern := `(?i)(^|[^a-z])(` + strings.Join(parts, "|") + `)([^a-z]|$)`
		keywordRes = append(keywordRes, struct {
			albumType model.AlbumType
			re        *regexp.Regexp
		}{group.albumType, regexp.MustCompile(pattern)})
	}
}

// DetectType determines an album's type from its surroundings.
// Precedence: parent type folder, then keyword match on album and
// folder name, then default Album. The track-count heuristic is
// applied separately once the track count is known.
func DetectType(albumName, folderName, parentFolder string) model.AlbumType {
	if t, ok := TypeFolder(parentFolder); ok {
		return t
	}
	if t, ok := TypeFromKeywords(albumName); ok {
		return t
	}
	if folderName != albumName {
		if t, ok := TypeFromKeywords(folderName); ok {
			return t
		}
	}
	return model.TypeAlbum
}

// TypeFromKeywords scans name for type indicator keywords.
func TypeFromKeywords(name string) (model.AlbumType, bool) {
	if name == "" {
		return "", false
	}
	for _, entry := range keywordRes {
		if entry.re.MatchString(name) {
			return entry.albumType, true
		}
	}
	return "", false
}

// TypeFromTrackCount applies the track-count heuristic for albums with
// no other type signal: one track is a single, up to seven an EP.
func TypeFromTrackCount(tracks int) model.AlbumType {
	switch {
	case tracks == 1:
		return model.TypeSingle
	case tracks >= 2 && tracks <= 7:
		return model.TypeEP
	default:
		return model.TypeAlbum
	}
}
