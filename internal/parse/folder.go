package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/util"
)

// folderRe matches the standard album folder form "YYYY - Name (Edition)".
// The edition group is optional.
var folderRe = regexp.MustCompile(`^(\d{4})\s*-\s*(.+?)(?:\s*\(([^)]+)\))?$`)

// knownEditions is the recognized edition vocabulary. Parenthetical
// content matching one of these (case-insensitively) is normalized to
// the canonical casing; anything else is preserved verbatim.
var knownEditions = []string{
	"Deluxe",
	"Deluxe Edition",
	"Limited",
	"Limited Edition",
	"Anniversary",
	"Remastered",
	"Special",
	"Collector's",
	"Demo Version",
	"Instrumental",
}

// AlbumFolder is the result of parsing one album folder name.
type AlbumFolder struct {
	AlbumName string
	Year      string
	Edition   string
	Type      model.AlbumType // zero value means no hint was found
	HasPrefix bool            // name carried a YYYY prefix
}

// ParseAlbumFolder splits a folder name into year, album name and
// edition. Names without the year prefix are accepted as-is (legacy
// layout). Only a name that is empty after trimming is an error.
func ParseAlbumFolder(name string) (AlbumFolder, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return AlbumFolder{}, fmt.Errorf("%w: empty folder name", util.ErrParse)
	}

	m := folderRe.FindStringSubmatch(trimmed)
	if m == nil {
		return AlbumFolder{AlbumName: trimmed}, nil
	}

	out := AlbumFolder{
		Year:      m[1],
		AlbumName: strings.TrimSpace(m[2]),
		HasPrefix: true,
	}
	if paren := strings.TrimSpace(m[3]); paren != "" {
		if canonical, ok := CanonicalEdition(paren); ok {
			out.Edition = canonical
		} else if t, ok := typeFromName(paren); ok {
			// A bare type name in parentheses is a hint, not an edition.
			out.Type = t
		} else {
			out.Edition = paren
		}
	}
	return out, nil
}

// FormatAlbumFolder renders the canonical folder name for the parsed
// fields, inverse to ParseAlbumFolder for recognized names. A type
// hint takes the parenthetical slot when there is no edition, since
// that is the only place a bare name can carry it.
func FormatAlbumFolder(f AlbumFolder) string {
	var sb strings.Builder
	if f.Year != "" {
		sb.WriteString(f.Year)
		sb.WriteString(" - ")
	}
	sb.WriteString(f.AlbumName)
	switch {
	case f.Edition != "":
		sb.WriteString(" (")
		sb.WriteString(f.Edition)
		sb.WriteString(")")
	case f.Type != "":
		sb.WriteString(" (")
		sb.WriteString(string(f.Type))
		sb.WriteString(")")
	}
	return sb.String()
}

// CanonicalEdition matches s against the recognized edition vocabulary,
// returning the canonical casing.
func CanonicalEdition(s string) (string, bool) {
	for _, e := range knownEditions {
		if strings.EqualFold(s, e) {
			return e, true
		}
	}
	return "", false
}

// typeFromName matches s against the eight album type values exactly
// (case-insensitively).
func typeFromName(s string) (model.AlbumType, bool) {
	for _, t := range model.AlbumTypes() {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// TypeFolder reports whether a directory name names one of the eight
// album types, as used by the enhanced band layout.
func TypeFolder(name string) (model.AlbumType, bool) {
	return typeFromName(strings.TrimSpace(name))
}
