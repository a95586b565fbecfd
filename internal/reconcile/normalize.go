package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent decomposes characters and drops combining marks, so that
// "Motörhead" and "Motorhead" compare equal.
// https://go.dev/blog/normalization#performing-magic
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// typeSuffixes are trailing tokens that describe a release variant
// rather than the album itself.
var typeSuffixes = map[string]bool{
	"live":         true,
	"demo":         true,
	"ep":           true,
	"single":       true,
	"compilation":  true,
	"instrumental": true,
}

// NormalizeName reduces an album or band name to its matching key:
// lowercased, de-accented, stripped of punctuation, with "&"/"and" and
// "pt"/"part" unified and any trailing type indicator removed.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	if out, _, err := transform.String(deaccent, s); err == nil {
		s = out
	}

	// Ampersands become words before punctuation stripping eats them.
	s = strings.ReplaceAll(s, "&", " and ")

	var sb strings.Builder
	for _, r := range s {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	s = strings.Join(strings.Fields(sb.String()), " ")

	// Token substitutions need the cleaned, single-spaced form.
	s = " " + s + " "
	s = strings.ReplaceAll(s, " pt ", " part ")
	s = strings.TrimSpace(s)

	if fields := strings.Fields(s); len(fields) > 1 && typeSuffixes[fields[len(fields)-1]] {
		s = strings.Join(fields[:len(fields)-1], " ")
	}
	return s
}
