package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/reconcile"
	"github.com/franz/music-indexer/internal/util"
)

var (
	yearRe     = regexp.MustCompile(`^\d{4}$`)
	durationRe = regexp.MustCompile(`^\d+min$`)
)

const (
	maxNameLength    = 200
	maxEditionLength = 100
	maxReviewLength  = 5000
	maxTracks        = 999
)

// Severity distinguishes rejecting problems from advisory ones.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one validation finding, located by a JSON-ish field path.
type Diagnostic struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Report collects the findings for one document.
type Report struct {
	Valid    bool         `json:"valid"`
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
}

func (r *Report) errorf(field, format string, args ...any) {
	r.Errors = append(r.Errors, Diagnostic{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
}

func (r *Report) warnf(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, Diagnostic{Field: field, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Err returns nil for a valid report, otherwise an error wrapping the
// report that unwraps to the validation sentinel.
func (r *Report) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Report: r}
}

// Error carries a failed validation report across package boundaries.
type Error struct {
	Report *Report
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Report.Errors))
	for _, d := range e.Report.Errors {
		msgs = append(msgs, d.Field+": "+d.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *Error) Unwrap() error {
	return util.ErrValidation
}

/// Band validates a complete metadata document: field rules, the
// non-overlap invariant between local and missing albums, and
// cross-field analysis checks. Warnings never invalidate.
func Band(b *model.Band) *Report {
	r := &Report{Errors: []Diagnostic{}, Warnings: []Diagnostic{}}

	if strings.TrimSpace(b.BandName) == "" {
		r.errorf("band_name", "must not be empty")
	} else if len([]rune(b.BandName)) > maxNameLength {
		r.errorf("band_name", "longer than %d characters", maxNameLength)
	}
	if b.Formed != "" && !yearRe.MatchString(b.Formed) {
		r.errorf("formed", "%q is not a 4-digit year", b.Formed)
	}

	seen := map[string]string{}
	for i, a := range b.Albums {
		validateAlbum(r, fmt.Sprintf("albums[%d]", i), &a, false)
		key := reconcile.NormalizeName(a.AlbumName)
		if key != "" {
			seen[key] = a.AlbumName
		}
	}
	for i, a := range b.AlbumsMissing {
		field := fmt.Sprintf("albums_missing[%d]", i)
		validateAlbum(r, field, &a, true)
		if other, ok := seen[reconcile.NormalizeName(a.AlbumName)]; ok {
			r.errorf(field, "%q also present locally as %q", a.AlbumName, other)
		}
	}

	if b.AlbumsCount != len(b.Albums)+len(b.AlbumsMissing) {
		r.errorf("albums_count", "%d does not match %d local + %d missing",
			b.AlbumsCount, len(b.Albums), len(b.AlbumsMissing))
	}

	if fs := b.FolderStructure; fs != nil {
		if !fs.StructureType.Valid() {
			r.errorf("folder_structure.structure_type", "unknown value %q", fs.StructureType)
		}
		if fs.ConsistencyScore < 0 || fs.ConsistencyScore > 100 {
			r.errorf("folder_structure.consistency_score", "%d out of range 0..100", fs.ConsistencyScore)
		}
		if fs.StructureScore < 0 || fs.StructureScore > 100 {
			r.errorf("folder_structure.structure_score", "%d out of range 0..100", fs.StructureScore)
		}
	}

	if b.Analyze != nil {
		validateAnalysis(r, b)
	}

	if b.SchemaVersion != model.CurrentSchemaVersion {
		r.warnf("schema_version", "%d differs from current %d", b.SchemaVersion, model.CurrentSchemaVersion)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func validateAlbum(r *Report, field string, a *model.Album, missing bool) {
	if strings.TrimSpace(a.AlbumName) == "" {
		r.errorf(field+".album_name", "must not be empty")
	} else {
		if len([]rune(a.AlbumName)) > maxNameLength {
			r.errorf(field+".album_name", "longer than %d characters", maxNameLength)
		}
		if strings.ContainsAny(a.AlbumName, `/\`) {
			r.errorf(field+".album_name", "path separators are not allowed")
		}
	}
	if a.Year != "" && !yearRe.MatchString(a.Year) {
		r.errorf(field+".year", "%q is not a 4-digit year", a.Year)
	}
	if !a.Type.Valid() {
		r.errorf(field+".type", "unknown value %q", a.Type)
	}
	if len([]rune(a.Edition)) > maxEditionLength {
		r.errorf(field+".edition", "longer than %d characters", maxEditionLength)
	}
	if a.TracksCount != nil && (*a.TracksCount < 0 || *a.TracksCount > maxTracks) {
		r.errorf(field+".tracks_count", "%d out of range 0..%d", *a.TracksCount, maxTracks)
	}
	if a.Duration != "" && !durationRe.MatchString(a.Duration) {
		r.errorf(field+".duration", "%q does not match <minutes>min", a.Duration)
	}

	if missing {
		if a.FolderPath != "" {
			r.errorf(field+".folder_path", "missing albums must not carry a folder path")
		}
	} else {
		if a.FolderPath == "" {
			r.errorf(field+".folder_path", "local albums must carry a folder path")
		}
		if c := a.Compliance; c != nil {
			if c.Score < 0 || c.Score > 100 {
				r.errorf(field+".compliance.score", "%d out of range 0..100", c.Score)
			}
			if !c.Level.Valid() {
				r.errorf(field+".compliance.level", "unknown value %q", c.Level)
			}
		}
	}
}

// validateAnalysis checks ratings and that every album analysis
// resolves to a real album by normalized name.
func validateAnalysis(r *Report, b *model.Band) {
	an := b.Analyze

	if an.Rate < 0 || an.Rate > 10 {
		r.errorf("analyze.rate", "%d out of range 1..10", an.Rate)
	}
	if len([]rune(an.Review)) > maxReviewLength {
		r.errorf("analyze.review", "longer than %d characters", maxReviewLength)
	}

	known := map[string]bool{}
	for _, a := range b.Albums {
		known[reconcile.NormalizeName(a.AlbumName)] = true
	}
	for _, a := range b.AlbumsMissing {
		known[reconcile.NormalizeName(a.AlbumName)] = true
	}

	var rated, sum, minRate, maxRate int
	for i, aa := range an.Albums {
		field := fmt.Sprintf("analyze.albums[%d]", i)
		if strings.TrimSpace(aa.AlbumName) == "" {
			r.errorf(field+".album_name", "must not be empty")
			continue
		}
		if !known[reconcile.NormalizeName(aa.AlbumName)] {
			r.errorf(field+".album_name", "%q does not match any album", aa.AlbumName)
		}
		if aa.Rate < 0 || aa.Rate > 10 {
			r.errorf(field+".rate", "%d out of range 1..10", aa.Rate)
		}
		if len([]rune(aa.Review)) > maxReviewLength {
			r.errorf(field+".review", "longer than %d characters", maxReviewLength)
		}
		if aa.Rate > 0 {
			rated++
			sum += aa.Rate
			if minRate == 0 || aa.Rate < minRate {
				minRate = aa.Rate
			}
			if aa.Rate > maxRate {
				maxRate = aa.Rate
			}
		}
	}

	// Band versus album rating coherence is advisory only.
	if an.Rate > 0 && rated > 0 {
		mean := float64(sum) / float64(rated)
		if diff := float64(an.Rate) - mean; diff > 2 || diff < -2 {
			r.warnf("analyze.rate", "band rate %d is far from album mean %.1f", an.Rate, mean)
		}
		if an.Rate > maxRate+1 {
			r.warnf("analyze.rate", "band rate %d exceeds best album rate %d by more than 1", an.Rate, maxRate)
		}
		if an.Rate < minRate-1 {
			r.warnf("analyze.rate", "band rate %d is below worst album rate %d by more than 1", an.Rate, minRate)
		}
	}
}
