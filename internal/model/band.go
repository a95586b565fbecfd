package model

import (
	"encoding/json"
	"time"
)

// CurrentSchemaVersion is the metadata schema written by this build.
// Version 2 introduced the separated albums / albums_missing arrays;
// version 1 records carry a single albums array with per-entry missing
// flags and are migrated on load.
const CurrentSchemaVersion = 2

// Band is the per-band metadata document persisted at
// <band_folder>/.band_metadata.json.
type Band struct {
	BandName           string           `json:"band_name"`
	Formed             string           `json:"formed,omitempty"`
	Genres             []string         `json:"genres"`
	Origin             string           `json:"origin,omitempty"`
	Members            []string         `json:"members"`
	Description        string           `json:"description,omitempty"`
	Albums             []Album          `json:"albums"`
	AlbumsMissing      []Album          `json:"albums_missing"`
	AlbumsCount        int              `json:"albums_count"`
	LocalAlbumsCount   int              `json:"local_albums_count"`
	MissingAlbumsCount int              `json:"missing_albums_count"`
	Analyze            *BandAnalysis    `json:"analyze,omitempty"`
	FolderStructure    *FolderStructure `json:"folder_structure,omitempty"`
	LastUpdated        string           `json:"last_updated"`
	SchemaVersion      int              `json:"schema_version"`
	Gallery            []string         `json:"gallery"`
}

// BandAnalysis holds reviews and ratings for a band and its albums.
type BandAnalysis struct {
	Review       string          `json:"review,omitempty"`
	Rate         int             `json:"rate,omitempty"` // 1..10; zero means unrated and is omitted
	SimilarBands []string        `json:"similar_bands"`
	Albums       []AlbumAnalysis `json:"albums"`
}

// AlbumAnalysis rates a single album, referenced by name.
type AlbumAnalysis struct {
	AlbumName string `json:"album_name"`
	Review    string `json:"review,omitempty"`
	Rate      int    `json:"rate,omitempty"`
}

// NewBand returns an empty band document at the current schema version.
func NewBand(name string) *Band {
	b := &Band{
		BandName:      name,
		SchemaVersion: CurrentSchemaVersion,
	}
	b.Normalize()
	return b
}

// Normalize enforces the derived fields and serialization invariants:
// counts match array lengths, missing flags agree with array placement,
// missing albums carry no filesystem fields, album types default to
// Album, zero ratings are cleared, and all array fields marshal as []
// rather than null.
func (b *Band) Normalize() {
	if b.Genres == nil {
		b.Genres = []string{}
	}
	if b.Members == nil {
		b.Members = []string{}
	}
	if b.Albums == nil {
		b.Albums = []Album{}
	}
	if b.AlbumsMissing == nil {
		b.AlbumsMissing = []Album{}
	}
	if b.Gallery == nil {
		b.Gallery = []string{}
	}

	for i := range b.Albums {
		a := &b.Albums[i]
		a.Missing = false
		if a.Type == "" {
			a.Type = TypeAlbum
		}
		if a.Compliance != nil && a.Compliance.Issues == nil {
			a.Compliance.Issues = []string{}
		}
	}
	for i := range b.AlbumsMissing {
		a := &b.AlbumsMissing[i]
		a.Missing = true
		a.FolderPath = ""
		a.Compliance = nil
		a.PrimaryFormat = ""
		if a.Type == "" {
			a.Type = TypeAlbum
		}
	}

	if b.Analyze != nil {
		if b.Analyze.Rate < 0 {
			b.Analyze.Rate = 0
		}
		if b.Analyze.SimilarBands == nil {
			b.Analyze.SimilarBands = []string{}
		}
		if b.Analyze.Albums == nil {
			b.Analyze.Albums = []AlbumAnalysis{}
		}
		for i := range b.Analyze.Albums {
			if b.Analyze.Albums[i].Rate < 0 {
				b.Analyze.Albums[i].Rate = 0
			}
		}
	}

	b.LocalAlbumsCount = len(b.Albums)
	b.MissingAlbumsCount = len(b.AlbumsMissing)
	b.AlbumsCount = b.LocalAlbumsCount + b.MissingAlbumsCount

	if b.SchemaVersion == 0 {
		b.SchemaVersion = CurrentSchemaVersion
	}
}

// Touch stamps the document with the current UTC time.
func (b *Band) Touch() {
	b.LastUpdated = Timestamp(time.Now())
}

// Clone returns a deep copy, so cached documents can be handed out
// without sharing mutable state.
func (b *Band) Clone() *Band {
	data, err := json.Marshal(b)
	if err != nil {
		return nil
	}
	var out Band
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

// HasAnalysis reports whether the band carries any review or rating.
func (b *Band) HasAnalysis() bool {
	if b.Analyze == nil {
		return false
	}
	return b.Analyze.Review != "" || b.Analyze.Rate > 0 || len(b.Analyze.Albums) > 0
}

// FindAlbum returns the album with the given name from either array,
// comparing exactly. The second result reports whether it was found.
func (b *Band) FindAlbum(name string) (*Album, bool) {
	for i := range b.Albums {
		if b.Albums[i].AlbumName == name {
			return &b.Albums[i], true
		}
	}
	for i := range b.AlbumsMissing {
		if b.AlbumsMissing[i].AlbumName == name {
			return &b.AlbumsMissing[i], true
		}
	}
	return nil, false
}

// AllAlbums returns local and missing albums as one slice, local first.
func (b *Band) AllAlbums() []Album {
	out := make([]Album, 0, len(b.Albums)+len(b.AlbumsMissing))
	out = append(out, b.Albums...)
	out = append(out, b.AlbumsMissing...)
	return out
}

// Timestamp formats t as the ISO-8601 UTC form used in persisted files.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp parses a persisted timestamp. The zero time is
// returned for empty or malformed values.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
