package model

// AlbumType classifies a release by its role in a discography.
type AlbumType string

const (
	TypeAlbum        AlbumType = "Album"
	TypeCompilation  AlbumType = "Compilation"
	TypeEP           AlbumType = "EP"
	TypeLive         AlbumType = "Live"
	TypeSingle       AlbumType = "Single"
	TypeDemo         AlbumType = "Demo"
	TypeInstrumental AlbumType = "Instrumental"
	TypeSplit        AlbumType = "Split"
)

// AlbumTypes returns all valid album types in canonical order.
func AlbumTypes() []AlbumType {
	return []AlbumType{
		TypeAlbum,
		TypeCompilation,
		TypeEP,
		TypeLive,
		TypeSingle,
		TypeDemo,
		TypeInstrumental,
		TypeSplit,
	}
}

// Valid reports whether t is one of the eight recognized types.
func (t AlbumType) Valid() bool {
	switch t {
	case TypeAlbum, TypeCompilation, TypeEP, TypeLive, TypeSingle, TypeDemo, TypeInstrumental, TypeSplit:
		return true
	}
	return false
}

// ComplianceLevel labels how well an album folder conforms to the
// band's naming conventions.
type ComplianceLevel string

const (
	ComplianceExcellent ComplianceLevel = "excellent"
	ComplianceGood      ComplianceLevel = "good"
	ComplianceFair      ComplianceLevel = "fair"
	CompliancePoor      ComplianceLevel = "poor"
	ComplianceCritical  ComplianceLevel = "critical"
)

// ComplianceLevels returns all levels from best to worst.
func ComplianceLevels() []ComplianceLevel {
	return []ComplianceLevel{
		ComplianceExcellent,
		ComplianceGood,
		ComplianceFair,
		CompliancePoor,
		ComplianceCritical,
	}
}

// Valid reports whether l is a recognized compliance level.
func (l ComplianceLevel) Valid() bool {
	switch l {
	case ComplianceExcellent, ComplianceGood, ComplianceFair, CompliancePoor, ComplianceCritical:
		return true
	}
	return false
}

// LevelForScore maps a compliance score to its level.
func LevelForScore(score int) ComplianceLevel {
	switch {
	case score >= 90:
		return ComplianceExcellent
	case score >= 75:
		return ComplianceGood
	case score >= 60:
		return ComplianceFair
	case score >= 40:
		return CompliancePoor
	default:
		return ComplianceCritical
	}
}

// AlbumCompliance holds the compliance assessment for one local album folder.
type AlbumCompliance struct {
	Score           int             `json:"score"`
	Level           ComplianceLevel `json:"level"`
	Issues          []string        `json:"issues"`
	RecommendedPath string          `json:"recommended_path,omitempty"`
}

// Album represents one release, either present on disk or known only
// from metadata. Local albums carry FolderPath and Compliance; missing
// albums carry neither.
type Album struct {
	AlbumName     string           `json:"album_name"`
	Year          string           `json:"year,omitempty"`
	Type          AlbumType        `json:"type"`
	Edition       string           `json:"edition,omitempty"`
	Genres        []string         `json:"genres,omitempty"`
	TracksCount   *int             `json:"tracks_count,omitempty"` // pointer: 0 tracks is distinct from unknown
	Duration      string           `json:"duration,omitempty"`
	Missing       bool             `json:"missing"`
	FolderPath    string           `json:"folder_path,omitempty"`
	PrimaryFormat string           `json:"primary_format,omitempty"`
	Compliance    *AlbumCompliance `json:"compliance,omitempty"`
	Gallery       []string         `json:"gallery,omitempty"`
}

// Tracks returns the track count, or -1 when unknown.
func (a *Album) Tracks() int {
	if a.TracksCount == nil {
		return -1
	}
	return *a.TracksCount
}

// SetTracks records a known track count.
func (a *Album) SetTracks(n int) {
	a.TracksCount = &n
}

// IntPtr is a convenience for building optional integer fields.
func IntPtr(n int) *int {
	return &n
}
