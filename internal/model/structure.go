package model

// StructureType describes the organizational pattern of a band folder.
type StructureType string

const (
	StructureDefault  StructureType = "default"  // YYYY - Album Name directly under the band
	StructureEnhanced StructureType = "enhanced" // albums grouped under type folders
	StructureMixed    StructureType = "mixed"    // both patterns in significant proportion
	StructureLegacy   StructureType = "legacy"   // bare album names, no year prefixes
	StructureUnknown  StructureType = "unknown"
)

// StructureTypes returns all recognized structure types.
func StructureTypes() []StructureType {
	return []StructureType{
		StructureDefault,
		StructureEnhanced,
		StructureMixed,
		StructureLegacy,
		StructureUnknown,
	}
}

// Valid reports whether s is a recognized structure type.
func (s StructureType) Valid() bool {
	switch s {
	case StructureDefault, StructureEnhanced, StructureMixed, StructureLegacy, StructureUnknown:
		return true
	}
	return false
}

// ConsistencyLevel labels how uniformly a band's album folders follow
// the dominant naming pattern.
type ConsistencyLevel string

const (
	ConsistencyConsistent       ConsistencyLevel = "consistent"
	ConsistencyMostlyConsistent ConsistencyLevel = "mostly_consistent"
	ConsistencyInconsistent     ConsistencyLevel = "inconsistent"
	ConsistencyPoor             ConsistencyLevel = "poor"
	ConsistencyUnknown          ConsistencyLevel = "unknown"
)

// ConsistencyForScore maps a consistency score to its level.
func ConsistencyForScore(score int) ConsistencyLevel {
	switch {
	case score >= 90:
		return ConsistencyConsistent
	case score >= 70:
		return ConsistencyMostlyConsistent
	case score >= 50:
		return ConsistencyInconsistent
	case score >= 30:
		return ConsistencyPoor
	default:
		return ConsistencyUnknown
	}
}

// FolderStructure is the analyzer's assessment of one band directory.
type FolderStructure struct {
	StructureType           StructureType    `json:"structure_type"`
	Consistency             ConsistencyLevel `json:"consistency"`
	ConsistencyScore        int              `json:"consistency_score"`
	StructureScore          int              `json:"structure_score"`
	AlbumsAnalyzed          int              `json:"albums_analyzed"`
	AlbumsWithYearPrefix    int              `json:"albums_with_year_prefix"`
	AlbumsWithoutYearPrefix int              `json:"albums_without_year_prefix"`
	AlbumsWithTypeFolders   int              `json:"albums_with_type_folders"`
	TypeFoldersFound        []string         `json:"type_folders_found"`
	Recommendations         []string         `json:"recommendations"`
	Issues                  []string         `json:"issues"`
	AnalysisMetadata        map[string]any   `json:"analysis_metadata,omitempty"`
}
