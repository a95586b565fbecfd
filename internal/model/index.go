package model

import "sort"

// BandIndexEntry summarizes one band inside the collection index.
type BandIndexEntry struct {
	BandName      string `json:"band_name"`
	FolderPath    string `json:"folder_path"`
	AlbumsCount   int    `json:"albums_count"`
	LocalAlbums   int    `json:"local_albums"`
	MissingAlbums int    `json:"missing_albums"`
	HasMetadata   bool   `json:"has_metadata"`
	HasAnalysis   bool   `json:"has_analysis"`
	LastUpdated   string `json:"last_updated,omitempty"`
	LastScanned   string `json:"last_scanned,omitempty"`
}

// CollectionStats aggregates counts across the whole collection.
type CollectionStats struct {
	TotalBands           int     `json:"total_bands"`
	TotalAlbums          int     `json:"total_albums"`
	TotalMissingAlbums   int     `json:"total_missing_albums"`
	CompletionPercentage float64 `json:"completion_percentage"`
	CompletionUndefined  bool    `json:"completion_undefined,omitempty"` // set when there are no albums at all
	BandsWithMetadata    int     `json:"bands_with_metadata"`
	BandsWithAnalysis    int     `json:"bands_with_analysis"`
	AvgAlbumsPerBand     float64 `json:"avg_albums_per_band"`
	MedianAlbumsPerBand  float64 `json:"median_albums_per_band"`
	MinAlbumsPerBand     int     `json:"min_albums_per_band"`
	MaxAlbumsPerBand     int     `json:"max_albums_per_band"`
}

// CollectionInsight is the last saved insight payload. The payload is
// opaque to the service and round-tripped verbatim.
type CollectionInsight struct {
	GeneratedAt string         `json:"generated_at"`
	Insights    map[string]any `json:"insights"`
}

// CollectionIndex is the document persisted at <root>/.collection_index.json.
type CollectionIndex struct {
	Bands       []BandIndexEntry   `json:"bands"`
	Stats       CollectionStats    `json:"stats"`
	Insights    *CollectionInsight `json:"insights,omitempty"`
	LastScan    string             `json:"last_scan,omitempty"`
	LastUpdated string             `json:"last_updated"`
}

// NewCollectionIndex returns an empty index ready for marshaling.
func NewCollectionIndex() *CollectionIndex {
	return &CollectionIndex{Bands: []BandIndexEntry{}}
}

// Normalize ensures array fields marshal as [] and entries are held in
// a stable order so repeated scans write byte-identical files.
func (ci *CollectionIndex) Normalize() {
	if ci.Bands == nil {
		ci.Bands = []BandIndexEntry{}
	}
	sort.Slice(ci.Bands, func(i, j int) bool {
		return ci.Bands[i].BandName < ci.Bands[j].BandName
	})
}

// FindBand returns the entry for the named band, or nil.
func (ci *CollectionIndex) FindBand(name string) *BandIndexEntry {
	for i := range ci.Bands {
		if ci.Bands[i].BandName == name {
			return &ci.Bands[i]
		}
	}
	return nil
}

// Upsert replaces the entry matching e.BandName or appends it.
func (ci *CollectionIndex) Upsert(e BandIndexEntry) {
	for i := range ci.Bands {
		if ci.Bands[i].BandName == e.BandName {
			ci.Bands[i] = e
			return
		}
	}
	ci.Bands = append(ci.Bands, e)
}

// Remove drops the entry for the named band, reporting whether it existed.
func (ci *CollectionIndex) Remove(name string) bool {
	for i := range ci.Bands {
		if ci.Bands[i].BandName == name {
			ci.Bands = append(ci.Bands[:i], ci.Bands[i+1:]...)
			return true
		}
	}
	return false
}
