// Package query answers list and search requests from the collection
// index and the per-band metadata documents. Cheap filters run against
// index entries alone; filters that need album or analysis detail load
// the band documents through the storage cache.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/reconcile"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Valid sort keys for BandList.
const (
	SortByName        = "name"
	SortByAlbumsCount = "albums_count"
	SortByCompletion  = "completion"
	SortByLastUpdated = "last_updated"
)

// Engine runs queries against one collection.
type Engine struct {
	store *storage.Store
}

// New creates an Engine over the given store.
func New(store *storage.Store) *Engine {
	return &Engine{store: store}
}

// BandListParams filters, sorts and pages the band list. Zero values
// mean "not set"; the three nullable booleans distinguish false from
// absent.
type BandListParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	SortBy   string `json:"sort_by"`
	Order    string `json:"order"`

	Search                string `json:"search"`
	HasMetadata           *bool  `json:"has_metadata"`
	HasAnalysis           *bool  `json:"has_analysis"`
	HasMissing            *bool  `json:"has_missing"`
	MinAlbums             int    `json:"min_albums"`
	MinRating             int    `json:"min_rating"`
	FilterAlbumType       string `json:"filter_album_type"`
	FilterComplianceLevel string `json:"filter_compliance_level"`
	FilterStructureType   string `json:"filter_structure_type"`
}

// Pagination describes the returned page.
type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
}

// BandListResult is one page of the filtered band list.
type BandListResult struct {
	Bands      []model.BandIndexEntry `json:"bands"`
	Pagination Pagination             `json:"pagination"`
	SortBy     string                 `json:"sort_by"`
	Order      string                 `json:"order"`
}

// BandList returns the filtered, sorted page of index entries.
func (e *Engine) BandList(ctx context.Context, p BandListParams) (*BandListResult, error) {
	sortBy, order, err := sortParams(p.SortBy, p.Order)
	if err != nil {
		return nil, err
	}
	albumType, err := albumTypeParam(p.FilterAlbumType)
	if err != nil {
		return nil, err
	}
	level, err := complianceLevelParam(p.FilterComplianceLevel)
	if err != nil {
		return nil, err
	}
	structureType, err := structureTypeParam(p.FilterStructureType)
	if err != nil {
		return nil, err
	}

	idx, err := e.store.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(p.Search)
	filtered := make([]model.BandIndexEntry, 0, len(idx.Bands))
	for _, entry := range idx.Bands {
		if search != "" && !strings.Contains(strings.ToLower(entry.BandName), search) {
			continue
		}
		if p.HasMetadata != nil && entry.HasMetadata != *p.HasMetadata {
			continue
		}
		if p.HasAnalysis != nil && entry.HasAnalysis != *p.HasAnalysis {
			continue
		}
		if p.HasMissing != nil && (entry.MissingAlbums > 0) != *p.HasMissing {
			continue
		}
		if p.MinAlbums > 0 && entry.AlbumsCount < p.MinAlbums {
			continue
		}
		filtered = append(filtered, entry)
	}

	if albumType != "" || level != "" || structureType != "" || p.MinRating > 0 {
		deep := filtered[:0]
		for _, entry := range filtered {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			band, err := e.store.LoadBand(ctx, entry.BandName)
			if err != nil {
				util.WarnLog("Skipping %q in band list: %v", entry.BandName, err)
				continue
			}
			if !matchesDeepFilters(band, albumType, level, structureType, p.MinRating) {
				continue
			}
			deep = append(deep, entry)
		}
		filtered = deep
	}

	sortEntries(filtered, sortBy, order)

	page, size := p.Page, p.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	total := len(filtered)
	totalPages := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}

	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &BandListResult{
		Bands: filtered[start:end],
		Pagination: Pagination{
			Page:        page,
			PageSize:    size,
			TotalItems:  total,
			TotalPages:  totalPages,
			HasPrevious: page > 1,
			HasNext:     page < totalPages,
		},
		SortBy: sortBy,
		Order:  order,
	}, nil
}

// matchesDeepFilters applies the filters that need the band document.
func matchesDeepFilters(band *model.Band, albumType model.AlbumType, level model.ComplianceLevel, structureType model.StructureType, minRating int) bool {
	if minRating > 0 {
		if band.Analyze == nil || band.Analyze.Rate < minRating {
			return false
		}
	}
	if structureType != "" {
		if band.FolderStructure == nil || band.FolderStructure.StructureType != structureType {
			return false
		}
	}
	if albumType != "" {
		found := false
		for _, a := range band.AllAlbums() {
			if a.Type == albumType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if level != "" {
		found := false
		for _, a := range band.Albums {
			if a.Compliance != nil && a.Compliance.Level == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sortEntries orders entries by the sort key; ties always fall back to
// the band name ascending so pages are stable across calls.
func sortEntries(entries []model.BandIndexEntry, sortBy, order string) {
	desc := order == "desc"
	sort.Slice(entries, func(i, j int) bool {
		c := compareEntries(entries[i], entries[j], sortBy)
		if c == 0 {
			return entries[i].BandName < entries[j].BandName
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compareEntries(a, b model.BandIndexEntry, sortBy string) int {
	switch sortBy {
	case SortByAlbumsCount:
		return a.AlbumsCount - b.AlbumsCount
	case SortByCompletion:
		ca, cb := entryCompletion(a), entryCompletion(b)
		switch {
		case ca < cb:
			return -1
		case ca > cb:
			return 1
		}
		return 0
	case SortByLastUpdated:
		ta := model.ParseTimestamp(a.LastUpdated)
		tb := model.ParseTimestamp(b.LastUpdated)
		switch {
		case ta.Before(tb):
			return -1
		case tb.Before(ta):
			return 1
		}
		return 0
	default:
		return strings.Compare(a.BandName, b.BandName)
	}
}

func entryCompletion(e model.BandIndexEntry) float64 {
	if e.AlbumsCount == 0 {
		return 100
	}
	return float64(e.LocalAlbums) / float64(e.AlbumsCount) * 100
}

// AlbumSearchParams holds the thirteen album search filters, combined
// with AND. Zero values mean "not set".
type AlbumSearchParams struct {
	BandNameContains  string   `json:"band_name_contains"`
	AlbumNameContains string   `json:"album_name_contains"`
	TypeIn            []string `json:"type_in"`
	EditionContains   string   `json:"edition_contains"`
	YearMin           string   `json:"year_min"`
	YearMax           string   `json:"year_max"`
	TracksMin         int      `json:"tracks_min"`
	TracksMax         int      `json:"tracks_max"`
	RatingMin         int      `json:"rating_min"`
	RatingMax         int      `json:"rating_max"`
	ComplianceLevelIn []string `json:"compliance_level_in"`
	MissingOnly       bool     `json:"missing_only"`
	PresentOnly       bool     `json:"present_only"`
}

// AlbumMatch is one matching album with its band context.
type AlbumMatch struct {
	BandName string      `json:"band_name"`
	Album    model.Album `json:"album"`
	Rating   int         `json:"rating,omitempty"`
}

// AlbumSearchResult lists every match, ordered by band name, album
// name, then year.
type AlbumSearchResult struct {
	Matches       []AlbumMatch `json:"matches"`
	TotalMatches  int          `json:"total_matches"`
	BandsSearched int          `json:"bands_searched"`
}

// SearchAlbums runs the advanced album search over every band with
// metadata.
func (e *Engine) SearchAlbums(ctx context.Context, p AlbumSearchParams) (*AlbumSearchResult, error) {
	types, err := albumTypeSet(p.TypeIn)
	if err != nil {
		return nil, err
	}
	levels, err := complianceLevelSet(p.ComplianceLevelIn)
	if err != nil {
		return nil, err
	}
	yearMin, err := yearParam("year_min", p.YearMin)
	if err != nil {
		return nil, err
	}
	yearMax, err := yearParam("year_max", p.YearMax)
	if err != nil {
		return nil, err
	}

	idx, err := e.store.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}

	bandFilter := strings.ToLower(p.BandNameContains)
	result := &AlbumSearchResult{Matches: []AlbumMatch{}}
	for _, entry := range idx.Bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if bandFilter != "" && !strings.Contains(strings.ToLower(entry.BandName), bandFilter) {
			continue
		}
		band, err := e.store.LoadBand(ctx, entry.BandName)
		if err != nil {
			util.WarnLog("Skipping %q in album search: %v", entry.BandName, err)
			continue
		}
		result.BandsSearched++

		ratings := albumRatings(band)
		for _, album := range band.AllAlbums() {
			rating := ratings[reconcile.NormalizeName(album.AlbumName)]
			if !matchesAlbum(album, rating, p, types, levels, yearMin, yearMax) {
				continue
			}
			result.Matches = append(result.Matches, AlbumMatch{
				BandName: band.BandName,
				Album:    album,
				Rating:   rating,
			})
		}
	}

	sort.Slice(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.BandName != b.BandName {
			return a.BandName < b.BandName
		}
		if a.Album.AlbumName != b.Album.AlbumName {
			return a.Album.AlbumName < b.Album.AlbumName
		}
		return a.Album.Year < b.Album.Year
	})
	result.TotalMatches = len(result.Matches)
	return result, nil
}

// matchesAlbum applies every album-level filter.
func matchesAlbum(album model.Album, rating int, p AlbumSearchParams, types map[model.AlbumType]bool, levels map[model.ComplianceLevel]bool, yearMin, yearMax int) bool {
	if p.MissingOnly && !album.Missing {
		return false
	}
	if p.PresentOnly && album.Missing {
		return false
	}
	if p.AlbumNameContains != "" &&
		!strings.Contains(strings.ToLower(album.AlbumName), strings.ToLower(p.AlbumNameContains)) {
		return false
	}
	if p.EditionContains != "" &&
		!strings.Contains(strings.ToLower(album.Edition), strings.ToLower(p.EditionContains)) {
		return false
	}
	if len(types) > 0 && !types[album.Type] {
		return false
	}
	if yearMin > 0 || yearMax > 0 {
		y, err := strconv.Atoi(album.Year)
		if err != nil {
			return false
		}
		if yearMin > 0 && y < yearMin {
			return false
		}
		if yearMax > 0 && y > yearMax {
			return false
		}
	}
	if p.TracksMin > 0 || p.TracksMax > 0 {
		if album.TracksCount == nil {
			return false
		}
		if p.TracksMin > 0 && *album.TracksCount < p.TracksMin {
			return false
		}
		if p.TracksMax > 0 && *album.TracksCount > p.TracksMax {
			return false
		}
	}
	if p.RatingMin > 0 || p.RatingMax > 0 {
		if rating == 0 {
			return false
		}
		if p.RatingMin > 0 && rating < p.RatingMin {
			return false
		}
		if p.RatingMax > 0 && rating > p.RatingMax {
			return false
		}
	}
	if len(levels) > 0 {
		if album.Compliance == nil || !levels[album.Compliance.Level] {
			return false
		}
	}
	return true
}

// albumRatings maps normalized album names to their rating.
func albumRatings(band *model.Band) map[string]int {
	if band.Analyze == nil || len(band.Analyze.Albums) == 0 {
		return nil
	}
	out := make(map[string]int, len(band.Analyze.Albums))
	for _, a := range band.Analyze.Albums {
		if a.Rate > 0 {
			out[reconcile.NormalizeName(a.AlbumName)] = a.Rate
		}
	}
	return out
}

// Parameter validation helpers. Unknown values are validation errors so
// a typo fails loudly instead of silently matching nothing.

func sortParams(sortBy, order string) (string, string, error) {
	switch sortBy {
	case "":
		sortBy = SortByName
	case SortByName, SortByAlbumsCount, SortByCompletion, SortByLastUpdated:
	default:
		return "", "", fmt.Errorf("%w: unknown sort_by %q", util.ErrValidation, sortBy)
	}
	switch order {
	case "":
		order = "asc"
	case "asc", "desc":
	default:
		return "", "", fmt.Errorf("%w: unknown order %q", util.ErrValidation, order)
	}
	return sortBy, order, nil
}

func albumTypeParam(s string) (model.AlbumType, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range model.AlbumTypes() {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown album type %q", util.ErrValidation, s)
}

func albumTypeSet(values []string) (map[model.AlbumType]bool, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[model.AlbumType]bool, len(values))
	for _, v := range values {
		t, err := albumTypeParam(v)
		if err != nil {
			return nil, err
		}
		out[t] = true
	}
	return out, nil
}

func complianceLevelParam(s string) (model.ComplianceLevel, error) {
	if s == "" {
		return "", nil
	}
	for _, l := range model.ComplianceLevels() {
		if strings.EqualFold(string(l), s) {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: unknown compliance level %q", util.ErrValidation, s)
}

func complianceLevelSet(values []string) (map[model.ComplianceLevel]bool, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[model.ComplianceLevel]bool, len(values))
	for _, v := range values {
		l, err := complianceLevelParam(v)
		if err != nil {
			return nil, err
		}
		out[l] = true
	}
	return out, nil
}

func structureTypeParam(s string) (model.StructureType, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range model.StructureTypes() {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown structure type %q", util.ErrValidation, s)
}

func yearParam(name, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < 0 {
		return 0, fmt.Errorf("%w: %s must be a year, got %q", util.ErrValidation, name, s)
	}
	return y, nil
}
