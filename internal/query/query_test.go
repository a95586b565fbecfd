package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/music-indexer/internal/index"
	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
)

func localAlbum(name, year string, typ model.AlbumType, tracks int) model.Album {
	n := tracks
	return model.Album{
		AlbumName:   name,
		Year:        year,
		Type:        typ,
		TracksCount: &n,
		FolderPath:  year + " - " + name,
	}
}

func missingAlbum(name, year string, typ model.AlbumType) model.Album {
	return model.Album{AlbumName: name, Year: year, Type: typ, Missing: true}
}

func seedCollection(t *testing.T, bands ...*model.Band) *Engine {
	t.Helper()
	root := t.TempDir()
	st := storage.New(&storage.Config{Root: root})
	ctx := context.Background()

	entries := make([]model.BandIndexEntry, 0, len(bands))
	for _, b := range bands {
		dir := filepath.Join(root, b.BandName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create band folder: %v", err)
		}
		res, err := st.SaveBand(ctx, b.BandName, b, storage.SaveOptions{CreateMissing: true})
		if err != nil {
			t.Fatalf("failed to seed %q: %v", b.BandName, err)
		}
		entries = append(entries, index.Entry(res.Band, dir, model.Timestamp(time.Now())))
	}
	idx := index.Rebuild(entries, model.Timestamp(time.Now()))
	if err := st.SaveIndex(ctx, idx); err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}
	return New(st)
}

func testBands() []*model.Band {
	floyd := model.NewBand("Pink Floyd")
	floyd.Albums = []model.Album{
		localAlbum("The Dark Side of the Moon", "1973", model.TypeAlbum, 9),
		localAlbum("Delicate Sound of Thunder", "1988", model.TypeLive, 15),
	}
	floyd.Albums[0].Compliance = &model.AlbumCompliance{Score: 95, Level: model.ComplianceExcellent, Issues: []string{}}
	floyd.Albums[1].Compliance = &model.AlbumCompliance{Score: 80, Level: model.ComplianceGood, Issues: []string{}}
	floyd.AlbumsMissing = []model.Album{missingAlbum("The Final Cut", "1983", model.TypeAlbum)}
	floyd.FolderStructure = &model.FolderStructure{
		StructureType:    model.StructureEnhanced,
		Consistency:      model.ConsistencyConsistent,
		ConsistencyScore: 95,
		StructureScore:   95,
	}
	floyd.Analyze = &model.BandAnalysis{
		Rate: 9,
		Albums: []model.AlbumAnalysis{
			{AlbumName: "Delicate Sound of Thunder", Rate: 8},
		},
	}

	opeth := model.NewBand("Opeth")
	opeth.Albums = []model.Album{
		localAlbum("Damnation", "2003", model.TypeAlbum, 8),
	}
	opeth.Albums[0].Compliance = &model.AlbumCompliance{Score: 70, Level: model.ComplianceFair, Issues: []string{}}
	opeth.FolderStructure = &model.FolderStructure{
		StructureType:    model.StructureDefault,
		Consistency:      model.ConsistencyConsistent,
		ConsistencyScore: 100,
		StructureScore:   90,
	}
	opeth.Analyze = &model.BandAnalysis{Rate: 7}

	kraftwerk := model.NewBand("Kraftwerk")
	kraftwerk.Albums = []model.Album{
		localAlbum("Autobahn", "1974", model.TypeAlbum, 5),
		localAlbum("Trans Europe Express (Remastered)", "1977", model.TypeAlbum, 7),
	}
	kraftwerk.Albums[1].Edition = "Remastered"
	kraftwerk.FolderStructure = &model.FolderStructure{
		StructureType:    model.StructureDefault,
		Consistency:      model.ConsistencyConsistent,
		ConsistencyScore: 100,
		StructureScore:   90,
	}

	return []*model.Band{floyd, opeth, kraftwerk}
}

func TestBandListDefaults(t *testing.T) {
	e := seedCollection(t, testBands()...)

	res, err := e.BandList(context.Background(), BandListParams{})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 3 {
		t.Fatalf("expected 3 bands, got %d", len(res.Bands))
	}
	// Default sort is name ascending
	names := []string{res.Bands[0].BandName, res.Bands[1].BandName, res.Bands[2].BandName}
	want := []string{"Kraftwerk", "Opeth", "Pink Floyd"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("band[%d] = %q, expected %q", i, names[i], want[i])
		}
	}
	p := res.Pagination
	if p.Page != 1 || p.PageSize != defaultPageSize || p.TotalItems != 3 || p.TotalPages != 1 {
		t.Errorf("pagination = %+v", p)
	}
	if p.HasPrevious || p.HasNext {
		t.Errorf("single page reports neighbors: %+v", p)
	}
}

func TestBandListPagination(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	res, err := e.BandList(ctx, BandListParams{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("page 2 = %+v", res.Bands)
	}
	p := res.Pagination
	if p.TotalPages != 2 || !p.HasPrevious || p.HasNext {
		t.Errorf("pagination = %+v", p)
	}

	// Out-of-range pages clamp to the last page
	res, err = e.BandList(ctx, BandListParams{Page: 99, PageSize: 2})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if res.Pagination.Page != 2 || len(res.Bands) != 1 {
		t.Errorf("clamped page = %+v with %d bands", res.Pagination, len(res.Bands))
	}
}

func TestBandListSorting(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	res, err := e.BandList(ctx, BandListParams{SortBy: SortByAlbumsCount, Order: "desc"})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	// Pink Floyd has 3 (one missing); Kraftwerk 2; Opeth 1
	want := []string{"Pink Floyd", "Kraftwerk", "Opeth"}
	for i, w := range want {
		if res.Bands[i].BandName != w {
			t.Errorf("band[%d] = %q, expected %q", i, res.Bands[i].BandName, w)
		}
	}

	// Completion ascending: Pink Floyd is the only incomplete band
	res, err = e.BandList(ctx, BandListParams{SortBy: SortByCompletion})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("least complete = %q, expected Pink Floyd", res.Bands[0].BandName)
	}
	// Complete bands tie at 100 and fall back to name order
	if res.Bands[1].BandName != "Kraftwerk" || res.Bands[2].BandName != "Opeth" {
		t.Errorf("tie order = %q, %q", res.Bands[1].BandName, res.Bands[2].BandName)
	}

	if _, err := e.BandList(ctx, BandListParams{SortBy: "tracks"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("unknown sort_by error = %v, expected validation error", err)
	}
	if _, err := e.BandList(ctx, BandListParams{Order: "sideways"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("unknown order error = %v, expected validation error", err)
	}
}

func TestBandListFilters(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	res, err := e.BandList(ctx, BandListParams{Search: "floyd"})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("search result = %+v", res.Bands)
	}

	yes := true
	res, err = e.BandList(ctx, BandListParams{HasMissing: &yes})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("has_missing result = %+v", res.Bands)
	}

	no := false
	res, err = e.BandList(ctx, BandListParams{HasAnalysis: &no})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Kraftwerk" {
		t.Errorf("has_analysis=false result = %+v", res.Bands)
	}

	res, err = e.BandList(ctx, BandListParams{MinAlbums: 2})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 2 {
		t.Errorf("min_albums=2 matched %d bands", len(res.Bands))
	}
}

func TestBandListDeepFilters(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	res, err := e.BandList(ctx, BandListParams{FilterAlbumType: "live"})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("filter_album_type result = %+v", res.Bands)
	}

	res, err = e.BandList(ctx, BandListParams{FilterStructureType: "enhanced"})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("filter_structure_type result = %+v", res.Bands)
	}

	res, err = e.BandList(ctx, BandListParams{FilterComplianceLevel: "fair"})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Opeth" {
		t.Errorf("filter_compliance_level result = %+v", res.Bands)
	}

	res, err = e.BandList(ctx, BandListParams{MinRating: 8})
	if err != nil {
		t.Fatalf("BandList failed: %v", err)
	}
	if len(res.Bands) != 1 || res.Bands[0].BandName != "Pink Floyd" {
		t.Errorf("min_rating result = %+v", res.Bands)
	}

	if _, err := e.BandList(ctx, BandListParams{FilterAlbumType: "bootleg"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("unknown album type error = %v", err)
	}
}

func TestSortEntriesByLastUpdated(t *testing.T) {
	entries := []model.BandIndexEntry{
		{BandName: "A", LastUpdated: "2026-08-20T10:00:00Z"},
		{BandName: "B", LastUpdated: "2026-08-25T10:00:00Z"},
		{BandName: "C", LastUpdated: "2026-08-22T10:00:00Z"},
		{BandName: "D"}, // never updated sorts first
	}
	sortEntries(entries, SortByLastUpdated, "asc")

	want := []string{"D", "A", "C", "B"}
	for i, w := range want {
		if entries[i].BandName != w {
			t.Errorf("entry[%d] = %q, expected %q", i, entries[i].BandName, w)
		}
	}

	sortEntries(entries, SortByLastUpdated, "desc")
	if entries[0].BandName != "B" || entries[3].BandName != "D" {
		t.Errorf("desc order = %+v", entries)
	}
}

func TestSearchAlbums(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	res, err := e.SearchAlbums(ctx, AlbumSearchParams{
		TypeIn:    []string{"Live"},
		YearMin:   "1980",
		YearMax:   "1989",
		RatingMin: 7,
	})
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if res.TotalMatches != 1 {
		t.Fatalf("expected exactly 1 match, got %d: %+v", res.TotalMatches, res.Matches)
	}
	m := res.Matches[0]
	if m.BandName != "Pink Floyd" || m.Album.AlbumName != "Delicate Sound of Thunder" {
		t.Errorf("match = %+v", m)
	}
	if m.Rating != 8 {
		t.Errorf("rating = %d, expected 8", m.Rating)
	}
	if res.BandsSearched != 3 {
		t.Errorf("bands searched = %d, expected 3", res.BandsSearched)
	}
}

func TestSearchAlbumsMissingOnly(t *testing.T) {
	e := seedCollection(t, testBands()...)

	res, err := e.SearchAlbums(context.Background(), AlbumSearchParams{MissingOnly: true})
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if res.TotalMatches != 1 || res.Matches[0].Album.AlbumName != "The Final Cut" {
		t.Errorf("missing-only matches = %+v", res.Matches)
	}
	if !res.Matches[0].Album.Missing {
		t.Error("match not flagged missing")
	}
}

func TestSearchAlbumsTextAndTracks(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	res, err := e.SearchAlbums(ctx, AlbumSearchParams{EditionContains: "remaster"})
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if res.TotalMatches != 1 || res.Matches[0].Album.AlbumName != "Trans Europe Express (Remastered)" {
		t.Errorf("edition matches = %+v", res.Matches)
	}

	res, err = e.SearchAlbums(ctx, AlbumSearchParams{TracksMin: 9, PresentOnly: true})
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if res.TotalMatches != 2 {
		t.Fatalf("tracks_min matches = %+v", res.Matches)
	}
	// Ordered by band then album name
	if res.Matches[0].Album.AlbumName != "Delicate Sound of Thunder" ||
		res.Matches[1].Album.AlbumName != "The Dark Side of the Moon" {
		t.Errorf("order = %q, %q", res.Matches[0].Album.AlbumName, res.Matches[1].Album.AlbumName)
	}

	res, err = e.SearchAlbums(ctx, AlbumSearchParams{BandNameContains: "opeth", AlbumNameContains: "damn"})
	if err != nil {
		t.Fatalf("SearchAlbums failed: %v", err)
	}
	if res.TotalMatches != 1 || res.Matches[0].BandName != "Opeth" {
		t.Errorf("combined text matches = %+v", res.Matches)
	}
}

func TestSearchAlbumsValidation(t *testing.T) {
	e := seedCollection(t, testBands()...)
	ctx := context.Background()

	if _, err := e.SearchAlbums(ctx, AlbumSearchParams{TypeIn: []string{"Bootleg"}}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("unknown type error = %v", err)
	}
	if _, err := e.SearchAlbums(ctx, AlbumSearchParams{YearMin: "nineteen"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("bad year error = %v", err)
	}
	if _, err := e.SearchAlbums(ctx, AlbumSearchParams{ComplianceLevelIn: []string{"great"}}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("unknown level error = %v", err)
	}
}
