package reconcile

import (
	"testing"

	"github.com/franz/music-indexer/internal/model"
)

func physicalAlbum(name, year, folder string, tracks int) model.Album {
	a := model.Album{
		AlbumName:  name,
		Year:       year,
		Type:       model.TypeAlbum,
		FolderPath: folder,
		Compliance: &model.AlbumCompliance{Score: 100, Level: model.ComplianceExcellent, Issues: []string{}},
	}
	a.SetTracks(tracks)
	return a
}

func TestMergeMarksMissing(t *testing.T) {
	stored := []model.Album{
		{AlbumName: "The Wall", Year: "1979"},
		{AlbumName: "Animals", Year: "1977"},
		{AlbumName: "The Final Cut", Year: "1983"},
	}
	physical := []model.Album{
		physicalAlbum("The Wall", "1979", "1979 - The Wall", 26),
		physicalAlbum("Animals", "1977", "1977 - Animals", 5),
	}

	res := Merge(stored, physical, model.StructureDefault)

	if len(res.Local) != 2 {
		t.Fatalf("len(Local) = %d, expected 2", len(res.Local))
	}
	if len(res.Missing) != 1 {
		t.Fatalf("len(Missing) = %d, expected 1", len(res.Missing))
	}
	if res.Missing[0].AlbumName != "The Final Cut" {
		t.Errorf("Missing[0] = %q", res.Missing[0].AlbumName)
	}
	if !res.Missing[0].Missing || res.Missing[0].FolderPath != "" {
		t.Errorf("missing album not cleaned: %+v", res.Missing[0])
	}
	if res.MissingPaths["The Final Cut"] != "1983 - The Final Cut" {
		t.Errorf("MissingPaths = %v", res.MissingPaths)
	}
	if res.Matched != 2 || res.MarkedMissing != 1 || res.Added != 0 {
		t.Errorf("counters = %d/%d/%d", res.Matched, res.MarkedMissing, res.Added)
	}
}

func TestMergeCanonicalSpelling(t *testing.T) {
	stored := []model.Album{
		{AlbumName: "The Dark Side Of The Moon", Genres: []string{"Progressive Rock"}, Duration: "43min"},
	}
	phys := physicalAlbum("the dark side of the moon", "1973", "1973 - the dark side of the moon", 10)
	phys.Type = model.TypeAlbum

	res := Merge(stored, []model.Album{phys}, model.StructureDefault)

	if len(res.Local) != 1 || len(res.Missing) != 0 {
		t.Fatalf("local/missing = %d/%d", len(res.Local), len(res.Missing))
	}
	got := res.Local[0]
	if got.AlbumName != "The Dark Side Of The Moon" {
		t.Errorf("AlbumName = %q, expected stored spelling", got.AlbumName)
	}
	if got.Year != "1973" {
		t.Errorf("Year = %q, expected year adopted from disk", got.Year)
	}
	if got.FolderPath != "1973 - the dark side of the moon" {
		t.Errorf("FolderPath = %q", got.FolderPath)
	}
	if got.Duration != "43min" {
		t.Errorf("Duration = %q, expected stored duration kept", got.Duration)
	}
	if len(got.Genres) != 1 || got.Genres[0] != "Progressive Rock" {
		t.Errorf("Genres = %v", got.Genres)
	}
	if got.Tracks() != 10 {
		t.Errorf("Tracks = %d", got.Tracks())
	}
}

func TestMergeFieldPrecedence(t *testing.T) {
	stored := []model.Album{{
		AlbumName:   "Pulse",
		Year:        "1995",
		Type:        model.TypeAlbum, // filesystem disagrees below
		Edition:     "",
		TracksCount: model.IntPtr(22),
	}}
	phys := physicalAlbum("Pulse", "1996", "Live/1995 - Pulse (Deluxe)", 23)
	phys.Type = model.TypeLive
	phys.Edition = "Deluxe"

	res := Merge(stored, []model.Album{phys}, model.StructureEnhanced)

	got := res.Local[0]
	if got.Year != "1995" {
		t.Errorf("Year = %q, expected stored year to win", got.Year)
	}
	if got.Type != model.TypeLive {
		t.Errorf("Type = %q, expected filesystem type to win", got.Type)
	}
	if got.Edition != "Deluxe" {
		t.Errorf("Edition = %q, expected physical edition to win", got.Edition)
	}
	if got.Tracks() != 23 {
		t.Errorf("Tracks = %d, expected physical count to win", got.Tracks())
	}
}

func TestMergeAddsUnknownPhysical(t *testing.T) {
	physical := []model.Album{
		physicalAlbum("Meddle", "1971", "1971 - Meddle", 6),
	}

	res := Merge(nil, physical, model.StructureDefault)

	if len(res.Local) != 1 || res.Added != 1 {
		t.Fatalf("Local = %d, Added = %d", len(res.Local), res.Added)
	}
	if res.Local[0].AlbumName != "Meddle" {
		t.Errorf("Local[0] = %q", res.Local[0].AlbumName)
	}
}

func TestMergeTieBreakByEditDistance(t *testing.T) {
	// both folders normalize to the same key; the closer raw spelling wins
	stored := []model.Album{{AlbumName: "Pulse"}}
	physical := []model.Album{
		physicalAlbum("P.U.L.S.E.", "1995", "1995 - P.U.L.S.E.", 22),
		physicalAlbum("Pulse", "1995", "1995 - Pulse", 22),
	}

	res := Merge(stored, physical, model.StructureDefault)

	if res.Matched != 1 {
		t.Fatalf("Matched = %d", res.Matched)
	}
	if res.Local[0].FolderPath != "1995 - Pulse" {
		t.Errorf("matched folder = %q, expected exact spelling", res.Local[0].FolderPath)
	}
	// the other folder is still adopted as its own album
	if res.Added != 1 || len(res.Local) != 2 {
		t.Errorf("Added = %d, len(Local) = %d", res.Added, len(res.Local))
	}
}

func TestMergeReappearedAlbum(t *testing.T) {
	// previously missing album shows up on disk again
	stored := []model.Album{{AlbumName: "Animals", Year: "1977", Missing: true}}
	physical := []model.Album{physicalAlbum("Animals", "1977", "1977 - Animals", 5)}

	res := Merge(stored, physical, model.StructureDefault)

	if len(res.Local) != 1 || len(res.Missing) != 0 {
		t.Fatalf("local/missing = %d/%d", len(res.Local), len(res.Missing))
	}
	if res.Local[0].Missing {
		t.Error("reappeared album still flagged missing")
	}
}
