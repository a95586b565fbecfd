package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/music-indexer/internal/model"
)

func TestIsMusicFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"test.mp3", true},
		{"test.MP3", true}, // Case insensitive
		{"test.flac", true},
		{"test.m4a", true},
		{"test.m4p", true},
		{"test.wma", true},
		{"test.mp4", true},
		{"test.opus", false},
		{"test.txt", false},
		{"test.jpg", false},
		{"test", false},
		{".mp3", true},
	}

	for _, tt := range tests {
		result := IsMusicFile(tt.path)
		if result != tt.expected {
			t.Errorf("IsMusicFile(%q) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"cover.jpg", true},
		{"cover.JPEG", true},
		{"back.png", true},
		{"anim.webp", true},
		{"scan.bmp", true},
		{"booklet.pdf", false},
		{"track.mp3", false},
	}

	for _, tt := range tests {
		result := IsImageFile(tt.path)
		if result != tt.expected {
			t.Errorf("IsImageFile(%q) = %v, expected %v", tt.path, result, tt.expected)
		}
	}
}

func TestDiscoverBands(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"Pink Floyd", "Opeth", ".hidden", "tmp", "@eaDir"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	exclude := map[string]bool{"tmp": true, "@eadir": true}
	bands, err := DiscoverBands(root, exclude)
	if err != nil {
		t.Fatalf("DiscoverBands failed: %v", err)
	}

	if len(bands) != 2 {
		t.Fatalf("expected 2 band folders, got %d", len(bands))
	}
	if bands[0].Name != "Opeth" || bands[1].Name != "Pink Floyd" {
		t.Errorf("bands = %q, %q, expected Opeth, Pink Floyd", bands[0].Name, bands[1].Name)
	}
	if bands[0].MTime.IsZero() {
		t.Error("band folder mtime not captured")
	}
}

func TestDiscoverAlbumsDefaultLayout(t *testing.T) {
	band := t.TempDir()
	writeTracks(t, filepath.Join(band, "1973 - The Dark Side of the Moon"), 2, ".mp3")
	writeTracks(t, filepath.Join(band, "1979 - The Wall"), 1, ".mp3")
	writeTracks(t, filepath.Join(band, "1979 - The Wall"), 1, ".flac")
	if err := os.WriteFile(filepath.Join(band, "1979 - The Wall", "cover.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write cover: %v", err)
	}
	if err := os.Mkdir(filepath.Join(band, "Artwork"), 0o755); err != nil {
		t.Fatalf("failed to create Artwork: %v", err)
	}
	if err := os.WriteFile(filepath.Join(band, "Artwork", "logo.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write logo: %v", err)
	}
	if err := os.WriteFile(filepath.Join(band, "band.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write band image: %v", err)
	}

	albums, gallery, warnings, err := discoverAlbums(band)
	if err != nil {
		t.Fatalf("discoverAlbums failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if len(albums) != 2 {
		t.Fatalf("expected 2 albums, got %d: %+v", len(albums), albums)
	}
	dsom := albums[0]
	if dsom.Name != "1973 - The Dark Side of the Moon" || dsom.RelPath != dsom.Name {
		t.Errorf("first album = %q at %q", dsom.Name, dsom.RelPath)
	}
	if dsom.Tracks != 2 || dsom.Primary != "MP3" {
		t.Errorf("dark side: %d tracks, format %q, expected 2 tracks MP3", dsom.Tracks, dsom.Primary)
	}

	wall := albums[1]
	if wall.Tracks != 2 {
		t.Errorf("the wall: %d tracks, expected 2", wall.Tracks)
	}
	// One mp3 and one flac: ties go to the smaller extension
	if wall.Primary != "FLAC" {
		t.Errorf("the wall format = %q, expected FLAC", wall.Primary)
	}
	wantGallery := []string{"1979 - The Wall/cover.jpg"}
	if len(wall.Gallery) != 1 || wall.Gallery[0] != wantGallery[0] {
		t.Errorf("the wall gallery = %v, expected %v", wall.Gallery, wantGallery)
	}

	if len(gallery) != 1 || gallery[0] != "band.jpg" {
		t.Errorf("band gallery = %v, expected [band.jpg]", gallery)
	}
}

func TestDiscoverAlbumsTypeFolders(t *testing.T) {
	band := t.TempDir()
	writeTracks(t, filepath.Join(band, "Album", "1992 - Images and Words"), 2, ".mp3")
	writeTracks(t, filepath.Join(band, "Live", "1993 - Live at the Marquee"), 1, ".mp3")
	if err := os.MkdirAll(filepath.Join(band, "Demo"), 0o755); err != nil {
		t.Fatalf("failed to create Demo: %v", err)
	}

	albums, _, _, err := discoverAlbums(band)
	if err != nil {
		t.Fatalf("discoverAlbums failed: %v", err)
	}
	if len(albums) != 2 {
		t.Fatalf("expected 2 albums, got %d: %+v", len(albums), albums)
	}

	iw := albums[0]
	if iw.RelPath != "Album/1992 - Images and Words" {
		t.Errorf("relpath = %q", iw.RelPath)
	}
	if iw.ParentType != model.TypeAlbum {
		t.Errorf("parent type = %q, expected %q", iw.ParentType, model.TypeAlbum)
	}

	live := albums[1]
	if live.ParentType != model.TypeLive {
		t.Errorf("parent type = %q, expected %q", live.ParentType, model.TypeLive)
	}
	if live.Name != "1993 - Live at the Marquee" {
		t.Errorf("name = %q", live.Name)
	}
}

func TestTypeFolderWithDirectMusic(t *testing.T) {
	band := t.TempDir()
	writeTracks(t, filepath.Join(band, "Live"), 2, ".mp3")

	albums, _, _, err := discoverAlbums(band)
	if err != nil {
		t.Fatalf("discoverAlbums failed: %v", err)
	}
	if len(albums) != 1 {
		t.Fatalf("expected 1 album, got %d", len(albums))
	}
	if albums[0].Name != "Live" || albums[0].RelPath != "Live" {
		t.Errorf("album = %q at %q, expected Live", albums[0].Name, albums[0].RelPath)
	}
	if albums[0].ParentType != "" {
		t.Errorf("parent type = %q, expected none", albums[0].ParentType)
	}
	if albums[0].Tracks != 2 {
		t.Errorf("tracks = %d, expected 2", albums[0].Tracks)
	}
}

func TestAlbumRequiresDirectMusic(t *testing.T) {
	band := t.TempDir()
	// Multi-disc layout: music sits two levels down, so the album folder
	// itself holds no direct music files.
	writeTracks(t, filepath.Join(band, "1995 - The Box Set", "CD1"), 3, ".mp3")

	albums, _, _, err := discoverAlbums(band)
	if err != nil {
		t.Fatalf("discoverAlbums failed: %v", err)
	}
	if len(albums) != 0 {
		t.Errorf("expected no albums, got %+v", albums)
	}
}

func TestPrimaryFormat(t *testing.T) {
	tests := []struct {
		name     string
		counts   map[string]int
		expected string
	}{
		{"majority", map[string]int{".mp3": 3, ".flac": 1}, "MP3"},
		{"tie", map[string]int{".mp3": 2, ".flac": 2}, "FLAC"},
		{"single", map[string]int{".ogg": 1}, "OGG"},
		{"empty", map[string]int{}, ""},
	}

	for _, tt := range tests {
		result := primaryFormat(tt.counts)
		if result != tt.expected {
			t.Errorf("%s: primaryFormat(%v) = %q, expected %q", tt.name, tt.counts, result, tt.expected)
		}
	}
}

// writeTracks creates dir and n numbered track files with the given
// extension.
func writeTracks(t *testing.T, dir string, n int, ext string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	for i := 1; i <= n; i++ {
		name := filepath.Join(dir, fmt.Sprintf("%02d - Track%s", i, ext))
		if err := os.WriteFile(name, []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}
	}
}
