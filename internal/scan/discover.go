package scan

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/parse"
	"github.com/franz/music-indexer/internal/util"
)

// MusicExtensions are the recognized music file extensions.
var MusicExtensions = []string{
	".mp3",
	".flac",
	".wav",
	".aac",
	".m4a",
	".ogg",
	".wma",
	".mp4",
	".m4p",
}

// ImageExtensions are the image extensions collected into galleries.
var ImageExtensions = []string{
	".jpg",
	".jpeg",
	".png",
	".gif",
	".webp",
	".bmp",
}

// DefaultExcludedFolders are root-level folder names never treated as
// band folders. Dotted names are excluded separately.
var DefaultExcludedFolders = []string{
	"tmp",
	"temp",
	"incoming",
	"unsorted",
	"lost+found",
	"@eaDir",
	"$RECYCLE.BIN",
	"System Volume Information",
}

var (
	musicExts = extensionMap(MusicExtensions)
	imageExts = extensionMap(ImageExtensions)
)

func extensionMap(exts []string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, ext := range exts {
		m[strings.ToLower(ext)] = true
	}
	return m
}

// IsMusicFile reports whether a file name has a recognized music
// extension (case-insensitive).
func IsMusicFile(name string) bool {
	return musicExts[strings.ToLower(filepath.Ext(name))]
}

// IsImageFile reports whether a file name has a gallery image extension.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// BandFolder is a candidate band directory under the collection root.
type BandFolder struct {
	Name  string
	Path  string
	MTime time.Time
}

// DiscoverBands lists candidate band folders: immediate subdirectories
// of root whose names are not dotted and not in the exclusion set.
// Whether a candidate really is a band is decided later, when its album
// folders are enumerated.
func DiscoverBands(root string, exclude map[string]bool) ([]BandFolder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading collection root %s: %v", util.ErrScan, root, err)
	}

	var bands []BandFolder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || exclude[strings.ToLower(name)] {
			continue
		}

		var mtime time.Time
		if info, err := e.Info(); err == nil {
			mtime = info.ModTime()
		}
		bands = append(bands, BandFolder{
			Name:  name,
			Path:  filepath.Join(root, name),
			MTime: mtime,
		})
	}

	sort.Slice(bands, func(i, j int) bool { return bands[i].Name < bands[j].Name })
	return bands, nil
}

// albumInfo is one album folder found inside a band folder, with its
// direct contents already counted. AccessErr marks folders that could
// not be read; those become placeholder albums.
type albumInfo struct {
	Name       string
	RelPath    string // relative to the band folder, slash-separated
	ParentType model.AlbumType
	Tracks     int
	Primary    string
	Gallery    []string
	AccessErr  error
}

// discoverAlbums enumerates the album folders of one band directory.
// Direct subdirectories holding music are albums; subdirectories named
// after an album type are descended one level. Images directly in the
// band folder form the band gallery. Returned warnings are non-fatal.
func discoverAlbums(bandDir string) (albums []albumInfo, bandGallery []string, warnings []string, err error) {
	entries, err := os.ReadDir(bandDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: reading band folder %s: %v", util.ErrScan, bandDir, err)
	}

	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			if IsImageFile(name) {
				bandGallery = append(bandGallery, name)
			}
			continue
		}
		if strings.HasPrefix(name, ".") || strings.TrimSpace(name) == "" {
			continue
		}

		if t, ok := parse.TypeFolder(name); ok {
			sub, subWarnings := typeFolderAlbums(bandDir, name, t)
			albums = append(albums, sub...)
			warnings = append(warnings, subWarnings...)
			continue
		}

		if a, ok := readAlbumDir(bandDir, name, name, ""); ok {
			albums = append(albums, a)
		}
	}

	sort.Slice(albums, func(i, j int) bool { return albums[i].RelPath < albums[j].RelPath })
	sort.Strings(bandGallery)
	return albums, bandGallery, warnings, nil
}

// typeFolderAlbums descends one level into a type folder. A type folder
// holding music directly and no album subfolders is itself treated as
// an album with that name.
func typeFolderAlbums(bandDir, typeName string, t model.AlbumType) (albums []albumInfo, warnings []string) {
	typePath := filepath.Join(bandDir, typeName)
	entries, err := os.ReadDir(typePath)
	if err != nil {
		return nil, []string{fmt.Sprintf("type folder %s unreadable: %v", typeName, err)}
	}

	directTracks := 0
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			if IsMusicFile(name) {
				directTracks++
			}
			continue
		}
		if strings.HasPrefix(name, ".") || strings.TrimSpace(name) == "" {
			continue
		}
		if a, ok := readAlbumDir(bandDir, path.Join(typeName, name), name, t); ok {
			albums = append(albums, a)
		}
	}

	if len(albums) == 0 && directTracks > 0 {
		if a, ok := readAlbumDir(bandDir, typeName, typeName, ""); ok {
			albums = append(albums, a)
		}
	}
	return albums, warnings
}

// readAlbumDir inspects one candidate album directory. It returns
// false for readable directories holding no music; unreadable ones are
// kept with AccessErr set so a placeholder album can be emitted.
func readAlbumDir(bandDir, relPath, name string, parentType model.AlbumType) (albumInfo, bool) {
	a := albumInfo{
		Name:       name,
		RelPath:    relPath,
		ParentType: parentType,
	}

	entries, err := os.ReadDir(filepath.Join(bandDir, relPath))
	if err != nil {
		a.AccessErr = err
		return a, true
	}

	counts := map[string]int{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fileName := e.Name()
		ext := strings.ToLower(filepath.Ext(fileName))
		switch {
		case musicExts[ext]:
			counts[ext]++
			a.Tracks++
		case imageExts[ext]:
			a.Gallery = append(a.Gallery, path.Join(relPath, fileName))
		}
	}

	if a.Tracks == 0 {
		return albumInfo{}, false
	}
	a.Primary = primaryFormat(counts)
	sort.Strings(a.Gallery)
	return a, true
}

// primaryFormat picks the majority extension, uppercased without the
// dot. Ties go to the lexicographically smallest extension.
func primaryFormat(counts map[string]int) string {
	best := ""
	bestCount := 0
	for ext, n := range counts {
		if n > bestCount || (n == bestCount && (best == "" || ext < best)) {
			best = ext
			bestCount = n
		}
	}
	if best == "" {
		return ""
	}
	return strings.ToUpper(strings.TrimPrefix(best, "."))
}
