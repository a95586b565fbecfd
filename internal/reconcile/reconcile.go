package reconcile

import (
	"github.com/agnivade/levenshtein"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/structure"
)

// Result is the outcome of merging one band's stored metadata with the
// albums discovered on disk.
type Result struct {
	Local   []model.Album
	Missing []model.Album

	// MissingPaths suggests where each missing album would live if it
	// were acquired, keyed by album name. Not persisted.
	MissingPaths map[string]string

	Matched       int // stored albums found on disk
	MarkedMissing int // stored albums absent from disk
	Added         int // physical albums with no stored entry
}

// Merge reconciles stored metadata albums against the physical albums
// found by a scan. Stored entries stay canonical: their spelling, year
// and enrichment fields win, while filesystem facts (type, location,
// track count, compliance) come from disk. Stored albums with no
// matching folder move to the missing list; folders with no stored
// entry are adopted as new local albums.
func Merge(stored []model.Album, physical []model.Album, structureType model.StructureType) Result {
	res := Result{
		Local:        []model.Album{},
		Missing:      []model.Album{},
		MissingPaths: map[string]string{},
	}

	used := make([]bool, len(physical))
	byKey := map[string][]int{}
	for i, p := range physical {
		key := NormalizeName(p.AlbumName)
		byKey[key] = append(byKey[key], i)
	}

	for _, s := range stored {
		idx := matchPhysical(s, physical, byKey[NormalizeName(s.AlbumName)], used)
		if idx < 0 {
			missing := s
			missing.Missing = true
			missing.FolderPath = ""
			missing.Compliance = nil
			missing.PrimaryFormat = ""
			res.Missing = append(res.Missing, missing)
			if p := structure.MissingAlbumPath(missing, structureType); p != "" {
				res.MissingPaths[missing.AlbumName] = p
			}
			res.MarkedMissing++
			continue
		}
		used[idx] = true
		res.Local = append(res.Local, mergeAlbum(s, physical[idx]))
		res.Matched++
	}

	for i, p := range physical {
		if !used[i] {
			res.Local = append(res.Local, p)
			res.Added++
		}
	}
	return res
}

// matchPhysical picks the best unused physical candidate for a stored
// album. Normalization collisions are broken by raw-name edit distance
// against the stored spelling.
func matchPhysical(stored model.Album, physical []model.Album, candidates []int, used []bool) int {
	best := -1
	bestDist := 0
	for _, i := range candidates {
		if used[i] {
			continue
		}
		d := levenshtein.ComputeDistance(stored.AlbumName, physical[i].AlbumName)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// mergeAlbum combines one stored album with its physical counterpart.
func mergeAlbum(stored, physical model.Album) model.Album {
	out := stored
	out.Missing = false
	out.Type = physical.Type
	out.FolderPath = physical.FolderPath
	out.Compliance = physical.Compliance
	out.PrimaryFormat = physical.PrimaryFormat
	out.Gallery = physical.Gallery

	if out.Year == "" {
		out.Year = physical.Year
	}
	if physical.Edition != "" {
		out.Edition = physical.Edition
	}
	if len(out.Genres) == 0 {
		out.Genres = physical.Genres
	}
	if physical.TracksCount != nil {
		out.TracksCount = physical.TracksCount
	}
	return out
}
