package index

import (
	"math"
	"sort"

	"github.com/franz/music-indexer/internal/model"
)

// Entry builds the index row for one band document.
func Entry(band *model.Band, folderPath, lastScanned string) model.BandIndexEntry {
	return model.BandIndexEntry{
		BandName:      band.BandName,
		FolderPath:    folderPath,
		AlbumsCount:   band.AlbumsCount,
		LocalAlbums:   band.LocalAlbumsCount,
		MissingAlbums: band.MissingAlbumsCount,
		HasMetadata:   true,
		HasAnalysis:   band.HasAnalysis(),
		LastUpdated:   band.LastUpdated,
		LastScanned:   lastScanned,
	}
}

// Stats derives collection-wide statistics from the index entries.
func Stats(entries []model.BandIndexEntry) model.CollectionStats {
	st := model.CollectionStats{TotalBands: len(entries)}

	counts := make([]int, 0, len(entries))
	for _, e := range entries {
		st.TotalAlbums += e.AlbumsCount
		st.TotalMissingAlbums += e.MissingAlbums
		if e.HasMetadata {
			st.BandsWithMetadata++
		}
		if e.HasAnalysis {
			st.BandsWithAnalysis++
		}
		counts = append(counts, e.AlbumsCount)
	}

	if st.TotalAlbums == 0 {
		// nothing to complete
		st.CompletionPercentage = 100
		st.CompletionUndefined = true
	} else {
		local := st.TotalAlbums - st.TotalMissingAlbums
		st.CompletionPercentage = round1(float64(local) / float64(st.TotalAlbums) * 100)
	}

	if len(counts) > 0 {
		sort.Ints(counts)
		st.MinAlbumsPerBand = counts[0]
		st.MaxAlbumsPerBand = counts[len(counts)-1]
		sum := 0
		for _, c := range counts {
			sum += c
		}
		st.AvgAlbumsPerBand = round1(float64(sum) / float64(len(counts)))
		st.MedianAlbumsPerBand = median(counts)
	}
	return st
}

// Rebuild assembles a fresh index from band entries, replacing
// whatever the previous scans accumulated.
func Rebuild(entries []model.BandIndexEntry, lastScan string) *model.CollectionIndex {
	idx := model.NewCollectionIndex()
	for _, e := range entries {
		idx.Upsert(e)
	}
	idx.Normalize()
	idx.Stats = Stats(idx.Bands)
	idx.LastScan = lastScan
	return idx
}

// Refresh recomputes the stats of an index after entry changes.
func Refresh(idx *model.CollectionIndex) {
	idx.Normalize()
	idx.Stats = Stats(idx.Bands)
}

// SameContent reports whether two indexes carry the same entries and
// stats, ignoring scan timestamps. A no-op rescan must not rewrite the
// index file.
func SameContent(a, b *model.CollectionIndex) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.Bands) != len(b.Bands) || a.Stats != b.Stats {
		return false
	}
	for i := range a.Bands {
		x, y := a.Bands[i], b.Bands[i]
		x.LastScanned, y.LastScanned = "", ""
		if x != y {
			return false
		}
	}
	return true
}

// median of a sorted int slice.
func median(sorted []int) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return round1(float64(sorted[n/2-1]+sorted[n/2]) / 2)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
