// Package insights computes collection-wide analytics from the index
// and the per-band metadata documents: album type distribution,
// discography diversity, compliance spread, and an overall maturity
// grade for the collection.
package insights

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/franz/music-indexer/internal/model"
	"github.com/franz/music-indexer/internal/storage"
	"github.com/franz/music-indexer/internal/util"
)

// Maturity component weights. Size dominates, completeness matters
// least: a small but complete collection is still a small collection.
const (
	weightSize         = 0.30
	weightDiversity    = 0.25
	weightStructure    = 0.20
	weightMetadata     = 0.15
	weightCompleteness = 0.10
)

// sizeCeiling is the band count at which the size component saturates.
const sizeCeiling = 500

// wellRoundedTypes is how many distinct album types a band needs
// before its discography counts as well rounded.
const wellRoundedTypes = 4

// TypeCount is one album type's share of the collection.
type TypeCount struct {
	Type       model.AlbumType `json:"type"`
	Count      int             `json:"count"`
	BandCount  int             `json:"band_count"`
	Percentage float64         `json:"percentage"`
}

// TypeDistribution breaks the collection down by album type. ByDecade
// maps a decade label ("1970s") to per-type counts; albums without a
// four-digit year are left out of the matrix.
type TypeDistribution struct {
	TotalAlbums int                       `json:"total_albums"`
	Types       []TypeCount               `json:"types"`
	ByDecade    map[string]map[string]int `json:"by_decade"`
}

// TypeOpportunity lists the bands whose discography lacks a type.
type TypeOpportunity struct {
	Type  model.AlbumType `json:"type"`
	Bands []string        `json:"bands"`
}

// Diversity describes how varied each band's discography is.
type Diversity struct {
	TypesPresentInBand map[string]int    `json:"types_present_in_band"`
	AvgTypesPerBand    float64           `json:"avg_types_per_band"`
	WellRoundedBands   int               `json:"well_rounded_bands"`
	Opportunities      []TypeOpportunity `json:"missing_opportunities"`
}

// LevelCount is one compliance level's album count.
type LevelCount struct {
	Level model.ComplianceLevel `json:"level"`
	Count int                   `json:"count"`
}

// ComplianceDistribution aggregates album compliance levels and the
// spread of per-band consistency scores.
type ComplianceDistribution struct {
	Levels            []LevelCount `json:"levels"`
	AlbumsScored      int          `json:"albums_scored"`
	BandsAnalyzed     int          `json:"bands_analyzed"`
	MeanConsistency   float64      `json:"mean_consistency_score"`
	MedianConsistency float64      `json:"median_consistency_score"`
	StdevConsistency  float64      `json:"stdev_consistency_score"`
}

// Maturity grades the collection 0..100 from five weighted components.
type Maturity struct {
	Score        float64 `json:"score"`
	Level        string  `json:"level"`
	Size         float64 `json:"size_component"`
	Diversity    float64 `json:"diversity_component"`
	Structure    float64 `json:"structure_component"`
	Metadata     float64 `json:"metadata_component"`
	Completeness float64 `json:"completeness_component"`
}

// CollectionAnalytics is the full analytics report.
type CollectionAnalytics struct {
	GeneratedAt string                 `json:"generated_at"`
	TotalBands  int                    `json:"total_bands"`
	TotalAlbums int                    `json:"total_albums"`
	Types       TypeDistribution       `json:"type_distribution"`
	Diversity   Diversity              `json:"diversity"`
	Compliance  ComplianceDistribution `json:"compliance"`
	Maturity    Maturity               `json:"maturity"`
	HealthScore float64                `json:"health_score"`
	Stats       model.CollectionStats  `json:"stats"`
}

// Engine runs analytics over a metadata store.
type Engine struct {
	store *storage.Store
}

// New returns an analytics engine backed by the given store.
func New(store *storage.Store) *Engine {
	return &Engine{store: store}
}

// Analyze sweeps every indexed band and assembles the analytics
// report. Bands whose metadata cannot be loaded are skipped with a
// warning rather than failing the whole analysis.
func (e *Engine) Analyze(ctx context.Context) (*CollectionAnalytics, error) {
	idx, err := e.store.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}

	bands := make([]*model.Band, 0, len(idx.Bands))
	for _, entry := range idx.Bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		band, err := e.store.LoadBand(ctx, entry.BandName)
		if err != nil {
			util.WarnLog("Insights: skipping %s: %v", entry.BandName, err)
			continue
		}
		bands = append(bands, band)
	}

	a := &CollectionAnalytics{
		GeneratedAt: model.Timestamp(time.Now()),
		TotalBands:  idx.Stats.TotalBands,
		TotalAlbums: idx.Stats.TotalAlbums,
		Stats:       idx.Stats,
	}
	a.Types = gatherTypeDistribution(bands)
	a.Diversity = gatherDiversity(bands)
	a.Compliance = gatherCompliance(bands)
	a.Maturity = gatherMaturity(idx.Stats, bands)
	a.HealthScore = round1((a.Maturity.Structure + a.Maturity.Completeness +
		a.Maturity.Diversity + a.Maturity.Metadata) / 4)
	return a, nil
}

// SaveInsight stores an externally computed insight payload in the
// collection index. The payload is kept verbatim.
func (e *Engine) SaveInsight(ctx context.Context, payload map[string]any) (*model.CollectionInsight, error) {
	ins := &model.CollectionInsight{
		GeneratedAt: model.Timestamp(time.Now()),
		Insights:    payload,
	}
	if ins.Insights == nil {
		ins.Insights = map[string]any{}
	}
	_, err := e.store.UpdateIndex(ctx, func(idx *model.CollectionIndex) (bool, error) {
		idx.Insights = ins
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return ins, nil
}

// Saved returns the last stored insight payload, or nil when none has
// been saved yet.
func (e *Engine) Saved(ctx context.Context) (*model.CollectionInsight, error) {
	idx, err := e.store.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Insights, nil
}

func gatherTypeDistribution(bands []*model.Band) TypeDistribution {
	dist := TypeDistribution{
		Types:    []TypeCount{},
		ByDecade: map[string]map[string]int{},
	}

	counts := make(map[model.AlbumType]int)
	bandCounts := make(map[model.AlbumType]int)
	for _, band := range bands {
		seen := make(map[model.AlbumType]bool)
		for _, album := range band.AllAlbums() {
			counts[album.Type]++
			seen[album.Type] = true
			dist.TotalAlbums++
			if decade := decadeOf(album.Year); decade != "" {
				row := dist.ByDecade[decade]
				if row == nil {
					row = make(map[string]int)
					dist.ByDecade[decade] = row
				}
				row[string(album.Type)]++
			}
		}
		for t := range seen {
			bandCounts[t]++
		}
	}

	for _, t := range model.AlbumTypes() {
		n := counts[t]
		if n == 0 {
			continue
		}
		dist.Types = append(dist.Types, TypeCount{
			Type:       t,
			Count:      n,
			BandCount:  bandCounts[t],
			Percentage: round1(float64(n) / float64(dist.TotalAlbums) * 100),
		})
	}

	// Largest share first
	sort.Slice(dist.Types, func(i, j int) bool {
		if dist.Types[i].Count != dist.Types[j].Count {
			return dist.Types[i].Count > dist.Types[j].Count
		}
		return dist.Types[i].Type < dist.Types[j].Type
	})
	return dist
}

func gatherDiversity(bands []*model.Band) Diversity {
	div := Diversity{
		TypesPresentInBand: make(map[string]int),
		Opportunities:      []TypeOpportunity{},
	}

	present := make(map[string]map[model.AlbumType]bool, len(bands))
	totalTypes := 0
	for _, band := range bands {
		seen := make(map[model.AlbumType]bool)
		for _, album := range band.AllAlbums() {
			seen[album.Type] = true
		}
		present[band.BandName] = seen
		div.TypesPresentInBand[band.BandName] = len(seen)
		totalTypes += len(seen)
		if len(seen) >= wellRoundedTypes {
			div.WellRoundedBands++
		}
	}
	if len(bands) > 0 {
		div.AvgTypesPerBand = round1(float64(totalTypes) / float64(len(bands)))
	}

	// Bands with no albums at all would show up under every type, so
	// they are left out of the opportunity lists.
	for _, t := range model.AlbumTypes() {
		var missing []string
		for _, band := range bands {
			seen := present[band.BandName]
			if len(seen) == 0 || seen[t] {
				continue
			}
			missing = append(missing, band.BandName)
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)
		div.Opportunities = append(div.Opportunities, TypeOpportunity{Type: t, Bands: missing})
	}
	return div
}

func gatherCompliance(bands []*model.Band) ComplianceDistribution {
	comp := ComplianceDistribution{Levels: []LevelCount{}}

	levelCounts := make(map[model.ComplianceLevel]int)
	var scores []int
	for _, band := range bands {
		for _, album := range band.Albums {
			if album.Compliance == nil {
				continue
			}
			levelCounts[album.Compliance.Level]++
			comp.AlbumsScored++
		}
		if band.FolderStructure != nil {
			scores = append(scores, band.FolderStructure.ConsistencyScore)
			comp.BandsAnalyzed++
		}
	}

	for _, l := range model.ComplianceLevels() {
		if n := levelCounts[l]; n > 0 {
			comp.Levels = append(comp.Levels, LevelCount{Level: l, Count: n})
		}
	}
	if len(scores) > 0 {
		comp.MeanConsistency = round1(mean(scores))
		comp.MedianConsistency = round1(median(scores))
		comp.StdevConsistency = round1(stdev(scores))
	}
	return comp
}

func gatherMaturity(stats model.CollectionStats, bands []*model.Band) Maturity {
	m := Maturity{Level: maturityLevel(0)}
	if stats.TotalBands == 0 {
		return m
	}

	size := sizeComponent(stats.TotalBands)

	totalTypes := 0
	var structScores []int
	local, missing := 0, 0
	for _, band := range bands {
		seen := make(map[model.AlbumType]bool)
		for _, album := range band.AllAlbums() {
			seen[album.Type] = true
		}
		totalTypes += len(seen)
		if band.FolderStructure != nil {
			structScores = append(structScores, band.FolderStructure.StructureScore)
		}
		local += len(band.Albums)
		missing += len(band.AlbumsMissing)
	}

	var diversity float64
	if len(bands) > 0 {
		diversity = math.Min(float64(totalTypes)/float64(len(bands))*12.5, 100)
	}
	structure := mean(structScores)
	metaFrac := float64(stats.BandsWithMetadata) / float64(stats.TotalBands)
	analysisFrac := float64(stats.BandsWithAnalysis) / float64(stats.TotalBands)
	metadata := (metaFrac + analysisFrac) / 2 * 100
	var completeness float64
	if local+missing > 0 {
		completeness = float64(local) / float64(local+missing) * 100
	}

	m.Score = round1(weightSize*size + weightDiversity*diversity + weightStructure*structure +
		weightMetadata*metadata + weightCompleteness*completeness)
	m.Level = maturityLevel(m.Score)
	m.Size = round1(size)
	m.Diversity = round1(diversity)
	m.Structure = round1(structure)
	m.Metadata = round1(metadata)
	m.Completeness = round1(completeness)
	return m
}

// sizeComponent grows logarithmically and saturates at sizeCeiling
// bands, so doubling a small collection moves the needle more than
// doubling a large one.
func sizeComponent(bands int) float64 {
	if bands <= 1 {
		return 0
	}
	c := math.Log10(float64(bands)) / math.Log10(sizeCeiling) * 100
	return math.Min(c, 100)
}

func maturityLevel(score float64) string {
	switch {
	case score >= 80:
		return "Master"
	case score >= 60:
		return "Expert"
	case score >= 40:
		return "Advanced"
	case score >= 20:
		return "Intermediate"
	default:
		return "Beginner"
	}
}

func decadeOf(year string) string {
	if len(year) != 4 {
		return ""
	}
	for _, r := range year {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return year[:3] + "0s"
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func median(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]int(nil), xs...)
	sort.Ints(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return float64(s[mid])
	}
	return float64(s[mid-1]+s[mid]) / 2
}

// stdev is the population standard deviation.
func stdev(xs []int) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := float64(x) - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
