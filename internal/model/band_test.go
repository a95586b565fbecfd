package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNormalizeCounts(t *testing.T) {
	b := &Band{
		BandName: "Pink Floyd",
		Albums: []Album{
			{AlbumName: "The Wall", FolderPath: "1979 - The Wall"},
			{AlbumName: "Animals", FolderPath: "1977 - Animals"},
		},
		AlbumsMissing: []Album{
			{AlbumName: "The Final Cut"},
		},
	}
	b.Normalize()

	if b.AlbumsCount != 3 {
		t.Errorf("AlbumsCount = %d, expected 3", b.AlbumsCount)
	}
	if b.LocalAlbumsCount != 2 {
		t.Errorf("LocalAlbumsCount = %d, expected 2", b.LocalAlbumsCount)
	}
	if b.MissingAlbumsCount != 1 {
		t.Errorf("MissingAlbumsCount = %d, expected 1", b.MissingAlbumsCount)
	}
	if b.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d, expected %d", b.SchemaVersion, CurrentSchemaVersion)
	}
}

func TestNormalizeMissingFlags(t *testing.T) {
	b := &Band{
		BandName: "Opeth",
		Albums: []Album{
			{AlbumName: "Damnation", Missing: true, FolderPath: "2003 - Damnation"},
		},
		AlbumsMissing: []Album{
			{AlbumName: "Deliverance", Missing: false, FolderPath: "stale/path", Compliance: &AlbumCompliance{Score: 90}},
		},
	}
	b.Normalize()

	if b.Albums[0].Missing {
		t.Error("local album kept missing=true after Normalize")
	}
	if !b.AlbumsMissing[0].Missing {
		t.Error("missing album kept missing=false after Normalize")
	}
	if b.AlbumsMissing[0].FolderPath != "" {
		t.Errorf("missing album kept folder_path %q", b.AlbumsMissing[0].FolderPath)
	}
	if b.AlbumsMissing[0].Compliance != nil {
		t.Error("missing album kept compliance block")
	}
	if b.Albums[0].Type != TypeAlbum {
		t.Errorf("empty type = %q, expected %q", b.Albums[0].Type, TypeAlbum)
	}
}

func TestNormalizeEmptyArrays(t *testing.T) {
	b := NewBand("Katatonia")

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)

	for _, field := range []string{`"genres":[]`, `"members":[]`, `"albums":[]`, `"albums_missing":[]`, `"gallery":[]`} {
		if !strings.Contains(s, field) {
			t.Errorf("marshaled band missing %s in %s", field, s)
		}
	}
	if strings.Contains(s, "null") {
		t.Errorf("marshaled band contains null arrays: %s", s)
	}
}

func TestTracksCountZeroSurvivesRoundTrip(t *testing.T) {
	a := Album{AlbumName: "Silence"}
	a.SetTracks(0)

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"tracks_count":0`) {
		t.Errorf("tracks_count=0 not serialized: %s", data)
	}

	var back Album
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Tracks() != 0 {
		t.Errorf("Tracks() = %d after round trip, expected 0", back.Tracks())
	}

	var unknown Album
	if err := json.Unmarshal([]byte(`{"album_name":"x"}`), &unknown); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if unknown.Tracks() != -1 {
		t.Errorf("Tracks() = %d for absent count, expected -1", unknown.Tracks())
	}
}

func TestZeroRateOmitted(t *testing.T) {
	b := NewBand("Ulver")
	b.Analyze = &BandAnalysis{Rate: 0, Review: "strange trajectory"}
	b.Normalize()

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"rate"`) {
		t.Errorf("zero rate serialized: %s", data)
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score    int
		expected ComplianceLevel
	}{
		{100, ComplianceExcellent},
		{90, ComplianceExcellent},
		{89, ComplianceGood},
		{75, ComplianceGood},
		{74, ComplianceFair},
		{60, ComplianceFair},
		{59, CompliancePoor},
		{40, CompliancePoor},
		{39, ComplianceCritical},
		{0, ComplianceCritical},
	}
	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.expected {
			t.Errorf("LevelForScore(%d) = %q, expected %q", tt.score, got, tt.expected)
		}
	}
}

func TestConsistencyForScore(t *testing.T) {
	tests := []struct {
		score    int
		expected ConsistencyLevel
	}{
		{95, ConsistencyConsistent},
		{90, ConsistencyConsistent},
		{89, ConsistencyMostlyConsistent},
		{70, ConsistencyMostlyConsistent},
		{69, ConsistencyInconsistent},
		{50, ConsistencyInconsistent},
		{49, ConsistencyPoor},
		{30, ConsistencyPoor},
		{29, ConsistencyUnknown},
	}
	for _, tt := range tests {
		if got := ConsistencyForScore(tt.score); got != tt.expected {
			t.Errorf("ConsistencyForScore(%d) = %q, expected %q", tt.score, got, tt.expected)
		}
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	s := Timestamp(now)
	if s != "2025-06-01T12:30:00Z" {
		t.Errorf("Timestamp = %q", s)
	}
	if got := ParseTimestamp(s); !got.Equal(now) {
		t.Errorf("ParseTimestamp(%q) = %v, expected %v", s, got, now)
	}
	if !ParseTimestamp("").IsZero() {
		t.Error("ParseTimestamp(\"\") not zero")
	}
	if !ParseTimestamp("not a time").IsZero() {
		t.Error("ParseTimestamp of garbage not zero")
	}
}

func TestCollectionIndexUpsert(t *testing.T) {
	ci := NewCollectionIndex()
	ci.Upsert(BandIndexEntry{BandName: "Zeal", AlbumsCount: 1})
	ci.Upsert(BandIndexEntry{BandName: "Ardor", AlbumsCount: 2})
	ci.Upsert(BandIndexEntry{BandName: "Zeal", AlbumsCount: 3})

	if len(ci.Bands) != 2 {
		t.Fatalf("len(Bands) = %d, expected 2", len(ci.Bands))
	}
	if e := ci.FindBand("Zeal"); e == nil || e.AlbumsCount != 3 {
		t.Errorf("upsert did not replace existing entry: %+v", e)
	}

	ci.Normalize()
	if ci.Bands[0].BandName != "Ardor" {
		t.Errorf("Normalize did not sort entries: %+v", ci.Bands)
	}

	if !ci.Remove("Zeal") {
		t.Error("Remove(Zeal) = false")
	}
	if ci.Remove("Zeal") {
		t.Error("second Remove(Zeal) = true")
	}
	if len(ci.Bands) != 1 {
		t.Errorf("len(Bands) = %d after remove, expected 1", len(ci.Bands))
	}
}
