// ABOUTME: Shared domain types for tracks, extracted features, and cache entries
// ABOUTME: Adapted from the teacher's playlist.Track, split into tag data and analysis data

// Package track defines the data model shared by the feature store, the
// analysis pipeline, and the playlist engine: the Track itself, the
// Features an extractor produces, and the on-disk CacheEntry shape.
package track

import (
	"time"

	"crateforge/internal/camelot"
	"crateforge/internal/mood"
)

// Track is the unit of the library. Path is its primary identity for
// external references; ContentID is the cache's primary key.
type Track struct {
	Path      string `json:"path"`
	ContentID string `json:"content_id,omitempty"`

	FileSize        int64   `json:"file_size"`
	ModTime         int64   `json:"mtime"`
	Format          string  `json:"format"`
	Bitrate         int     `json:"bitrate,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`

	Title  *string `json:"title,omitempty"`
	Artist *string `json:"artist,omitempty"`
	Album  *string `json:"album,omitempty"`
	Year   *int    `json:"year,omitempty"`

	Features   *Features  `json:"features,omitempty"`
	AnalysedAt *time.Time `json:"analysed_at,omitempty"`

	// Index is this track's position in whatever candidate slice it was
	// drawn from; the playlist engine sets it when filtering its pool and
	// does not read it back.
	Index int `json:"-"`
}

// EnergySample is one (t_seconds, energy) point of a track's energy curve.
type EnergySample struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// Confidence is a closed per-field confidence record; it is never an open
// map so a caller can't silently introduce an untracked field.
type Confidence struct {
	BPM    float64 `json:"bpm"`
	Key    float64 `json:"key"`
	Energy float64 `json:"energy"`
	Mood   float64 `json:"mood"`
}

// Features is everything the extractor produces for one track. It is
// immutable once written to the cache.
type Features struct {
	BPM     float64     `json:"bpm"`
	Key     string      `json:"key"`
	Camelot camelot.Key `json:"camelot"`

	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Danceability     float64 `json:"danceability"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`

	Mood       mood.Tag    `json:"mood"`
	MoodScores mood.Scores `json:"mood_scores"`

	EnergyTimeseries []EnergySample `json:"energy_timeseries"`

	Confidence Confidence `json:"confidence"`

	AnalysisVersion int `json:"analysis_version"`
}

// CacheEntry is the on-disk materialization of a track's analysis result,
// keyed by content id. path_at_write is retained for diagnostics; the path
// index, not this field, is authoritative for path -> content_id lookups.
type CacheEntry struct {
	ContentID       string    `json:"content_id"`
	PathAtWrite     string    `json:"path_at_write"`
	FileSize        int64     `json:"file_size"`
	ModTime         int64     `json:"mtime"`
	AnalysisVersion int       `json:"analysis_version"`
	AnalysedAt      time.Time `json:"analysed_at"`
	Features        Features  `json:"features"`
}

// CurrentAnalysisVersion is bumped whenever the extraction contract or
// feature schema changes in a way that invalidates previously written
// cache entries.
const CurrentAnalysisVersion = 1

// KeyCamelotConsistent reports whether a Features' Key and Camelot fields
// are two views of the same musical key, the invariant the store enforces
// as fatal on mismatch.
func (f Features) KeyCamelotConsistent() bool {
	if f.Key == "" || f.Camelot.IsZero() {
		return f.Key == "" && f.Camelot.IsZero()
	}

	name, err := f.Camelot.KeyName()
	if err != nil {
		return false
	}

	return name == f.Key
}
