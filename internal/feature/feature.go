// ABOUTME: The boundary contract toward the external low-level feature extractor
// ABOUTME: Extraction itself (the DSP) lives outside the core; this only defines the call shape

// Package feature defines the adapter boundary toward the external,
// out-of-scope DSP feature extractor. The extractor is treated purely as a
// function from (path, options) to a Features value or a classified error;
// nothing in this package performs signal processing itself.
package feature

import (
	"context"
	"time"

	"crateforge/internal/track"
)

// DefaultSampleStride is the fixed stride, in seconds, used when an
// extractor implementation samples a track's energy curve. The source
// material left the stride unspecified beyond "at least 8 samples"; this
// pins one concrete choice so stored timeseries are comparable across
// tracks and extractor implementations.
const DefaultSampleStride = 0.5

// DefaultAnalysisTimeout bounds a single Extract call; exceeding it must
// surface as a Timeout error.
const DefaultAnalysisTimeout = 300 * time.Second

// Options carries the knobs an Extract call is allowed to vary on.
type Options struct {
	// Timeout overrides DefaultAnalysisTimeout for this call when non-zero.
	Timeout time.Duration
}

// Extractor is the boundary interface the WorkerPool calls into. A real
// implementation wraps an external DSP library or subprocess; this package
// only promises the contract and a deterministic fake for tests.
type Extractor interface {
	// Extract analyzes the file at path and returns its Features, or a
	// classified error. Implementations must honor ctx cancellation at
	// their own suspension points but MAY let in-flight CPU-bound work run
	// to completion; the caller discards results after cancellation.
	Extract(ctx context.Context, path string, opts Options) (track.Features, error)
}

// ValidateFeatures checks the numeric-range invariants the store enforces
// on every extracted Features value before it is ever persisted.
func ValidateFeatures(f track.Features) error {
	if f.BPM < 40.0 || f.BPM > 240.0 {
		return rangeErrorf("bpm", f.BPM, 40.0, 240.0)
	}

	for name, v := range map[string]float64{
		"energy":           f.Energy,
		"valence":          f.Valence,
		"danceability":     f.Danceability,
		"acousticness":     f.Acousticness,
		"instrumentalness": f.Instrumentalness,
	} {
		if v < 0.0 || v > 1.0 {
			return rangeErrorf(name, v, 0.0, 1.0)
		}
	}

	if len(f.EnergyTimeseries) < 8 {
		return countErrorf(len(f.EnergyTimeseries))
	}

	prevT := -1.0
	for _, sample := range f.EnergyTimeseries {
		if sample.T < prevT {
			return monotonicErrorf()
		}
		prevT = sample.T
	}

	if !f.KeyCamelotConsistent() {
		return keyMismatchErrorf(f.Key, f.Camelot.String())
	}

	return nil
}
