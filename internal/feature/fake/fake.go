// ABOUTME: Deterministic fake Extractor used by the pipeline's own tests and by consumers'
// ABOUTME: Pins features per path so the suite can assert exact cache contents without real DSP

// Package fake provides a deterministic feature.Extractor for tests: every
// path is mapped to a pinned Features value (or a pinned error), with no
// randomness and no real signal processing.
package fake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"crateforge/internal/feature"
	"crateforge/internal/track"
)

// Extractor returns a pinned Features or error per path, simulating a
// per-file processing delay. It is safe for concurrent use.
type Extractor struct {
	mu      sync.RWMutex
	results map[string]track.Features
	errs    map[string]error
	delay   time.Duration

	calls atomic.Int64
}

// New builds a fake Extractor. delay simulates per-file processing latency,
// e.g. for cancellation tests.
func New(delay time.Duration) *Extractor {
	return &Extractor{
		results: make(map[string]track.Features),
		errs:    make(map[string]error),
		delay:   delay,
	}
}

// Pin registers the Features Extract should return for path.
func (e *Extractor) Pin(path string, f track.Features) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[path] = f
}

// PinError registers the error Extract should return for path.
func (e *Extractor) PinError(path string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[path] = err
}

// Calls reports how many times Extract has been invoked, for assertions
// like "no extractor calls on a cache hit".
func (e *Extractor) Calls() int64 {
	return e.calls.Load()
}

func (e *Extractor) Extract(ctx context.Context, path string, _ feature.Options) (track.Features, error) {
	e.calls.Add(1)

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return track.Features{}, ctx.Err()
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if err, ok := e.errs[path]; ok {
		return track.Features{}, err
	}

	if f, ok := e.results[path]; ok {
		return f, nil
	}

	return track.Features{}, feature.UnsupportedFormat(path)
}

// WithDefaultTimeseries fills in a flat energy_timeseries of the given
// duration at feature.DefaultSampleStride, for callers that only care
// about bpm/key/energy and want the schema invariant satisfied for free.
func WithDefaultTimeseries(f track.Features, durationSeconds float64) track.Features {
	n := int(durationSeconds/feature.DefaultSampleStride) + 1
	if n < 8 {
		n = 8
	}

	samples := make([]track.EnergySample, n)
	for i := range samples {
		samples[i] = track.EnergySample{T: float64(i) * feature.DefaultSampleStride, V: f.Energy}
	}

	f.EnergyTimeseries = samples
	return f
}
