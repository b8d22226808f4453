package analysis

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"crateforge/internal/apperror"
	"crateforge/internal/camelot"
	"crateforge/internal/feature"
	"crateforge/internal/feature/fake"
	"crateforge/internal/scanner"
	"crateforge/internal/store"
	"crateforge/internal/task"
	"crateforge/internal/track"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(t.TempDir(), 0)
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func pinnedFeatures(t *testing.T, bpm float64, key string, energy float64) track.Features {
	t.Helper()
	k, err := camelot.FromKeyName(key)
	if err != nil {
		t.Fatalf("FromKeyName(%s): %v", key, err)
	}
	f := track.Features{BPM: bpm, Key: key, Camelot: k, Energy: energy, AnalysisVersion: track.CurrentAnalysisVersion}
	return fake.WithDefaultTimeseries(f, 20)
}

func writeSeedFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func collectProgress(t *testing.T) (func(task.Progress), func() []task.Progress) {
	t.Helper()
	var seen []task.Progress
	return func(p task.Progress) { seen = append(seen, p) }, func() []task.Progress { return seen }
}

// Scenario 1: happy path, tiny library.
func TestRun_HappyPathTinyLibrary(t *testing.T) {
	dir := t.TempDir()
	a := writeSeedFile(t, dir, "a.wav", 10)
	b := writeSeedFile(t, dir, "b.wav", 20)
	c := writeSeedFile(t, dir, "c.wav", 30)

	ex := fake.New(0)
	ex.Pin(a, pinnedFeatures(t, 120, "Am", 0.4))
	ex.Pin(b, pinnedFeatures(t, 124, "Am", 0.6))
	ex.Pin(c, pinnedFeatures(t, 128, "Em", 0.8))

	s := newTestStore(t)
	update, progress := collectProgress(t)

	result, err := Run(context.Background(), scanner.Request{Directories: []string{dir}},
		Options{Extractor: ex, Store: s}, update)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary, ok := result.(Summary)
	if !ok {
		t.Fatalf("result type = %T, want Summary", result)
	}

	if summary.TotalFiles != 3 || summary.Analyzed != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 3 analyzed, 0 failed", summary)
	}

	last := progress()[len(progress())-1]
	if last.ProcessedFiles != 3 {
		t.Fatalf("final ProcessedFiles = %d, want 3", last.ProcessedFiles)
	}

	for _, p := range []string{a, b, c} {
		tr, err := s.GetByPath(p)
		if err != nil {
			t.Fatalf("GetByPath(%s): %v", p, err)
		}
		if tr.Features == nil {
			t.Fatalf("track %s has no features", p)
		}
		if tr.Features.AnalysisVersion != track.CurrentAnalysisVersion {
			t.Fatalf("track %s analysis_version = %d, want %d", p, tr.Features.AnalysisVersion, track.CurrentAnalysisVersion)
		}
	}
}

// Scenario 2: cache hit on second run, no extractor calls.
func TestRun_CacheHitOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	a := writeSeedFile(t, dir, "a.wav", 10)

	ex := fake.New(0)
	ex.Pin(a, pinnedFeatures(t, 120, "Am", 0.4))

	s := newTestStore(t)
	update, _ := collectProgress(t)

	if _, err := Run(context.Background(), scanner.Request{Directories: []string{dir}}, Options{Extractor: ex, Store: s}, update); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	callsAfterFirst := ex.Calls()

	result, err := Run(context.Background(), scanner.Request{Directories: []string{dir}}, Options{Extractor: ex, Store: s}, update)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if ex.Calls() != callsAfterFirst {
		t.Fatalf("extractor called again on cache hit: %d -> %d", callsAfterFirst, ex.Calls())
	}

	summary := result.(Summary)
	if summary.CacheHits != 1 {
		t.Fatalf("CacheHits = %d, want 1", summary.CacheHits)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.CacheHitRate != 1.0 {
		t.Fatalf("CacheHitRate = %v, want 1.0", stats.CacheHitRate)
	}
}

// Scenario 3: invalidation on content change only takes effect with an
// explicit overwrite; size/mtime-matching fast path otherwise trusts cache.
func TestRun_InvalidationRequiresOverwrite(t *testing.T) {
	dir := t.TempDir()
	b := writeSeedFile(t, dir, "b.wav", 20)

	ex := fake.New(0)
	ex.Pin(b, pinnedFeatures(t, 124, "Am", 0.6))

	s := newTestStore(t)
	update, _ := collectProgress(t)

	if _, err := Run(context.Background(), scanner.Request{Directories: []string{dir}}, Options{Extractor: ex, Store: s}, update); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	firstEntry, err := s.GetByPath(b)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}

	info, err := os.Stat(b)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if err := os.WriteFile(b, bytes.Repeat([]byte{1}, 20), 0o644); err != nil {
		t.Fatalf("rewriting b.wav: %v", err)
	}
	if err := os.Chtimes(b, info.ModTime(), info.ModTime()); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	ex.Pin(b, pinnedFeatures(t, 130, "Em", 0.9))

	if _, err := Run(context.Background(), scanner.Request{Directories: []string{dir}}, Options{Extractor: ex, Store: s}, update); err != nil {
		t.Fatalf("second Run (fast path): %v", err)
	}

	unchanged, err := s.GetByPath(b)
	if err != nil {
		t.Fatalf("GetByPath after fast-path run: %v", err)
	}
	if unchanged.ContentID != firstEntry.ContentID {
		t.Fatalf("fast path re-hashed despite matching size/mtime")
	}

	if _, err := Run(context.Background(), scanner.Request{Directories: []string{dir}}, Options{Extractor: ex, Store: s, OverwriteCache: true}, update); err != nil {
		t.Fatalf("third Run (overwrite): %v", err)
	}

	changed, err := s.GetByPath(b)
	if err != nil {
		t.Fatalf("GetByPath after overwrite run: %v", err)
	}
	if changed.ContentID == firstEntry.ContentID {
		t.Fatalf("overwrite run did not re-hash: got same content id %s", changed.ContentID)
	}
	if changed.Features.BPM != 130 {
		t.Fatalf("BPM after overwrite = %v, want 130", changed.Features.BPM)
	}
}

// Scenario 4: cancellation mid-run stops promptly with a small, bounded
// number of processed files.
func TestRun_CancellationMidRun(t *testing.T) {
	dir := t.TempDir()

	ex := fake.New(200 * time.Millisecond)
	for i := 0; i < 100; i++ {
		p := writeSeedFile(t, dir, filepathName(i), i+1)
		ex.Pin(p, pinnedFeatures(t, 120, "Am", 0.4))
	}

	s := newTestStore(t)
	update, progress := collectProgress(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(250*time.Millisecond, cancel)

	start := time.Now()
	result, _ := Run(ctx, scanner.Request{Directories: []string{dir}}, Options{Extractor: ex, Store: s, MaxWorkers: 4}, update)
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Fatalf("cancellation took %v, want <= 500ms", elapsed)
	}

	summary, ok := result.(Summary)
	if !ok {
		t.Fatalf("result type = %T, want Summary", result)
	}

	if summary.Analyzed+summary.Failed > 10 {
		t.Fatalf("processed %d files after cancel at 250ms with 200ms/file, want a small bounded count", summary.Analyzed+summary.Failed)
	}

	_ = progress
}

func filepathName(i int) string {
	return "track_" + strconv.Itoa(i) + ".wav"
}

// flakyExtractor fails with a transient (retryable) error on a file's first
// N attempts, then succeeds, so tests can exercise pool-level retry without
// ever failing a file outright.
type flakyExtractor struct {
	inner       *fake.Extractor
	failUntil   int
	mu          sync.Mutex
	attemptsFor map[string]int
}

func newFlakyExtractor(inner *fake.Extractor, failUntil int) *flakyExtractor {
	return &flakyExtractor{inner: inner, failUntil: failUntil, attemptsFor: make(map[string]int)}
}

func (f *flakyExtractor) Extract(ctx context.Context, path string, opts feature.Options) (track.Features, error) {
	f.mu.Lock()
	f.attemptsFor[path]++
	attempt := f.attemptsFor[path]
	f.mu.Unlock()

	if attempt <= f.failUntil {
		return track.Features{}, apperror.Wrap(apperror.IOError, nil, "simulated transient failure, attempt %d", attempt)
	}

	return f.inner.Extract(ctx, path, opts)
}

// A file that fails transiently before eventually succeeding must still be
// accounted for exactly once: processed_files increments per terminal file,
// not per retry attempt, per the worker pool's per-file state machine.
func TestRun_RetriedFileCountsOnce(t *testing.T) {
	dir := t.TempDir()
	a := writeSeedFile(t, dir, "a.wav", 10)

	inner := fake.New(0)
	inner.Pin(a, pinnedFeatures(t, 120, "Am", 0.4))
	ex := newFlakyExtractor(inner, 2)

	s := newTestStore(t)
	update, progress := collectProgress(t)

	result, err := Run(context.Background(), scanner.Request{Directories: []string{dir}},
		Options{Extractor: ex, Store: s}, update)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary, ok := result.(Summary)
	if !ok {
		t.Fatalf("result type = %T, want Summary", result)
	}

	if summary.TotalFiles != 1 || summary.Analyzed != 1 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 1 analyzed after retries", summary)
	}

	var maxProcessed int
	var errorUpdates int
	for _, p := range progress() {
		if p.ProcessedFiles > maxProcessed {
			maxProcessed = p.ProcessedFiles
		}
		errorUpdates += len(p.NewErrors)
	}

	if maxProcessed != 1 {
		t.Fatalf("ProcessedFiles peaked at %d, want 1 (one terminal report per file, not per retry attempt)", maxProcessed)
	}

	if errorUpdates != 0 {
		t.Fatalf("got %d error entries for a file that ultimately succeeded, want 0", errorUpdates)
	}
}
