// ABOUTME: Orchestrates Scanner, WorkerPool, and Store into the analysis task's per-file state machine
// ABOUTME: The glue layer the teacher never needed (it read one fixed M3U8 list, never scanned a tree)

// Package analysis drives one analysis run: it scans a request into a
// candidate file list, dispatches each file across a WorkerPool honoring
// the cache-hit/extract/write state machine, and reports progress through
// the shape task.Manager expects. It composes the Scanner, WorkerPool,
// Store, and feature.Extractor into the single cancellable unit the
// TaskManager owns a goroutine for, the same "one Runner per background
// job" split the teacher's progressTracker made for a single GA run.
package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crateforge/internal/apperror"
	"crateforge/internal/feature"
	"crateforge/internal/pool"
	"crateforge/internal/scanner"
	"crateforge/internal/store"
	"crateforge/internal/task"
	"crateforge/internal/track"
	"crateforge/internal/xlog"
)

// Options configures one analysis run. Extractor and Store are required;
// everything else falls back to the pipeline's defaults.
type Options struct {
	Extractor       feature.Extractor
	Store           *store.Store
	MaxWorkers      int
	RetryPolicy     pool.RetryPolicy
	AnalysisTimeout time.Duration
	OverwriteCache  bool
}

func (o Options) retryPolicy() pool.RetryPolicy {
	if o.RetryPolicy.MaxAttempts > 0 {
		return o.RetryPolicy
	}

	return pool.DefaultRetryPolicy
}

func (o Options) analysisTimeout() time.Duration {
	if o.AnalysisTimeout > 0 {
		return o.AnalysisTimeout
	}

	return feature.DefaultAnalysisTimeout
}

// Summary is the terminal result a completed analysis task reports.
type Summary struct {
	TotalFiles int `json:"total_files"`
	Analyzed   int `json:"analyzed"`
	CacheHits  int `json:"cache_hits"`
	Failed     int `json:"failed"`
}

// Run scans req and analyzes every candidate file, reporting progress via
// update and honoring ctx cancellation at every loop boundary: before
// pulling a file, before calling the extractor, and before writing the
// cache entry. It is shaped as a task.Runner so a TaskManager can own it
// directly.
func Run(ctx context.Context, req scanner.Request, opts Options, update func(task.Progress)) (any, error) {
	logger := xlog.Default().With("analysis")

	result, err := scanner.Scan(req)
	if err != nil {
		return nil, err
	}

	total := len(result.Files)
	update(task.Progress{TotalFiles: total})

	if len(result.Warnings) > 0 {
		entries := make([]task.ErrorEntry, 0, len(result.Warnings))
		for _, w := range result.Warnings {
			entries = append(entries, task.ErrorEntry{Path: w.Path, Code: apperror.IOError, Message: w.Message})
		}
		update(task.Progress{NewErrors: entries})
	}

	if total == 0 {
		return Summary{}, nil
	}

	p := pool.New(opts.MaxWorkers, opts.retryPolicy())
	defer p.Close()

	var (
		mu        sync.Mutex
		processed int
		hits      int
		failed    int
	)

	report := func(path string, hit bool, runErr error) {
		// Work cut short by cancellation is discarded: it counts neither as
		// processed nor as failed.
		if runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		processed++
		if hit {
			hits++
		}

		progress := task.Progress{
			Progress:       100 * float64(processed) / float64(total),
			TotalFiles:     total,
			ProcessedFiles: processed,
			CurrentFile:    path,
		}

		if runErr != nil {
			failed++
			progress.NewErrors = []task.ErrorEntry{{
				Path:    path,
				Code:    apperror.CodeOf(runErr),
				Message: runErr.Error(),
			}}
		}

		update(progress)
	}

scan:
	for _, path := range result.Files {
		select {
		case <-ctx.Done():
			break scan
		default:
		}

		path := path
		var hit bool

		// report must run from onResult, not from the job body: the job body
		// is re-invoked by runWithRetry on every transient attempt, while
		// onResult fires exactly once with the terminal outcome.
		p.Submit(ctx, func(ctx context.Context) error {
			h, err := analyzeOne(ctx, path, opts)
			hit = h
			return err
		}, func(err error) {
			report(path, hit, err)
		})
	}

	p.Wait()

	summary := Summary{TotalFiles: total, Analyzed: processed - failed, Failed: failed, CacheHits: hits}

	if err := ctx.Err(); err != nil {
		logger.Infof("analysis run cancelled after %d/%d files", processed, total)
		return summary, err
	}

	if failed == total {
		return Summary{TotalFiles: total, Analyzed: 0, Failed: failed, CacheHits: hits},
			apperror.Wrap(apperror.Internal, nil, "analysis failed for all %d files", total)
	}

	logger.Infof("analysis run complete: %d/%d files, %d cache hits, %d failed", processed, total, hits, failed)

	return summary, nil
}

// analyzeOne runs the per-file state machine: cache_hit check, extraction,
// validation, and the write-through to the Store. The returned bool reports
// whether the file was served from the cache.
func analyzeOne(ctx context.Context, path string, opts Options) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	cid, fastPath, err := opts.Store.Resolve(path)
	if err != nil {
		return false, err
	}

	if opts.OverwriteCache && fastPath {
		// Scenario 3: an explicit overwrite forces a re-hash even when the
		// fast-reject path would otherwise have trusted size/mtime.
		cid, err = store.ContentID(path)
		if err != nil {
			return false, err
		}
	}

	if !opts.OverwriteCache {
		if _, ok, err := opts.Store.Get(cid); err != nil {
			return false, err
		} else if ok {
			opts.Store.RecordHit(true)
			return true, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	features, err := opts.Extractor.Extract(ctx, path, feature.Options{Timeout: opts.analysisTimeout()})
	if err != nil {
		return false, classify(path, err)
	}

	if err := feature.ValidateFeatures(features); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return false, apperror.Wrap(apperror.IOError, statErr, "stat %s before cache write", path)
	}

	entry := track.CacheEntry{
		ContentID:       cid,
		PathAtWrite:     mustAbs(path),
		FileSize:        info.Size(),
		ModTime:         info.ModTime().Unix(),
		AnalysisVersion: track.CurrentAnalysisVersion,
		AnalysedAt:      time.Now(),
		Features:        features,
	}

	if err := opts.Store.Put(path, entry); err != nil {
		return false, err
	}

	opts.Store.RecordHit(false)

	return false, nil
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}

// classify maps an extractor error to a pool.TransientError when the
// failure is the retryable kind (timeout, transient I/O); unsupported
// format and corrupt-file errors fail the item immediately.
func classify(path string, err error) error {
	switch apperror.CodeOf(err) {
	case apperror.Timeout, apperror.IOError:
		return &pool.TransientError{Err: err}
	default:
		return err
	}
}
