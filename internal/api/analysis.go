package api

import (
	"context"
	"fmt"
	"sort"

	"crateforge/internal/analysis"
	"crateforge/internal/apperror"
	"crateforge/internal/scanner"
	"crateforge/internal/task"
)

// StartAnalysis implements POST /api/analysis/start. It scans req up front
// so it can report total_files in the same response that hands back the
// task id, then submits the actual per-file work against the resolved file
// list so the background run never re-walks the tree differently than what
// was counted here.
func (s *Service) StartAnalysis(req StartAnalysisRequest) (StartAnalysisResponse, error) {
	if len(req.Directories) == 0 && len(req.FilePaths) == 0 {
		return StartAnalysisResponse{}, apperror.InvalidArgumentf("directories or file_paths is required")
	}

	scanReq := scanner.Request{
		Directories:     req.Directories,
		FilePaths:       req.FilePaths,
		Recursive:       req.Recursive,
		IncludePatterns: req.IncludePatterns,
		ExcludePatterns: req.ExcludePatterns,
	}

	result, err := scanner.Scan(scanReq)
	if err != nil {
		return StartAnalysisResponse{}, err
	}

	opts := analysis.Options{
		Extractor:      s.Extractor,
		Store:          s.Store,
		MaxWorkers:     s.MaxWorkers,
		RetryPolicy:    s.RetryPolicy,
		OverwriteCache: req.OverwriteCache,
	}
	if s.AnalysisTimeout > 0 {
		opts.AnalysisTimeout = s.AnalysisTimeout
	}

	runReq := scanner.Request{FilePaths: result.Files}

	taskID, err := s.Tasks.Submit(task.KindAnalysis, func(ctx context.Context, update func(task.Progress)) (any, error) {
		return analysis.Run(ctx, runReq, opts, update)
	})
	if err != nil {
		return StartAnalysisResponse{}, err
	}

	s.logger.Infof("analysis task %s started over %d files", taskID, len(result.Files))

	return StartAnalysisResponse{
		TaskID:     taskID,
		TotalFiles: len(result.Files),
		StatusURL:  fmt.Sprintf("/api/analysis/%s/status", taskID),
	}, nil
}

// AnalysisStatus implements GET /api/analysis/{id}/status.
func (s *Service) AnalysisStatus(taskID string) (TaskStatusResponse, error) {
	v, err := s.statusOf(taskID)
	if err != nil {
		return TaskStatusResponse{}, err
	}
	return taskStatusFromView(v), nil
}

// CancelAnalysis implements POST /api/analysis/{id}/cancel. Cancel itself is
// idempotent at the task.Manager layer; this just folds the resulting
// (possibly unchanged) state into the response.
func (s *Service) CancelAnalysis(taskID string) (CancelResponse, error) {
	if err := s.Tasks.Cancel(taskID); err != nil {
		return CancelResponse{}, err
	}

	v, err := s.statusOf(taskID)
	if err != nil {
		return CancelResponse{}, err
	}

	return CancelResponse{TaskID: v.ID, State: string(v.State)}, nil
}

// CacheStats implements GET /api/analysis/cache/stats.
func (s *Service) CacheStats() (CacheStatsResponse, error) {
	agg, err := s.Store.Stats()
	if err != nil {
		return CacheStatsResponse{}, err
	}

	return CacheStatsResponse{
		TrackCount:    agg.TrackCount,
		BPMHistogram:  agg.BPMHistogram,
		MoodHistogram: agg.MoodHistogram,
		CacheHitRate:  agg.CacheHitRate,
	}, nil
}

// CacheCleanup implements POST /api/analysis/cache/cleanup.
func (s *Service) CacheCleanup(req CacheCleanupRequest) (CacheCleanupResponse, error) {
	removed, err := s.Store.Cleanup(req.OlderThanDays, req.MaxSizeGB)
	if err != nil {
		return CacheCleanupResponse{}, err
	}
	return CacheCleanupResponse{RemovedCount: removed}, nil
}

// CacheClear implements POST /api/analysis/cache/clear.
func (s *Service) CacheClear() (CacheClearResponse, error) {
	if err := s.Store.Clear(); err != nil {
		return CacheClearResponse{}, err
	}
	return CacheClearResponse{Cleared: true}, nil
}

// Formats implements GET /api/analysis/formats.
func (s *Service) Formats() FormatsResponse {
	out := make([]string, 0, len(scanner.DefaultSupportedExtensions))
	for ext := range scanner.DefaultSupportedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return FormatsResponse{Formats: out}
}
