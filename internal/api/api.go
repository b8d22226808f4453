// ABOUTME: Service facade composing TaskManager, Store, PlaylistEngine, and Preset registry
// ABOUTME: One Dispatch-style method per REST surface row, callable directly without a socket

// Package api implements the core's external interface as a typed, in-process
// facade rather than a bound HTTP server: one request/response DTO pair per
// endpoint row, and a Service method a host's transport layer (or a test)
// calls directly. This follows ewilliams-labs-overture's adapters/rest
// handler-per-resource split (playlist.go, tracks.go) without actually
// binding net/http, since wiring a transport is out of this module's scope.
package api

import (
	"time"

	"crateforge/internal/feature"
	"crateforge/internal/playlistengine"
	"crateforge/internal/pool"
	"crateforge/internal/preset"
	"crateforge/internal/store"
	"crateforge/internal/task"
	"crateforge/internal/xlog"
)

// Version is the core's reported build version. Hosts embedding this module
// can override it at link time; tests are free to leave it as-is.
var Version = "0.1.0"

// Service composes every independently-built component into the operations
// the endpoint table names. It holds no transport state of its own.
type Service struct {
	Tasks     *task.Manager
	Store     *store.Store
	Presets   *preset.Registry
	Extractor feature.Extractor

	MaxWorkers        int
	RetryPolicy       pool.RetryPolicy
	AnalysisTimeout   time.Duration
	GenerationTimeout time.Duration

	logger *xlog.Logger
}

// NewService wires the four required collaborators into a Service. Extractor
// is the only piece this module cannot supply a real implementation for; the
// caller is expected to inject one (or feature/fake's deterministic stand-in
// for tests).
func NewService(tasks *task.Manager, st *store.Store, presets *preset.Registry, extractor feature.Extractor) *Service {
	return &Service{
		Tasks:     tasks,
		Store:     st,
		Presets:   presets,
		Extractor: extractor,
		logger:    xlog.Default().With("api"),
	}
}

func (s *Service) generationTimeout() time.Duration {
	if s.GenerationTimeout > 0 {
		return s.GenerationTimeout
	}
	return playlistengine.DefaultGenerationTimeout
}

// taskStatusFromView translates a task.View into the wire-shaped status
// response shared by both the analysis and playlist-generation endpoints.
func taskStatusFromView(v task.View) TaskStatusResponse {
	errs := make([]ErrorEntryDTO, 0, len(v.Errors))
	for _, e := range v.Errors {
		errs = append(errs, ErrorEntryDTO{Path: e.Path, Code: string(e.Code), Message: e.Message})
	}

	return TaskStatusResponse{
		TaskID:         v.ID,
		Kind:           string(v.Kind),
		State:          string(v.State),
		Progress:       v.Progress,
		TotalFiles:     v.TotalFiles,
		ProcessedFiles: v.ProcessedFiles,
		CurrentFile:    v.CurrentFile,
		ErrorCount:     v.ErrorCount,
		Errors:         errs,
		StartedAt:      v.StartedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

// statusOf returns Tasks.Status unchanged for every endpoint touching a task
// id; an unknown or expired id already fails with NotFound there.
func (s *Service) statusOf(taskID string) (task.View, error) {
	return s.Tasks.Status(taskID)
}
