package api

import (
	"context"

	"crateforge/internal/apperror"
	"crateforge/internal/playlistengine"
	"crateforge/internal/preset"
	"crateforge/internal/store"
	"crateforge/internal/task"
	"crateforge/internal/track"
)

// Exporter is the contract boundary toward the playlist exporter, which the
// spec treats as a pure render(playlist, format) -> bytes function living
// outside this module. No concrete format implementation lives here.
type Exporter interface {
	Render(playlist playlistengine.Playlist, format Format) ([]byte, error)
}

// resolvePreset returns the named registry preset, or builds a "custom"
// preset from the custom rules alone when no name is given (no registry
// preset is consulted). Exactly one of name or rules is expected to be present.
func (s *Service) resolvePreset(name string, rules *CustomRules) (preset.Preset, error) {
	if name != "" {
		return s.Presets.Get(name)
	}

	if rules == nil {
		return preset.Preset{}, apperror.InvalidArgumentf("preset_name or custom_rules is required")
	}

	p := preset.Preset{
		Name:              "custom",
		BPMRange:          preset.Range{Min: rules.BPMMin, Max: rules.BPMMax},
		EnergyRange:       preset.Range{Min: rules.EnergyMin, Max: rules.EnergyMax},
		NamedEnergyCurve:  preset.NamedCurve(rules.NamedEnergyCurve),
		HarmonyStrictness: rules.HarmonyStrictness,
		MoodConsistency:   rules.MoodConsistency,
		MaxBPMJump:        rules.MaxBPMJump,
	}

	if len(rules.Weights) > 0 {
		p.Weights = preset.Weights{
			Harmony:   rules.Weights["harmony"],
			BPM:       rules.Weights["bpm"],
			Energy:    rules.Weights["energy"],
			Mood:      rules.Weights["mood"],
			Freshness: rules.Weights["freshness"],
		}
	}

	if err := p.Validate(); err != nil {
		return preset.Preset{}, err
	}

	return p, nil
}

// resolvePool looks up every requested path in the Store, failing fast if
// any is unanalyzed rather than letting the engine silently drop it from
// the candidate pool. An empty paths list falls back to every analyzed
// track in the Store, matching track_file_paths' optional status.
func (s *Service) resolvePool(paths []string) ([]track.Track, error) {
	if len(paths) == 0 {
		all, _, err := s.Store.List(store.Filter{}, store.SortPath, store.Page{})
		if err != nil {
			return nil, err
		}
		return all, nil
	}

	out := make([]track.Track, 0, len(paths))
	for _, p := range paths {
		t, err := s.Store.GetByPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, nil
}

// GeneratePlaylist implements POST /api/playlists/generate. The candidate
// pool is resolved from the Store by path, exactly as the spec's
// track_file_paths field implies, before the task is submitted so a missing
// track fails fast instead of inside the background run.
func (s *Service) GeneratePlaylist(req GeneratePlaylistRequest) (GeneratePlaylistResponse, error) {
	p, err := s.resolvePreset(req.PresetName, req.CustomRules)
	if err != nil {
		return GeneratePlaylistResponse{}, err
	}

	tracks, err := s.resolvePool(req.TrackFilePaths)
	if err != nil {
		return GeneratePlaylistResponse{}, err
	}

	genReq := playlistengine.Request{
		Pool:                  tracks,
		SeedPath:              req.Seed,
		TargetDurationSeconds: req.TargetDurationMinutes * 60,
		// Reproducibility key for the engine's surprise-factor RNG: derived
		// from the request itself rather than the background task id, since
		// the task id isn't known until Submit returns, after the runner
		// has already been handed off to its goroutine.
		TaskID: p.Name + "|" + req.Seed,
	}

	taskID, err := s.Tasks.Submit(task.KindPlaylistGeneration, func(ctx context.Context, update func(task.Progress)) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.generationTimeout())
		defer cancel()

		playlist, genErr := playlistengine.Generate(ctx, p, genReq, func(progress float64) {
			update(task.Progress{Progress: progress})
		})
		if genErr != nil {
			return nil, genErr
		}
		return playlist, nil
	})
	if err != nil {
		return GeneratePlaylistResponse{}, err
	}

	return GeneratePlaylistResponse{TaskID: taskID}, nil
}

// PlaylistStatus implements GET /api/playlists/generate/{id}/status.
func (s *Service) PlaylistStatus(taskID string) (TaskStatusResponse, error) {
	v, err := s.statusOf(taskID)
	if err != nil {
		return TaskStatusResponse{}, err
	}
	return taskStatusFromView(v), nil
}

// PlaylistResult implements GET /api/playlists/generate/{id}/result: not
// ready (202 at a transport layer) until the task has a terminal result.
func (s *Service) PlaylistResult(taskID string) (PlaylistResultResponse, error) {
	result, status, err := s.Tasks.Result(taskID)
	if err != nil {
		return PlaylistResultResponse{}, err
	}

	switch status {
	case task.ResultPending:
		return PlaylistResultResponse{Ready: false}, nil
	case task.ResultFailed:
		return PlaylistResultResponse{}, apperror.Wrap(apperror.Internal, nil, "playlist generation task %s did not complete", taskID)
	}

	playlist, ok := result.(playlistengine.Playlist)
	if !ok {
		return PlaylistResultResponse{}, apperror.Wrap(apperror.Internal, nil, "unexpected result type for task %s", taskID)
	}

	return PlaylistResultResponse{Ready: true, Playlist: playlistDTO(playlist)}, nil
}

// ExportPlaylist implements POST /api/playlists/export, delegating the
// actual render to exporter since this module defines only the boundary.
func (s *Service) ExportPlaylist(req ExportPlaylistRequest, exporter Exporter) (ExportPlaylistResponse, error) {
	switch req.FormatType {
	case FormatM3U, FormatJSON, FormatCSV, FormatRekordbox:
	default:
		return ExportPlaylistResponse{}, apperror.InvalidArgumentf("unsupported format_type: %s", req.FormatType)
	}

	if req.Filename == "" {
		return ExportPlaylistResponse{}, apperror.InvalidArgumentf("filename is required")
	}

	playlist := playlistFromDTO(req.PlaylistData)

	rendered, err := exporter.Render(playlist, req.FormatType)
	if err != nil {
		return ExportPlaylistResponse{}, err
	}

	return ExportPlaylistResponse{Filename: req.Filename, Bytes: rendered}, nil
}

func playlistDTO(p playlistengine.Playlist) *PlaylistDTO {
	steps := make([]PlaylistStepDTO, 0, len(p.Tracks))
	for _, step := range p.Tracks {
		steps = append(steps, PlaylistStepDTO{Path: step.Path, TransitionScore: step.TransitionScore})
	}

	return &PlaylistDTO{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		Tracks:    steps,
		Metadata: PlaylistMetadataDTO{
			TotalDuration: p.Metadata.TotalDuration,
			AvgBPM:        p.Metadata.AvgBPM,
			EnergyCurve:   p.Metadata.EnergyCurve,
			PresetName:    p.Metadata.PresetName,
			Empty:         p.Metadata.Empty,
			Truncated:     p.Metadata.Truncated,
		},
	}
}

func playlistFromDTO(d PlaylistDTO) playlistengine.Playlist {
	steps := make([]playlistengine.Step, 0, len(d.Tracks))
	for _, step := range d.Tracks {
		steps = append(steps, playlistengine.Step{Path: step.Path, TransitionScore: step.TransitionScore})
	}

	return playlistengine.Playlist{
		ID:        d.ID,
		CreatedAt: d.CreatedAt,
		Tracks:    steps,
		Metadata: playlistengine.Metadata{
			TotalDuration: d.Metadata.TotalDuration,
			AvgBPM:        d.Metadata.AvgBPM,
			EnergyCurve:   d.Metadata.EnergyCurve,
			PresetName:    d.Metadata.PresetName,
			Empty:         d.Metadata.Empty,
			Truncated:     d.Metadata.Truncated,
		},
	}
}
