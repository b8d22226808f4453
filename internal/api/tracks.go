package api

import (
	"crateforge/internal/apperror"
	"crateforge/internal/store"
	"crateforge/internal/track"
)

func toSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]bool, len(vals))
	for _, v := range vals {
		out[v] = true
	}
	return out
}

func trackDTO(t track.Track) TrackDTO {
	dto := TrackDTO{
		Path:            t.Path,
		ContentID:       t.ContentID,
		FileSize:        t.FileSize,
		DurationSeconds: t.DurationSeconds,
		Title:           t.Title,
		Artist:          t.Artist,
		Album:           t.Album,
		Year:            t.Year,
	}
	if t.Features != nil {
		dto.BPM = t.Features.BPM
		dto.Key = t.Features.Key
		dto.Camelot = t.Features.Camelot.String()
		dto.Energy = t.Features.Energy
		dto.Mood = string(t.Features.Mood)
	}
	return dto
}

// ListTracks implements GET /api/tracks.
func (s *Service) ListTracks(req ListTracksRequest) (ListTracksResponse, error) {
	filter := store.Filter{
		MinBPM:    req.MinBPM,
		MaxBPM:    req.MaxBPM,
		MinEnergy: req.MinEnergy,
		MaxEnergy: req.MaxEnergy,
		Keys:      toSet(req.Keys),
		Camelots:  toSet(req.Camelots),
		Moods:     toSet(req.Moods),
		Search:    req.Search,
	}

	page := req.Page
	if page < 0 {
		page = 0
	}
	perPage := req.PerPage

	tracks, total, err := s.Store.List(filter, store.SortField(req.SortBy), store.Page{Number: page, PerPage: perPage})
	if err != nil {
		return ListTracksResponse{}, err
	}

	if req.SortOrder == "desc" {
		for i, j := 0, len(tracks)-1; i < j; i, j = i+1, j-1 {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		}
	}

	out := make([]TrackDTO, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, trackDTO(t))
	}

	return ListTracksResponse{Tracks: out, Total: total, Page: page, PerPage: perPage}, nil
}

// GetTrack implements GET /api/tracks/{path}.
func (s *Service) GetTrack(path string) (GetTrackResponse, error) {
	if path == "" {
		return GetTrackResponse{}, apperror.InvalidArgumentf("path is required")
	}

	t, err := s.Store.GetByPath(path)
	if err != nil {
		return GetTrackResponse{}, err
	}

	resp := GetTrackResponse{TrackDTO: trackDTO(t)}
	if t.Features != nil {
		resp.EnergyTimeseries = make([]EnergySampleDTO, 0, len(t.Features.EnergyTimeseries))
		for _, sample := range t.Features.EnergyTimeseries {
			resp.EnergyTimeseries = append(resp.EnergyTimeseries, EnergySampleDTO{T: sample.T, V: sample.V})
		}
	}

	return resp, nil
}

// SimilarTracks implements GET /api/tracks/search/similar. similarity_threshold
// is applied here, over Store.SimilarScored's distances normalized against
// store.MaxFeatureDistance, since the store's k-nearest contract returns
// plain ranked tracks and doesn't know the wire notion of a cutoff score.
func (s *Service) SimilarTracks(req SimilarTracksRequest) (SimilarTracksResponse, error) {
	if req.TrackPath == "" {
		return SimilarTracksResponse{}, apperror.InvalidArgumentf("track_path is required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	matches, err := s.Store.SimilarScored(req.TrackPath, limit, nil)
	if err != nil {
		return SimilarTracksResponse{}, err
	}

	out := make([]TrackDTO, 0, len(matches))
	for _, m := range matches {
		similarity := 1 - m.Distance/store.MaxFeatureDistance
		if similarity < 0 {
			similarity = 0
		}

		if similarity < req.SimilarityThreshold {
			continue
		}

		out = append(out, trackDTO(m.Track))
	}

	return SimilarTracksResponse{Tracks: out}, nil
}
