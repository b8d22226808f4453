package api

import "time"

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// ErrorEntryDTO is one entry of a task's bounded error list, wire-shaped.
type ErrorEntryDTO struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TaskStatusResponse answers both
// GET /api/analysis/{id}/status and GET /api/playlists/generate/{id}/status.
type TaskStatusResponse struct {
	TaskID         string          `json:"task_id"`
	Kind           string          `json:"kind"`
	State          string          `json:"state"`
	Progress       float64         `json:"progress"`
	TotalFiles     int             `json:"total_files"`
	ProcessedFiles int             `json:"processed_files"`
	CurrentFile    string          `json:"current_file,omitempty"`
	ErrorCount     int             `json:"error_count"`
	Errors         []ErrorEntryDTO `json:"errors"`
	StartedAt      time.Time       `json:"started_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// StartAnalysisRequest is the body of POST /api/analysis/start.
type StartAnalysisRequest struct {
	Directories     []string `json:"directories,omitempty"`
	FilePaths       []string `json:"file_paths,omitempty"`
	Recursive       bool     `json:"recursive,omitempty"`
	OverwriteCache  bool     `json:"overwrite_cache,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
}

// StartAnalysisResponse answers POST /api/analysis/start.
type StartAnalysisResponse struct {
	TaskID     string `json:"task_id"`
	TotalFiles int    `json:"total_files"`
	StatusURL  string `json:"status_url"`
}

// CancelResponse answers POST /api/analysis/{id}/cancel and
// POST /api/playlists/generate/{id}/cancel-shaped callers.
type CancelResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
}

// CacheStatsResponse answers GET /api/analysis/cache/stats.
type CacheStatsResponse struct {
	TrackCount    int            `json:"track_count"`
	BPMHistogram  map[int]int    `json:"bpm_histogram"`
	MoodHistogram map[string]int `json:"mood_histogram"`
	CacheHitRate  float64        `json:"cache_hit_rate"`
}

// CacheCleanupRequest is the body of POST /api/analysis/cache/cleanup.
type CacheCleanupRequest struct {
	OlderThanDays int     `json:"older_than_days,omitempty"`
	MaxSizeGB     float64 `json:"max_size_gb,omitempty"`
}

// CacheCleanupResponse answers POST /api/analysis/cache/cleanup.
type CacheCleanupResponse struct {
	RemovedCount int `json:"removed_count"`
}

// CacheClearResponse answers POST /api/analysis/cache/clear.
type CacheClearResponse struct {
	Cleared bool `json:"cleared"`
}

// FormatsResponse answers GET /api/analysis/formats.
type FormatsResponse struct {
	Formats []string `json:"formats"`
}

// ListTracksRequest is the parsed query of GET /api/tracks.
type ListTracksRequest struct {
	Page       int
	PerPage    int
	Search     string
	Keys       []string
	Camelots   []string
	Moods      []string
	MinBPM     float64
	MaxBPM     float64
	MinEnergy  float64
	MaxEnergy  float64
	SortBy     string
	SortOrder  string // "asc" (default) or "desc"
}

// TrackDTO is one track row in a tracks listing or detail response.
type TrackDTO struct {
	Path            string   `json:"path"`
	ContentID       string   `json:"content_id,omitempty"`
	FileSize        int64    `json:"file_size"`
	DurationSeconds float64  `json:"duration_seconds"`
	Title           *string  `json:"title,omitempty"`
	Artist          *string  `json:"artist,omitempty"`
	Album           *string  `json:"album,omitempty"`
	Year            *int     `json:"year,omitempty"`
	BPM             float64  `json:"bpm,omitempty"`
	Key             string   `json:"key,omitempty"`
	Camelot         string   `json:"camelot,omitempty"`
	Energy          float64  `json:"energy,omitempty"`
	Mood            string   `json:"mood,omitempty"`
}

// ListTracksResponse answers GET /api/tracks.
type ListTracksResponse struct {
	Tracks  []TrackDTO `json:"tracks"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// GetTrackResponse answers GET /api/tracks/{path}; unlike the listing DTO it
// carries the full energy timeseries the row-level view omits.
type GetTrackResponse struct {
	TrackDTO
	EnergyTimeseries []EnergySampleDTO `json:"energy_timeseries,omitempty"`
}

// EnergySampleDTO is one (t, v) point of a track's energy curve.
type EnergySampleDTO struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// SimilarTracksRequest is the parsed query of
// GET /api/tracks/search/similar.
type SimilarTracksRequest struct {
	TrackPath           string
	Limit               int
	SimilarityThreshold float64
}

// SimilarTracksResponse answers GET /api/tracks/search/similar.
type SimilarTracksResponse struct {
	Tracks []TrackDTO `json:"tracks"`
}

// CustomRules is the subset of a Preset a caller may override inline instead
// of naming a registered preset, matching the "custom_rules" body field.
type CustomRules struct {
	BPMMin            float64            `json:"bpm_min,omitempty"`
	BPMMax            float64            `json:"bpm_max,omitempty"`
	EnergyMin         float64            `json:"energy_min,omitempty"`
	EnergyMax         float64            `json:"energy_max,omitempty"`
	NamedEnergyCurve  string             `json:"named_energy_curve,omitempty"`
	HarmonyStrictness float64            `json:"harmony_strictness,omitempty"`
	MoodConsistency   float64            `json:"mood_consistency,omitempty"`
	MaxBPMJump        float64            `json:"max_bpm_jump,omitempty"`
	Weights           map[string]float64 `json:"weights,omitempty"`
}

// GeneratePlaylistRequest is the body of POST /api/playlists/generate.
type GeneratePlaylistRequest struct {
	TrackFilePaths        []string     `json:"track_file_paths,omitempty"`
	PresetName            string       `json:"preset_name,omitempty"`
	CustomRules           *CustomRules `json:"custom_rules,omitempty"`
	TargetDurationMinutes float64      `json:"target_duration_minutes,omitempty"`
	Seed                  string       `json:"seed,omitempty"`
}

// GeneratePlaylistResponse answers POST /api/playlists/generate.
type GeneratePlaylistResponse struct {
	TaskID string `json:"task_id"`
}

// PlaylistStepDTO is one track in a generated playlist's ordering.
type PlaylistStepDTO struct {
	Path            string  `json:"path"`
	TransitionScore float64 `json:"transition_score"`
}

// PlaylistMetadataDTO summarizes a generated playlist.
type PlaylistMetadataDTO struct {
	TotalDuration float64    `json:"total_duration"`
	AvgBPM        float64    `json:"avg_bpm"`
	EnergyCurve   [16]float64 `json:"energy_curve"`
	PresetName    string     `json:"preset_name"`
	Empty         bool       `json:"empty"`
	Truncated     bool       `json:"truncated"`
}

// PlaylistDTO is the wire shape of a generated playlist.
type PlaylistDTO struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Tracks    []PlaylistStepDTO   `json:"tracks"`
	Metadata  PlaylistMetadataDTO `json:"metadata"`
}

// PlaylistResultResponse answers GET /api/playlists/generate/{id}/result.
// Ready is false (HTTP 202 at a transport layer) until the task completes.
type PlaylistResultResponse struct {
	Ready    bool         `json:"ready"`
	Playlist *PlaylistDTO `json:"playlist,omitempty"`
}

// Format is the closed set of playlist export formats the spec names.
type Format string

const (
	FormatM3U       Format = "m3u"
	FormatJSON      Format = "json"
	FormatCSV       Format = "csv"
	FormatRekordbox Format = "rekordbox"
)

// ExportPlaylistRequest is the body of POST /api/playlists/export.
type ExportPlaylistRequest struct {
	PlaylistData    PlaylistDTO `json:"playlist_data"`
	FormatType      Format      `json:"format_type"`
	Filename        string      `json:"filename"`
	IncludeMetadata bool        `json:"include_metadata,omitempty"`
}

// ExportPlaylistResponse answers POST /api/playlists/export.
type ExportPlaylistResponse struct {
	Filename string `json:"filename"`
	Bytes    []byte `json:"-"`
}
