// ABOUTME: Preset declarative generation rules: BPM/energy ranges, energy curves, scoring weights
// ABOUTME: Closed named-curve vocabulary with JSON (de)serialization matching the on-disk preset file format

// Package preset defines the declarative rule set a PlaylistEngine
// generation runs against, and a directory-backed Registry that keeps
// presets in memory, hot-reloaded from disk.
package preset

import (
	"encoding/json"
	"math"

	"crateforge/internal/apperror"
)

// Range is an inclusive numeric bound.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v falls within r, treating a zero-value Range
// (both bounds 0) as unbounded.
func (r Range) Contains(v float64) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}

	return v >= r.Min && v <= r.Max
}

// CurveLength is the fixed sample count a target energy curve is expressed
// over, regardless of the playlist's actual track count.
const CurveLength = 16

// NamedCurve is one of the fixed energy-curve shapes a preset can reference
// instead of spelling out all 16 samples.
type NamedCurve string

const (
	CurveFlat       NamedCurve = "flat"
	CurveBuildup    NamedCurve = "buildup"
	CurvePeakValley NamedCurve = "peak_valley"
	CurveWave       NamedCurve = "wave"
	CurveCooldown   NamedCurve = "cooldown"
)

// Curve renders name to its 16-sample energy curve. Unknown names fall back
// to flat at 0.5, matching "impossible cases yield a neutral default"
// elsewhere in this codebase.
func Curve(name NamedCurve) [CurveLength]float64 {
	var out [CurveLength]float64

	switch name {
	case CurveBuildup:
		for i := range out {
			out[i] = float64(i) / float64(CurveLength-1)
		}
	case CurveCooldown:
		for i := range out {
			out[i] = 1 - float64(i)/float64(CurveLength-1)
		}
	case CurvePeakValley:
		for i := range out {
			frac := float64(i) / float64(CurveLength-1)
			out[i] = 0.5 + 0.5*math.Sin(frac*math.Pi)
		}
	case CurveWave:
		for i := range out {
			frac := float64(i) / float64(CurveLength-1)
			out[i] = 0.5 + 0.5*math.Sin(frac*2*math.Pi)
		}
	default: // CurveFlat and anything unrecognized
		for i := range out {
			out[i] = 0.5
		}
	}

	return out
}

// Weights is the preset-tunable vector scoring a candidate transition.
// Defaults per (harmony, bpm, energy, mood, freshness), normalized to 1.0.
type Weights struct {
	Harmony   float64 `json:"harmony"`
	BPM       float64 `json:"bpm"`
	Energy    float64 `json:"energy"`
	Mood      float64 `json:"mood"`
	Freshness float64 `json:"freshness"`
}

// DefaultWeights matches the scoring defaults.
var DefaultWeights = Weights{Harmony: 0.30, BPM: 0.20, Energy: 0.30, Mood: 0.15, Freshness: 0.05}

// Normalized returns w scaled so its components sum to 1.0, falling back to
// DefaultWeights if w sums to zero.
func (w Weights) Normalized() Weights {
	sum := w.Harmony + w.BPM + w.Energy + w.Mood + w.Freshness
	if sum <= 0 {
		return DefaultWeights
	}

	return Weights{
		Harmony:   w.Harmony / sum,
		BPM:       w.BPM / sum,
		Energy:    w.Energy / sum,
		Mood:      w.Mood / sum,
		Freshness: w.Freshness / sum,
	}
}

// DefaultBeamWidth is the number of partial playlists the engine keeps alive
// at each beam-search step.
const DefaultBeamWidth = 8

// Preset is a named, declarative ruleset for playlist generation.
type Preset struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	BPMRange    Range `json:"bpm_range"`
	EnergyRange Range `json:"energy_range"`

	// Exactly one of TargetEnergyCurve or NamedEnergyCurve should be set;
	// TargetEnergyCurve takes precedence when both are present.
	TargetEnergyCurve []float64  `json:"target_energy_curve,omitempty"`
	NamedEnergyCurve  NamedCurve `json:"named_energy_curve,omitempty"`

	HarmonyStrictness float64 `json:"harmony_strictness"`
	MoodConsistency   float64 `json:"mood_consistency"`

	MaxBPMJump            float64 `json:"max_bpm_jump"`
	AvoidSameArtistWindow int     `json:"avoid_same_artist_window"`
	MinTrackDurationSec   float64 `json:"min_track_duration_sec"`
	MaxTrackDurationSec   float64 `json:"max_track_duration_sec"`

	Weights   Weights `json:"weights"`
	BeamWidth int     `json:"beam_width"`
}

// EnergyCurve resolves the preset's effective 16-sample target curve,
// preferring an explicit curve over the named shape.
func (p Preset) EnergyCurve() [CurveLength]float64 {
	if len(p.TargetEnergyCurve) == CurveLength {
		var out [CurveLength]float64
		copy(out[:], p.TargetEnergyCurve)
		return out
	}

	return Curve(p.NamedEnergyCurve)
}

// EffectiveWeights returns the preset's scoring weights, normalized, falling
// back to defaults if unset.
func (p Preset) EffectiveWeights() Weights {
	return p.Weights.Normalized()
}

// EffectiveBeamWidth returns the preset's beam width or the default.
func (p Preset) EffectiveBeamWidth() int {
	if p.BeamWidth > 0 {
		return p.BeamWidth
	}

	return DefaultBeamWidth
}

// Validate checks the structural constraints a Preset's declarative rules
// must satisfy before it can drive a generation run.
func (p Preset) Validate() error {
	if p.Name == "" {
		return apperror.InvalidArgumentf("preset name is required")
	}

	if p.HarmonyStrictness < 0 || p.HarmonyStrictness > 1 {
		return apperror.InvalidArgumentf("preset %s: harmony_strictness out of [0,1]", p.Name)
	}

	if p.MoodConsistency < 0 || p.MoodConsistency > 1 {
		return apperror.InvalidArgumentf("preset %s: mood_consistency out of [0,1]", p.Name)
	}

	if len(p.TargetEnergyCurve) != 0 && len(p.TargetEnergyCurve) != CurveLength {
		return apperror.InvalidArgumentf("preset %s: target_energy_curve must have %d samples, got %d", p.Name, CurveLength, len(p.TargetEnergyCurve))
	}

	return nil
}

// ParseJSON decodes a preset from its on-disk JSON representation.
func ParseJSON(data []byte) (Preset, error) {
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return Preset{}, apperror.Wrap(apperror.InvalidArgument, err, "parsing preset JSON")
	}

	if err := p.Validate(); err != nil {
		return Preset{}, err
	}

	return p, nil
}
