// ABOUTME: Bounded beam search over a candidate track pool driven by a Preset's scoring weights
// ABOUTME: Transition scoring ported from the teacher's GA fitness function, restructured around beam search rather than mutation

// Package playlistengine builds an ordered playlist from a pool of analyzed
// tracks. Where the teacher scored a whole tour with a genetic algorithm,
// this engine keeps the same transition-scoring building blocks (harmony,
// bpm closeness, energy-curve fit, mood continuity, artist freshness) but
// drives them through a bounded beam search instead of mutation/crossover.
package playlistengine

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"crateforge/internal/apperror"
	"crateforge/internal/camelot"
	"crateforge/internal/mood"
	"crateforge/internal/preset"
	"crateforge/internal/track"
)

// DefaultGenerationTimeout bounds a whole generation run.
const DefaultGenerationTimeout = 60 * time.Second

// Request is a single generation request layered on top of a Preset: an
// explicit candidate pool, optional seed track, and optional overrides.
type Request struct {
	Pool                  []track.Track
	SeedPath              string
	TargetDurationSeconds float64
	Surprise              float64 // [0,1]; 0 disables the random perturbation
	TaskID                string
}

// Step is one track in a generated Playlist, with the score of the
// transition into it (0 for the first track).
type Step struct {
	Path            string  `json:"path"`
	TransitionScore float64 `json:"transition_score"`
}

// Metadata summarizes a generated Playlist.
type Metadata struct {
	TotalDuration float64    `json:"total_duration"`
	AvgBPM        float64    `json:"avg_bpm"`
	EnergyCurve   [16]float64 `json:"energy_curve"`
	PresetName    string     `json:"preset_name"`
	Empty         bool       `json:"empty"`
	Truncated     bool       `json:"truncated"`
}

// Playlist is the engine's immutable output: re-generation always produces
// a new one rather than mutating an existing Playlist.
type Playlist struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Tracks    []Step    `json:"tracks"`
	Metadata  Metadata  `json:"metadata"`
}

type candidate struct {
	t        track.Track
	bpm      float64
	energy   float64
	camelot  camelot.Key
	moodTag  mood.Tag
	artist   string
}

func toCandidate(t track.Track) candidate {
	c := candidate{t: t}
	if t.Features != nil {
		c.bpm = t.Features.BPM
		c.energy = t.Features.Energy
		c.camelot = t.Features.Camelot
		c.moodTag = t.Features.Mood
	}
	if t.Artist != nil {
		c.artist = *t.Artist
	}
	return c
}

type beamEntry struct {
	steps     []Step
	picked    []candidate
	score     float64
	totalDur  float64
}

// Generate runs the bounded beam search described for the engine: filter
// candidates by the preset's ranges, extend a beam of partial playlists one
// step at a time, and stop at the target duration or when no feasible
// extension remains. update, if non-nil, is called after each beam step.
func Generate(ctx context.Context, p preset.Preset, req Request, update func(progress float64)) (Playlist, error) {
	if err := p.Validate(); err != nil {
		return Playlist{}, err
	}

	pool := filterPool(p, req.Pool)

	// The playlist's own identity is independent of req.TaskID: TaskID only
	// seeds the surprise-factor RNG for reproducibility, while re-generation
	// must always mint a fresh id per spec (a Playlist is never mutated).
	playlistID := uuid.New().String()
	createdAt := time.Now().UTC()

	if len(pool) == 0 {
		return emptyPlaylist(playlistID, createdAt, p), nil
	}

	var seed *candidate
	if req.SeedPath != "" {
		for i := range pool {
			if pool[i].t.Path == req.SeedPath {
				seed = &pool[i]
				break
			}
		}
		if seed == nil {
			return emptyPlaylist(playlistID, createdAt, p), nil
		}
	}

	beamWidth := p.EffectiveBeamWidth()
	weights := p.EffectiveWeights()
	curve := p.EnergyCurve()

	targetDuration := req.TargetDurationSeconds
	if targetDuration <= 0 {
		targetDuration = sumDuration(pool)
	}

	beam := initialBeam(pool, seed, beamWidth)
	if len(beam) == 0 {
		return emptyPlaylist(playlistID, createdAt, p), nil
	}

	truncated := false
	step := 0

	for {
		if err := ctx.Err(); err != nil {
			// Cancellation or the generation budget expiring must fail (or
			// cancel) the task, not surface as a quietly truncated result:
			// §5/§7 require generation_timeout to fail the task with Timeout,
			// and a user Cancel to land the task in the cancelled state.
			// Natural beam exhaustion below, with no ctx error, still returns
			// truncated:true.
			return Playlist{}, mapContextErr(err)
		}

		allDone := true
		for _, b := range beam {
			if b.totalDur < targetDuration {
				allDone = false
				break
			}
		}
		if allDone {
			break
		}

		next := extendBeam(beam, pool, p, weights, curve, targetDuration, req, step, beamWidth)
		if len(next) == 0 {
			truncated = anyBelowTarget(beam, targetDuration)
			break
		}

		beam = next
		step++

		if update != nil {
			best := bestEntry(beam)
			update(math.Min(100, 100*best.totalDur/math.Max(targetDuration, 1)))
		}
	}

	best := bestEntry(beam)
	if len(best.steps) == 0 {
		return emptyPlaylist(playlistID, createdAt, p), nil
	}

	return buildPlaylist(playlistID, createdAt, p, best, truncated), nil
}

func filterPool(p preset.Preset, pool []track.Track) []candidate {
	out := make([]candidate, 0, len(pool))
	for i, t := range pool {
		if t.Features == nil {
			continue
		}
		if !p.BPMRange.Contains(t.Features.BPM) {
			continue
		}
		if !p.EnergyRange.Contains(t.Features.Energy) {
			continue
		}
		if p.MinTrackDurationSec > 0 && t.DurationSeconds < p.MinTrackDurationSec {
			continue
		}
		if p.MaxTrackDurationSec > 0 && t.DurationSeconds > p.MaxTrackDurationSec {
			continue
		}
		c := toCandidate(t)
		c.t.Index = i
		out = append(out, c)
	}
	return out
}

func sumDuration(pool []candidate) float64 {
	var total float64
	for _, c := range pool {
		total += c.t.DurationSeconds
	}
	return total
}

func initialBeam(pool []candidate, seed *candidate, beamWidth int) []*beamEntry {
	if seed != nil {
		return []*beamEntry{{
			steps:    []Step{{Path: seed.t.Path, TransitionScore: 0}},
			picked:   []candidate{*seed},
			score:    0,
			totalDur: seed.t.DurationSeconds,
		}}
	}

	sorted := append([]candidate(nil), pool...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].t.Path < sorted[j].t.Path })

	n := beamWidth
	if n > len(sorted) {
		n = len(sorted)
	}

	beam := make([]*beamEntry, 0, n)
	for i := 0; i < n; i++ {
		c := sorted[i]
		beam = append(beam, &beamEntry{
			steps:    []Step{{Path: c.t.Path, TransitionScore: 0}},
			picked:   []candidate{c},
			totalDur: c.t.DurationSeconds,
		})
	}

	return beam
}

func anyBelowTarget(beam []*beamEntry, target float64) bool {
	for _, b := range beam {
		if b.totalDur < target {
			return true
		}
	}
	return false
}

func bestEntry(beam []*beamEntry) *beamEntry {
	best := beam[0]
	for _, b := range beam[1:] {
		if b.score > best.score {
			best = b
		}
	}
	return best
}

// extension pairs a candidate beam entry with the tie-break keys §4.6 step 4
// ranks equal-scoring transitions by: smaller bpm jump, then larger harmony,
// then lexicographically smaller path.
type extension struct {
	entry    *beamEntry
	score    float64
	bpmDiff  float64
	harmony  float64
	lastPath string
}

// lastPath returns the path of the most recently picked track in b, or ""
// for an empty entry.
func lastPath(b *beamEntry) string {
	if len(b.steps) == 0 {
		return ""
	}
	return b.steps[len(b.steps)-1].Path
}

func extendBeam(beam []*beamEntry, pool []candidate, p preset.Preset, w preset.Weights, curve [16]float64, targetDuration float64, req Request, step int, beamWidth int) []*beamEntry {
	var candidates []extension

	for _, b := range beam {
		if b.totalDur >= targetDuration {
			candidates = append(candidates, extension{
				entry:    b,
				score:    b.score,
				bpmDiff:  0,
				harmony:  1.0,
				lastPath: lastPath(b),
			})
			continue
		}

		u := b.picked[len(b.picked)-1]

		for _, v := range pool {
			if !isFresh(v, b.picked, p.AvoidSameArtistWindow) {
				continue
			}

			if p.MaxBPMJump > 0 && math.Abs(u.bpm-v.bpm) > p.MaxBPMJump {
				continue
			}

			// At full harmonic strictness only true Camelot neighbours (same
			// number, or one step around the wheel on the same side) are
			// eligible transitions; anything looser is excluded rather than
			// merely down-weighted.
			harmony := harmonyScore(u.camelot, v.camelot)
			if p.HarmonyStrictness >= 1.0 && harmony < 1.0 {
				continue
			}

			trScore := transitionScore(u, v, p, w, curve, b.totalDur, targetDuration)

			if req.Surprise > 0 {
				trScore = mixSurprise(trScore, req.Surprise, req.TaskID, step, v.t.Path)
			}

			newEntry := &beamEntry{
				steps:    append(append([]Step(nil), b.steps...), Step{Path: v.t.Path, TransitionScore: trScore}),
				picked:   append(append([]candidate(nil), b.picked...), v),
				score:    b.score + trScore,
				totalDur: b.totalDur + v.t.DurationSeconds,
			}

			candidates = append(candidates, extension{
				entry:    newEntry,
				score:    newEntry.score,
				bpmDiff:  math.Abs(u.bpm - v.bpm),
				harmony:  harmony,
				lastPath: v.t.Path,
			})
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, c := candidates[i], candidates[j]

		if a.score != c.score {
			return a.score > c.score
		}
		if a.bpmDiff != c.bpmDiff {
			return a.bpmDiff < c.bpmDiff
		}
		if a.harmony != c.harmony {
			return a.harmony > c.harmony
		}
		return a.lastPath < c.lastPath
	})

	n := beamWidth
	if n > len(candidates) {
		n = len(candidates)
	}

	out := make([]*beamEntry, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].entry
	}

	return out
}

// isFresh reports whether v is eligible to follow history per the
// freshness rule: never repeat a path, never repeat an artist within the
// preset's avoid-same-artist window.
func isFresh(v candidate, history []candidate, window int) bool {
	for _, h := range history {
		if h.t.Path == v.t.Path {
			return false
		}
	}

	if window <= 0 || v.artist == "" {
		return true
	}

	start := len(history) - window
	if start < 0 {
		start = 0
	}

	for _, h := range history[start:] {
		if h.artist == v.artist {
			return false
		}
	}

	return true
}

// transitionScore implements the weighted sum of harmony, bpm closeness,
// energy-curve fit, mood continuity, and freshness for a candidate
// transition u -> v, where durationSoFar/targetDuration locates v along the
// preset's 16-sample target energy curve.
func transitionScore(u, v candidate, p preset.Preset, w preset.Weights, curve [16]float64, durationSoFar, targetDuration float64) float64 {
	h := harmonyScore(u.camelot, v.camelot) * p.HarmonyStrictness
	b := bpmScore(u.bpm, v.bpm, p.MaxBPMJump)
	e := energyScore(v.energy, durationSoFar, targetDuration, curve)
	m := moodScore(u.moodTag, v.moodTag, p.MoodConsistency)

	// freshness(v, history) is always 1 here: extendBeam's isFresh call
	// already excludes any v that would score 0 (repeated path, or artist
	// repeated within the window) before a candidate ever reaches scoring,
	// so w.Freshness contributes a constant bias rather than differentiating
	// surviving candidates from each other.
	return w.Harmony*h + w.BPM*b + w.Energy*e + w.Mood*m + w.Freshness*1.0
}

// harmonyScore follows the engine's own tiering (1.0 relative/adjacent, 0.6
// for a two-step or dominant relationship, 0.0 otherwise), which is finer
// grained than camelot.Distance's three-tier classification used elsewhere
// for neighbor lookups.
func harmonyScore(u, v camelot.Key) float64 {
	if u.IsZero() || v.IsZero() {
		return 0
	}

	if u.Number == v.Number && u.Letter == v.Letter {
		return 1.0
	}

	if u.Number == v.Number && u.Letter != v.Letter {
		return 1.0
	}

	diff := abs(u.Number - v.Number)

	// The dominant relationship (±7 positions) is the same step as ∓5 around
	// the 12-position wheel, so a raw difference of 7 or 5 (circular distance
	// 5) scores as dominant.
	if diff == 7 || diff == 5 {
		return 0.6
	}

	circular := diff
	if 12-diff < circular {
		circular = 12 - diff
	}

	if circular == 1 && u.Letter == v.Letter {
		return 1.0
	}

	if circular == 2 {
		return 0.6
	}

	return 0.0
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func bpmScore(a, b, maxJump float64) float64 {
	if maxJump <= 0 {
		maxJump = 1
	}

	score := 1 - math.Abs(a-b)/maxJump
	if score < 0 {
		return 0
	}
	return score
}

func energyScore(energy, durationSoFar, targetDuration float64, curve [16]float64) float64 {
	idx := 0
	if targetDuration > 0 {
		idx = int(durationSoFar / targetDuration * 16)
	}
	if idx < 0 {
		idx = 0
	}
	if idx > 15 {
		idx = 15
	}

	diff := math.Abs(energy - curve[idx])
	score := 1 - diff
	if score < 0 {
		return 0
	}
	return score
}

func moodScore(a, b mood.Tag, moodConsistency float64) float64 {
	if a == b {
		return 1.0
	}

	return 1 - moodConsistency*mood.Distance(a, b)
}

// mixSurprise blends score with a uniform pseudo-random perturbation of the
// same magnitude, deterministically seeded from (taskID, step, candidate
// path) so a fixed seed reproduces the same playlist.
func mixSurprise(score, surprise float64, taskID string, step int, path string) float64 {
	r := seededUniform(taskID, step, path)
	return (1-surprise)*score + surprise*r
}

func seededUniform(taskID string, step int, path string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(taskID + "|" + strconv.Itoa(step) + "|" + path))
	return float64(h.Sum64()%1000000) / 1000000.0
}

// mapContextErr classifies why the beam search loop was interrupted: a
// blown generation_timeout budget maps to apperror.Timeout per §7, while a
// caller-initiated Cancel is wrapped generically and relies on the task
// manager's own ctx comparison (not this error's code) to land the task in
// the cancelled state.
func mapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Wrap(apperror.Timeout, err, "playlist generation exceeded its budget")
	}

	return apperror.Wrap(apperror.Internal, err, "playlist generation cancelled")
}

func emptyPlaylist(id string, createdAt time.Time, p preset.Preset) Playlist {
	return Playlist{
		ID:        id,
		CreatedAt: createdAt,
		Metadata: Metadata{
			PresetName: p.Name,
			Empty:      true,
		},
	}
}

func buildPlaylist(id string, createdAt time.Time, p preset.Preset, best *beamEntry, truncated bool) Playlist {
	var totalBPM float64
	var energyCurve [16]float64
	n := len(best.picked)

	var elapsed float64
	for _, c := range best.picked {
		totalBPM += c.bpm

		idx := 0
		if best.totalDur > 0 {
			idx = int(elapsed / best.totalDur * 16)
		}
		if idx > 15 {
			idx = 15
		}
		energyCurve[idx] = c.energy

		elapsed += c.t.DurationSeconds
	}

	avgBPM := 0.0
	if n > 0 {
		avgBPM = totalBPM / float64(n)
	}

	return Playlist{
		ID:        id,
		CreatedAt: createdAt,
		Tracks:    best.steps,
		Metadata: Metadata{
			TotalDuration: best.totalDur,
			AvgBPM:        avgBPM,
			EnergyCurve:   energyCurve,
			PresetName:    p.Name,
			Truncated:     truncated,
		},
	}
}
