// ABOUTME: Content-addressed feature cache with a path index for fast-reject validation
// ABOUTME: Adapted from the teacher's atomic backup-then-write playlist persistence, generalized to JSON cache entries

// Package store persists extracted Features keyed by content id, maintains
// a secondary path -> content_id index for the common lookup-by-path case,
// and enforces the single-writer-per-key discipline the concurrency model
// requires.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"crateforge/internal/apperror"
	"crateforge/internal/store/sqlindex"
	"crateforge/internal/track"
	"crateforge/internal/xlog"
)

// DefaultTTL is how long a cache entry remains valid after AnalysedAt
// before it is considered stale, absent an explicit Cleanup.
const DefaultTTL = 30 * 24 * time.Hour

// pathEntry is the path index's fast-reject record: the last known
// (content_id, size, mtime) for a canonical path.
type pathEntry struct {
	ContentID string `json:"content_id"`
	FileSize  int64  `json:"file_size"`
	ModTime   int64  `json:"mtime"`
}

// keyMutexTable hands out a per-key mutex, evicted once its refcount drops
// to zero, so at most one write is ever in flight per content id without
// holding a lock for every key forever.
type keyMutexTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu  sync.Mutex
	ref int
}

func newKeyMutexTable() *keyMutexTable {
	return &keyMutexTable{locks: make(map[string]*keyLock)}
}

func (t *keyMutexTable) lock(key string) func() {
	t.mu.Lock()
	kl, ok := t.locks[key]
	if !ok {
		kl = &keyLock{}
		t.locks[key] = kl
	}
	kl.ref++
	t.mu.Unlock()

	kl.mu.Lock()

	return func() {
		kl.mu.Unlock()

		t.mu.Lock()
		kl.ref--
		if kl.ref == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// Store is the feature cache: an in-memory path index backed by JSON files
// under dataRoot/cache, with a per-content-id write mutex table guarding
// the atomic write path.
type Store struct {
	dataRoot string
	ttl      time.Duration
	logger   *xlog.Logger

	mu        sync.RWMutex
	pathIndex map[string]pathEntry

	writers *keyMutexTable
	hitRate *hitRateTracker

	// idx, when attached, mirrors every write into a SQLite-backed secondary
	// index so List/Stats run as SQL queries instead of a full directory
	// walk of the JSON cache. The JSON cache remains the source of truth;
	// idx is rebuildable from it at any time via Reindex.
	idx *sqlindex.Index
}

// AttachIndex wires a SQLite secondary index into the Store. It is optional:
// a Store with no attached index falls back to scanning the JSON cache
// directly for List and Stats. Call Reindex once after attaching to an
// index that may not already mirror the current cache contents.
func (s *Store) AttachIndex(idx *sqlindex.Index) {
	s.idx = idx
}

// Reindex rebuilds the attached secondary index from the JSON cache, the
// source of truth. It is a no-op if no index is attached.
func (s *Store) Reindex() error {
	if s.idx == nil {
		return nil
	}

	all, err := s.allTracks()
	if err != nil {
		return err
	}

	if err := s.idx.Clear(); err != nil {
		return err
	}

	for _, t := range all {
		if t.Features == nil {
			continue
		}
		if err := s.idx.Upsert(t); err != nil {
			return err
		}
	}

	return nil
}

// New constructs a Store rooted at dataRoot/cache. Call Init before use.
func New(dataRoot string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store{
		dataRoot:  dataRoot,
		ttl:       ttl,
		logger:    xlog.Default().With("store"),
		pathIndex: make(map[string]pathEntry),
		writers:   newKeyMutexTable(),
		hitRate:   &hitRateTracker{},
	}
}

func (s *Store) cacheDir() string       { return filepath.Join(s.dataRoot, "cache") }
func (s *Store) indexPath() string      { return filepath.Join(s.cacheDir(), "index.json") }
func (s *Store) entryPath(cid string) string {
	if len(cid) < 2 {
		return filepath.Join(s.cacheDir(), "by_content", "_", cid+".json")
	}

	return filepath.Join(s.cacheDir(), "by_content", cid[:2], cid+".json")
}

// Init loads the path index from disk (if present) and verifies the data
// root is writable.
func (s *Store) Init() error {
	if err := os.MkdirAll(filepath.Join(s.cacheDir(), "by_content"), 0o755); err != nil {
		return apperror.Wrap(apperror.IOError, err, "creating cache directory")
	}

	probe := filepath.Join(s.cacheDir(), ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return apperror.Wrap(apperror.IOError, err, "data root is not writable")
	}
	_ = os.Remove(probe)

	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return apperror.Wrap(apperror.IOError, err, "reading cache index")
	}

	var idx map[string]pathEntry
	if err := json.Unmarshal(data, &idx); err != nil {
		return apperror.Wrap(apperror.CorruptFile, err, "parsing cache index")
	}

	s.mu.Lock()
	s.pathIndex = idx
	s.mu.Unlock()

	return nil
}

// Shutdown flushes the path index to disk.
func (s *Store) Shutdown() error {
	return s.flushIndex()
}

func (s *Store) flushIndex() error {
	s.mu.RLock()
	snapshot := make(map[string]pathEntry, len(s.pathIndex))
	for k, v := range s.pathIndex {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	return atomicWriteJSON(s.indexPath(), snapshot)
}

// ContentID hashes the file at path. It is the cache's primary key.
func ContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperror.Wrap(apperror.IOError, err, "opening %s for hashing", path)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", apperror.Wrap(apperror.IOError, err, "hashing %s", path)
	}

	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// Resolve implements the read path: stat, fast-reject against the path
// index, and only recompute content id when size/mtime disagree.
func (s *Store) Resolve(path string) (contentID string, fromFastPath bool, err error) {
	canon, err := filepath.Abs(path)
	if err != nil {
		return "", false, apperror.Wrap(apperror.IOError, err, "resolving %s", path)
	}

	info, statErr := os.Stat(canon)
	if statErr != nil {
		return "", false, apperror.NotFoundf("track not found: %s", path)
	}

	s.mu.RLock()
	entry, ok := s.pathIndex[canon]
	s.mu.RUnlock()

	if ok && entry.FileSize == info.Size() && entry.ModTime == info.ModTime().Unix() {
		return entry.ContentID, true, nil
	}

	cid, err := ContentID(canon)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	s.pathIndex[canon] = pathEntry{ContentID: cid, FileSize: info.Size(), ModTime: info.ModTime().Unix()}
	s.mu.Unlock()

	return cid, false, nil
}

// Get loads the cache entry for contentID, reporting a miss if it doesn't
// exist or its analysis_version is stale.
func (s *Store) Get(contentID string) (track.CacheEntry, bool, error) {
	data, err := os.ReadFile(s.entryPath(contentID))
	if err != nil {
		if os.IsNotExist(err) {
			return track.CacheEntry{}, false, nil
		}

		return track.CacheEntry{}, false, apperror.Wrap(apperror.IOError, err, "reading cache entry %s", contentID)
	}

	var entry track.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return track.CacheEntry{}, false, apperror.Wrap(apperror.CorruptFile, err, "parsing cache entry %s", contentID)
	}

	if entry.AnalysisVersion < track.CurrentAnalysisVersion {
		return track.CacheEntry{}, false, nil
	}

	if !entry.Features.KeyCamelotConsistent() {
		return track.CacheEntry{}, false, apperror.Wrap(apperror.Internal, nil,
			"cache entry %s has inconsistent key/camelot", contentID)
	}

	if s.ttl > 0 && time.Since(entry.AnalysedAt) > s.ttl {
		return track.CacheEntry{}, false, nil
	}

	return entry, true, nil
}

// Put writes entry atomically under its content id and updates the path
// index, serialized per content id by the write mutex table.
func (s *Store) Put(path string, entry track.CacheEntry) error {
	unlock := s.writers.lock(entry.ContentID)
	defer unlock()

	if err := atomicWriteJSON(s.entryPath(entry.ContentID), entry); err != nil {
		return err
	}

	canon, err := filepath.Abs(path)
	if err != nil {
		return apperror.Wrap(apperror.IOError, err, "resolving %s", path)
	}

	s.mu.Lock()
	s.pathIndex[canon] = pathEntry{ContentID: entry.ContentID, FileSize: entry.FileSize, ModTime: entry.ModTime}
	s.mu.Unlock()

	if s.idx != nil {
		if err := s.idx.Upsert(trackFromEntry(entry)); err != nil {
			s.logger.Warnf("secondary index upsert failed for %s: %v", entry.ContentID, err)
		}
	}

	return s.flushIndex()
}

// GetByPath resolves path to a content id and loads the resulting Track.
func (s *Store) GetByPath(path string) (track.Track, error) {
	cid, _, err := s.Resolve(path)
	if err != nil {
		return track.Track{}, err
	}

	entry, ok, err := s.Get(cid)
	if err != nil {
		return track.Track{}, err
	}

	if !ok {
		return track.Track{}, apperror.NotFoundf("no analysis for %s", path)
	}

	return trackFromEntry(entry), nil
}

func trackFromEntry(entry track.CacheEntry) track.Track {
	analysedAt := entry.AnalysedAt
	f := entry.Features

	return track.Track{
		Path:            entry.PathAtWrite,
		ContentID:       entry.ContentID,
		FileSize:        entry.FileSize,
		ModTime:         entry.ModTime,
		DurationSeconds: durationFromTimeseries(f.EnergyTimeseries),
		Features:        &f,
		AnalysedAt:      &analysedAt,
	}
}

func durationFromTimeseries(samples []track.EnergySample) float64 {
	if len(samples) == 0 {
		return 0
	}

	return samples[len(samples)-1].T
}

// Filter narrows a List/Similar query.
type Filter struct {
	MinBPM, MaxBPM       float64
	MinEnergy, MaxEnergy float64
	Keys                 map[string]bool
	Camelots             map[string]bool
	Moods                map[string]bool
	Search               string
}

func (f Filter) matches(t track.Track) bool {
	if t.Features == nil {
		return false
	}

	feat := t.Features

	if f.MinBPM > 0 && feat.BPM < f.MinBPM {
		return false
	}

	if f.MaxBPM > 0 && feat.BPM > f.MaxBPM {
		return false
	}

	if f.MaxEnergy > 0 && feat.Energy > f.MaxEnergy {
		return false
	}

	if feat.Energy < f.MinEnergy {
		return false
	}

	if len(f.Keys) > 0 && !f.Keys[feat.Key] {
		return false
	}

	if len(f.Camelots) > 0 && !f.Camelots[feat.Camelot.String()] {
		return false
	}

	if len(f.Moods) > 0 && !f.Moods[string(feat.Mood)] {
		return false
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystacks := []string{t.Path}
		if t.Artist != nil {
			haystacks = append(haystacks, *t.Artist)
		}
		if t.Title != nil {
			haystacks = append(haystacks, *t.Title)
		}

		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), needle) {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

// SortField is one of the fields List can sort by.
type SortField string

const (
	SortArtist SortField = "artist"
	SortTitle  SortField = "title"
	SortPath   SortField = "path"
	SortBPM    SortField = "bpm"
	SortEnergy SortField = "energy"
)

// Page requests one page of a List query.
type Page struct {
	Number  int
	PerPage int
}

// List enumerates tracks matching filter, sorts deterministically, and
// returns one page plus the total matching count. When a secondary index
// is attached, the filter/sort/paginate work runs as SQL against it instead
// of walking and parsing every JSON cache entry.
func (s *Store) List(filter Filter, sortBy SortField, page Page) ([]track.Track, int, error) {
	if s.idx != nil {
		return s.listFromIndex(filter, sortBy, page)
	}

	all, err := s.allTracks()
	if err != nil {
		return nil, 0, err
	}

	matched := make([]track.Track, 0, len(all))
	for _, t := range all {
		if filter.matches(t) {
			matched = append(matched, t)
		}
	}

	sortTracks(matched, sortBy)

	total := len(matched)

	if page.PerPage <= 0 {
		return matched, total, nil
	}

	start := page.Number * page.PerPage
	if start >= total {
		return []track.Track{}, total, nil
	}

	end := start + page.PerPage
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

// listFromIndex runs filter/sortBy/page as a SQL query against the attached
// secondary index, then hydrates each matched row into a full Track by
// reading its cache entry. This avoids parsing every JSON cache file just
// to answer a filtered, paginated query.
func (s *Store) listFromIndex(filter Filter, sortBy SortField, page Page) ([]track.Track, int, error) {
	q := sqlindex.Query{
		MinBPM: filter.MinBPM, MaxBPM: filter.MaxBPM,
		MinEnergy: filter.MinEnergy, MaxEnergy: filter.MaxEnergy,
		Moods: setKeys(filter.Moods), Camelots: setKeys(filter.Camelots), Keys: setKeys(filter.Keys),
		Search: filter.Search,
		SortBy: string(sortBy),
	}

	if page.PerPage > 0 {
		q.Page, q.PerPage = page.Number, page.PerPage
	}

	rows, total, err := s.idx.List(q)
	if err != nil {
		return nil, 0, err
	}

	out := make([]track.Track, 0, len(rows))
	for _, row := range rows {
		entry, ok, err := s.Get(row.ContentID)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		out = append(out, trackFromEntry(entry))
	}

	return out, total, nil
}

func setKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}

	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}

func sortTracks(tracks []track.Track, sortBy SortField) {
	less := func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		switch sortBy {
		case SortBPM:
			return featureBPM(a) < featureBPM(b)
		case SortEnergy:
			return featureEnergy(a) < featureEnergy(b)
		case SortTitle:
			return strField(a.Title) < strField(b.Title)
		case SortPath:
			return a.Path < b.Path
		default:
			if strField(a.Artist) != strField(b.Artist) {
				return strField(a.Artist) < strField(b.Artist)
			}
			if strField(a.Title) != strField(b.Title) {
				return strField(a.Title) < strField(b.Title)
			}
			return a.Path < b.Path
		}
	}

	sort.SliceStable(tracks, less)
}

func strField(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func featureBPM(t track.Track) float64 {
	if t.Features == nil {
		return 0
	}
	return t.Features.BPM
}

func featureEnergy(t track.Track) float64 {
	if t.Features == nil {
		return 0
	}
	return t.Features.Energy
}

func (s *Store) allTracks() ([]track.Track, error) {
	root := filepath.Join(s.cacheDir(), "by_content")

	var entries []track.CacheEntry

	err := filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}

		if info.IsDir() || !strings.HasSuffix(p, ".json") {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		var entry track.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Warnf("skipping corrupt cache entry %s: %v", p, err)
			return nil
		}

		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.IOError, err, "walking cache directory")
	}

	out := make([]track.Track, 0, len(entries))
	for _, e := range entries {
		out = append(out, trackFromEntry(e))
	}

	return out, nil
}

// ScoredTrack pairs a Track with its distance from a Similar query's origin
// track, lower being more similar.
type ScoredTrack struct {
	Track    track.Track
	Distance float64
}

// MaxFeatureDistance is an upper bound on featureDistance (the default
// metric SimilarScored/Similar fall back to): bpm_norm, energy, valence,
// danceability, and mode each contribute at most 1 to the squared sum, and
// each key_circle coordinate differs by at most 2 and so contributes at most
// 4, for sqrt(5 + 8) = sqrt(13). The bound is not reached: the two
// coordinates of opposing unit-circle points contribute 4 together, so the
// largest distance featureDistance actually produces is sqrt(9) = 3. Callers
// normalize a Distance by this bound to get a [0,1] similarity score for a
// metric they don't otherwise know the range of.
const MaxFeatureDistance = 3.605551275463989

// DistanceFunc scores the dissimilarity between two tracks' features; lower
// is more similar. Similar defaults to featureDistance when none is given,
// but callers may plug in an alternative metric without Similar itself
// needing to change.
type DistanceFunc func(a, b track.Features) float64

// SimilarScored returns the k nearest tracks to the one at path, each paired
// with its distance from the origin so a caller can apply its own
// similarity cutoff. distanceFunc is optional; a nil value falls back to the
// weighted distance over (bpm_norm, energy, valence, danceability, mode,
// key_circle).
func (s *Store) SimilarScored(path string, k int, distanceFunc DistanceFunc) ([]ScoredTrack, error) {
	if distanceFunc == nil {
		distanceFunc = featureDistance
	}

	origin, err := s.GetByPath(path)
	if err != nil {
		return nil, err
	}

	all, err := s.allTracks()
	if err != nil {
		return nil, err
	}

	candidates := make([]ScoredTrack, 0, len(all))
	for _, t := range all {
		if t.Path == origin.Path || t.Features == nil {
			continue
		}

		candidates = append(candidates, ScoredTrack{Track: t, Distance: distanceFunc(*origin.Features, *t.Features)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Track.Path < candidates[j].Track.Path
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	return candidates[:k], nil
}

// Similar returns the k nearest tracks to the one at path, discarding the
// distances SimilarScored computes along the way.
func (s *Store) Similar(path string, k int, distanceFunc DistanceFunc) ([]track.Track, error) {
	scored, err := s.SimilarScored(path, k, distanceFunc)
	if err != nil {
		return nil, err
	}

	out := make([]track.Track, len(scored))
	for i, sc := range scored {
		out[i] = sc.Track
	}

	return out, nil
}

func featureDistance(a, b track.Features) float64 {
	bpmNorm := func(bpm float64) float64 {
		if bpm < 40 {
			bpm = 40
		}
		if bpm > 240 {
			bpm = 240
		}
		return (bpm - 40) / 200
	}

	mode := func(f track.Features) float64 {
		if f.Camelot.Letter == 'B' {
			return 1
		}
		return 0
	}

	keyCircle := func(f track.Features) (float64, float64) {
		if f.Camelot.IsZero() {
			return 0, 0
		}
		angle := 2 * math.Pi * float64(f.Camelot.Number-1) / 12
		return math.Cos(angle), math.Sin(angle)
	}

	dBPM := bpmNorm(a.BPM) - bpmNorm(b.BPM)
	dEnergy := a.Energy - b.Energy
	dValence := a.Valence - b.Valence
	dDance := a.Danceability - b.Danceability
	dMode := mode(a) - mode(b)

	ax, ay := keyCircle(a)
	bx, by := keyCircle(b)
	dKeyX := ax - bx
	dKeyY := ay - by

	return math.Sqrt(dBPM*dBPM + dEnergy*dEnergy + dValence*dValence + dDance*dDance + dMode*dMode + dKeyX*dKeyX + dKeyY*dKeyY)
}

// Aggregates is the payload returned by Stats.
type Aggregates struct {
	TrackCount    int
	BPMHistogram  map[int]int
	MoodHistogram map[string]int
	CacheHitRate  float64
}

// hitRateTracker counts RecordHit reports that a file was served from the
// cache vs. all reports.
type hitRateTracker struct {
	mu    sync.Mutex
	hits  int64
	total int64
}

func (h *hitRateTracker) record(hit bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total++
	if hit {
		h.hits++
	}
}

func (h *hitRateTracker) rate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.total == 0 {
		return 0
	}
	return float64(h.hits) / float64(h.total)
}

// Stats aggregates the current library: track count, BPM histogram bucketed
// at integer BPM, mood histogram, and the cache hit rate observed so far.
// When a secondary index is attached, the histograms are computed by SQL
// GROUP BY instead of parsing every cache entry.
func (s *Store) Stats() (Aggregates, error) {
	if s.idx != nil {
		idxStats, err := s.idx.ComputeStats()
		if err != nil {
			return Aggregates{}, err
		}

		return Aggregates{
			TrackCount:    idxStats.TrackCount,
			BPMHistogram:  idxStats.BPMHistogram,
			MoodHistogram: idxStats.MoodHistogram,
			CacheHitRate:  s.hitRate.rate(),
		}, nil
	}

	all, err := s.allTracks()
	if err != nil {
		return Aggregates{}, err
	}

	agg := Aggregates{
		BPMHistogram:  make(map[int]int),
		MoodHistogram: make(map[string]int),
	}

	for _, t := range all {
		if t.Features == nil {
			continue
		}

		agg.TrackCount++
		agg.BPMHistogram[int(t.Features.BPM)]++
		agg.MoodHistogram[string(t.Features.Mood)]++
	}

	agg.CacheHitRate = s.hitRate.rate()

	return agg, nil
}

// RecordHit lets the WorkerPool report whether a file's analysis was
// served from the cache, feeding Stats().CacheHitRate.
func (s *Store) RecordHit(hit bool) {
	s.hitRate.record(hit)
}

// Cleanup evicts cache entries older than olderThanDays (0 disables the age
// check) or beyond a total size budget in GB (0 disables), returning the
// number of entries removed.
func (s *Store) Cleanup(olderThanDays int, maxSizeGB float64) (int, error) {
	root := filepath.Join(s.cacheDir(), "by_content")

	type fileInfo struct {
		path string
		age  time.Time
		size int64
	}

	var files []fileInfo

	err := filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, fileInfo{path: p, age: info.ModTime(), size: info.Size()})
		return nil
	})
	if err != nil {
		return 0, apperror.Wrap(apperror.IOError, err, "walking cache directory")
	}

	removed := 0

	if olderThanDays > 0 {
		cutoff := time.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
		kept := files[:0]
		for _, f := range files {
			if f.age.Before(cutoff) {
				_ = os.Remove(f.path)
				s.removeFromIndex(f.path)
				removed++
				continue
			}
			kept = append(kept, f)
		}
		files = kept
	}

	if maxSizeGB > 0 {
		sort.Slice(files, func(i, j int) bool { return files[i].age.Before(files[j].age) })

		var total int64
		for _, f := range files {
			total += f.size
		}

		budget := int64(maxSizeGB * 1024 * 1024 * 1024)
		i := 0
		for total > budget && i < len(files) {
			_ = os.Remove(files[i].path)
			s.removeFromIndex(files[i].path)
			total -= files[i].size
			removed++
			i++
		}
	}

	return removed, nil
}

// removeFromIndex drops the secondary index row for the cache entry file at
// p, if an index is attached. The content id is the file's basename.
func (s *Store) removeFromIndex(p string) {
	if s.idx == nil {
		return
	}

	contentID := strings.TrimSuffix(filepath.Base(p), ".json")
	if err := s.idx.Remove(contentID); err != nil {
		s.logger.Warnf("removing %s from secondary index: %v", contentID, err)
	}
}

// Clear empties the entire cache: every content entry and the path index.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.cacheDir()); err != nil {
		return apperror.Wrap(apperror.IOError, err, "clearing cache")
	}

	s.mu.Lock()
	s.pathIndex = make(map[string]pathEntry)
	s.mu.Unlock()

	if s.idx != nil {
		if err := s.idx.Clear(); err != nil {
			s.logger.Warnf("clearing secondary index: %v", err)
		}
	}

	return s.Init()
}

func atomicWriteJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperror.Wrap(apperror.IOError, err, "creating directory for %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperror.Wrap(apperror.IOError, err, "creating temp file for %s", path)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		return apperror.Wrap(apperror.IOError, err, "encoding %s", path)
	}

	if err := tmp.Close(); err != nil {
		return apperror.Wrap(apperror.IOError, err, "closing temp file for %s", path)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperror.Wrap(apperror.IOError, err, "renaming into place: %s", path)
	}

	return nil
}
