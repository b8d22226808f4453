// ABOUTME: SQLite-backed secondary index mirroring the Store for paginated/filterable queries
// ABOUTME: Grounded in the pack's own SQLite usage (anyuan-chen-splitter/server/db, ewilliams-labs-overture/sqlite adapter)

// Package sqlindex maintains a SQLite mirror of the Store's track metadata
// so List/Stats-style queries run as SQL rather than a full directory walk
// of the JSON cache. The JSON cache under cache/by_content remains the
// source of truth; this index is rebuildable from it at any time.
package sqlindex

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"crateforge/internal/apperror"
	"crateforge/internal/track"
)

// Index is a SQLite-backed secondary index over track metadata.
type Index struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	content_id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	artist TEXT,
	title TEXT,
	bpm REAL,
	key TEXT,
	camelot TEXT,
	energy REAL,
	mood TEXT,
	analysed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_tracks_path ON tracks(path);
CREATE INDEX IF NOT EXISTS idx_tracks_bpm ON tracks(bpm);
CREATE INDEX IF NOT EXISTS idx_tracks_mood ON tracks(mood);
CREATE INDEX IF NOT EXISTS idx_tracks_camelot ON tracks(camelot);
`

// Open opens (creating if necessary) the SQLite file at path and ensures
// the schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperror.Wrap(apperror.IOError, err, "opening sqlite index at %s", path)
	}

	if err := db.Ping(); err != nil {
		return nil, apperror.Wrap(apperror.IOError, err, "pinging sqlite index at %s", path)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, apperror.Wrap(apperror.IOError, err, "creating sqlite schema")
	}

	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces the row mirroring t.
func (idx *Index) Upsert(t track.Track) error {
	if t.Features == nil {
		return apperror.InvalidArgumentf("cannot index a track with no features: %s", t.Path)
	}

	var analysedAt string
	if t.AnalysedAt != nil {
		analysedAt = t.AnalysedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	_, err := idx.db.Exec(`
		INSERT INTO tracks (content_id, path, artist, title, bpm, key, camelot, energy, mood, analysed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			path=excluded.path, artist=excluded.artist, title=excluded.title,
			bpm=excluded.bpm, key=excluded.key, camelot=excluded.camelot,
			energy=excluded.energy, mood=excluded.mood, analysed_at=excluded.analysed_at
	`, t.ContentID, t.Path, nullableString(t.Artist), nullableString(t.Title),
		t.Features.BPM, t.Features.Key, t.Features.Camelot.String(), t.Features.Energy,
		string(t.Features.Mood), analysedAt)
	if err != nil {
		return apperror.Wrap(apperror.IOError, err, "upserting track %s into sqlite index", t.Path)
	}

	return nil
}

// Remove deletes the row for contentID, e.g. when a track is evicted from
// the cache during Cleanup or Clear.
func (idx *Index) Remove(contentID string) error {
	if _, err := idx.db.Exec(`DELETE FROM tracks WHERE content_id = ?`, contentID); err != nil {
		return apperror.Wrap(apperror.IOError, err, "removing %s from sqlite index", contentID)
	}

	return nil
}

// Clear empties every row, mirroring a full Store.Clear.
func (idx *Index) Clear() error {
	if _, err := idx.db.Exec(`DELETE FROM tracks`); err != nil {
		return apperror.Wrap(apperror.IOError, err, "clearing sqlite index")
	}

	return nil
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *p, Valid: true}
}

// Query describes a filtered, sorted, paginated lookup against the index.
// Moods, Camelots, and Keys are OR'd within themselves and AND'd against
// every other field, matching the store.Filter set-membership semantics.
type Query struct {
	MinBPM, MaxBPM       float64
	MinEnergy, MaxEnergy float64
	Moods                []string
	Camelots             []string
	Keys                 []string
	Search               string
	SortBy               string
	Page, PerPage        int
}

// Row is one matched track, as stored in the index.
type Row struct {
	ContentID string
	Path      string
	Artist    string
	Title     string
	BPM       float64
	Key       string
	Camelot   string
	Energy    float64
	Mood      string
}

// List runs q against the index and returns the matching page plus the
// total count of rows matching the filters (ignoring pagination).
func (idx *Index) List(q Query) ([]Row, int, error) {
	where, args := q.buildWhere()

	var total int
	countSQL := "SELECT COUNT(*) FROM tracks " + where
	if err := idx.db.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, apperror.Wrap(apperror.IOError, err, "counting sqlite index rows")
	}

	orderBy := "artist, title, path"
	switch q.SortBy {
	case "bpm":
		orderBy = "bpm"
	case "energy":
		orderBy = "energy"
	case "path":
		orderBy = "path"
	}

	listSQL := fmt.Sprintf(
		"SELECT content_id, path, COALESCE(artist,''), COALESCE(title,''), bpm, key, camelot, energy, mood FROM tracks %s ORDER BY %s",
		where, orderBy,
	)

	queryArgs := args
	if q.PerPage > 0 {
		listSQL += " LIMIT ? OFFSET ?"
		queryArgs = append(append([]interface{}{}, args...), q.PerPage, q.Page*q.PerPage)
	}

	rows, err := idx.db.Query(listSQL, queryArgs...)
	if err != nil {
		return nil, 0, apperror.Wrap(apperror.IOError, err, "querying sqlite index")
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ContentID, &r.Path, &r.Artist, &r.Title, &r.BPM, &r.Key, &r.Camelot, &r.Energy, &r.Mood); err != nil {
			return nil, 0, apperror.Wrap(apperror.IOError, err, "scanning sqlite index row")
		}
		out = append(out, r)
	}

	return out, total, nil
}

func (q Query) buildWhere() (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if q.MinBPM > 0 {
		clauses = append(clauses, "bpm >= ?")
		args = append(args, q.MinBPM)
	}

	if q.MaxBPM > 0 {
		clauses = append(clauses, "bpm <= ?")
		args = append(args, q.MaxBPM)
	}

	if q.MaxEnergy > 0 {
		clauses = append(clauses, "energy <= ?")
		args = append(args, q.MaxEnergy)
	}

	if q.MinEnergy > 0 {
		clauses = append(clauses, "energy >= ?")
		args = append(args, q.MinEnergy)
	}

	if len(q.Moods) > 0 {
		clauses = append(clauses, inClause("mood", len(q.Moods)))
		for _, m := range q.Moods {
			args = append(args, m)
		}
	}

	if len(q.Camelots) > 0 {
		clauses = append(clauses, inClause("camelot", len(q.Camelots)))
		for _, c := range q.Camelots {
			args = append(args, c)
		}
	}

	if len(q.Keys) > 0 {
		clauses = append(clauses, inClause("key", len(q.Keys)))
		for _, k := range q.Keys {
			args = append(args, k)
		}
	}

	if q.Search != "" {
		clauses = append(clauses, "(path LIKE ? OR artist LIKE ? OR title LIKE ?)")
		needle := "%" + q.Search + "%"
		args = append(args, needle, needle, needle)
	}

	if len(clauses) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func inClause(column string, n int) string {
	placeholders := strings.Repeat("?,", n)
	return fmt.Sprintf("%s IN (%s)", column, strings.TrimSuffix(placeholders, ","))
}

// Stats returns counts and histograms computed entirely in SQL.
type Stats struct {
	TrackCount    int
	BPMHistogram  map[int]int
	MoodHistogram map[string]int
}

// ComputeStats aggregates the whole index via grouped SQL queries, the same
// COALESCE/aggregate idiom the pack's sqlite adapter uses for playlist
// feature averages.
func (idx *Index) ComputeStats() (Stats, error) {
	stats := Stats{BPMHistogram: make(map[int]int), MoodHistogram: make(map[string]int)}

	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM tracks`).Scan(&stats.TrackCount); err != nil {
		return Stats{}, apperror.Wrap(apperror.IOError, err, "counting tracks")
	}

	bpmRows, err := idx.db.Query(`SELECT CAST(bpm AS INTEGER) AS bucket, COUNT(*) FROM tracks GROUP BY bucket`)
	if err != nil {
		return Stats{}, apperror.Wrap(apperror.IOError, err, "computing bpm histogram")
	}
	defer func() { _ = bpmRows.Close() }()

	for bpmRows.Next() {
		var bucket, count int
		if err := bpmRows.Scan(&bucket, &count); err != nil {
			return Stats{}, apperror.Wrap(apperror.IOError, err, "scanning bpm histogram")
		}
		stats.BPMHistogram[bucket] = count
	}

	moodRows, err := idx.db.Query(`SELECT mood, COUNT(*) FROM tracks GROUP BY mood`)
	if err != nil {
		return Stats{}, apperror.Wrap(apperror.IOError, err, "computing mood histogram")
	}
	defer func() { _ = moodRows.Close() }()

	for moodRows.Next() {
		var tag string
		var count int
		if err := moodRows.Scan(&tag, &count); err != nil {
			return Stats{}, apperror.Wrap(apperror.IOError, err, "scanning mood histogram")
		}
		stats.MoodHistogram[tag] = count
	}

	return stats, nil
}
