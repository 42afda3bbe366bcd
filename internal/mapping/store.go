// Package mapping is the Mappings Store and Resolver: it persists
// merged mapping records in an embedded SQL database with a full-text
// index on titles, and answers "Plex item -> AniList entry + episode
// range" queries. A narrow repository over plain database/sql, storing
// array/map fields as JSON columns rather than reaching for an ORM.
package mapping

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/syncerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS mappings (
	anilist_id          INTEGER PRIMARY KEY,
	anidb_id            INTEGER,
	tvdb_id             INTEGER,
	tmdb_movie_ids      TEXT NOT NULL DEFAULT '[]',
	tmdb_show_ids       TEXT NOT NULL DEFAULT '[]',
	imdb_ids            TEXT NOT NULL DEFAULT '[]',
	mal_ids             TEXT NOT NULL DEFAULT '[]',
	tvdb_season_ranges  TEXT NOT NULL DEFAULT '{}',
	tmdb_season_ranges  TEXT NOT NULL DEFAULT '{}',
	sources             TEXT NOT NULL DEFAULT '[]',
	custom              INTEGER NOT NULL DEFAULT 0,
	notes               TEXT NOT NULL DEFAULT '',
	title               TEXT NOT NULL DEFAULT '',
	year                INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_mappings_anidb ON mappings(anidb_id);
CREATE INDEX IF NOT EXISTS idx_mappings_tvdb ON mappings(tvdb_id);

CREATE VIRTUAL TABLE IF NOT EXISTS mappings_fts USING fts5(
	title,
	content='mappings',
	content_rowid='anilist_id'
);

CREATE TRIGGER IF NOT EXISTS mappings_ai AFTER INSERT ON mappings BEGIN
	INSERT INTO mappings_fts(rowid, title) VALUES (new.anilist_id, new.title);
END;

CREATE TRIGGER IF NOT EXISTS mappings_ad AFTER DELETE ON mappings BEGIN
	INSERT INTO mappings_fts(mappings_fts, rowid, title) VALUES ('delete', old.anilist_id, old.title);
END;

CREATE TRIGGER IF NOT EXISTS mappings_au AFTER UPDATE ON mappings BEGIN
	INSERT INTO mappings_fts(mappings_fts, rowid, title) VALUES ('delete', old.anilist_id, old.title);
	INSERT INTO mappings_fts(rowid, title) VALUES (new.anilist_id, new.title);
END;
`

const currentSchemaVersion = 1

// Store is the embedded-SQL mappings repository. One Store per process;
// the database-sync job is its single writer, profile syncs are
// many concurrent readers.
type Store struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at path and ensures the
// schema is current. modernc.org/sqlite is cgo-free with FTS5 compiled
// in.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, syncerr.New(syncerr.KindInternal, "mapping", "open", err)
	}
	db.SetMaxOpenConns(1) // sqlite: single writer, WAL lets readers proceed concurrently

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncerr.New(syncerr.KindInternal, "mapping", "migrate", err)
	}
	if err := ensureSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func ensureSchemaVersion(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return syncerr.New(syncerr.KindInternal, "mapping", "schema_version", err)
	}
	if count == 0 {
		_, err := db.Exec(`INSERT INTO schema_version(version) VALUES (?)`, currentSchemaVersion)
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection so other stores backed by the
// same anibridge.db file (history, pins) can share it instead of
// opening a second handle.
func (s *Store) DB() *sql.DB { return s.db }

// Upsert writes a merged mapping record, replacing any existing row
// with the same AniList ID. Called only by the database-sync job.
func (s *Store) Upsert(ctx context.Context, m domain.Mapping) error {
	tvdbRanges, err := json.Marshal(m.TVDBSeasonRanges)
	if err != nil {
		return err
	}
	tmdbRanges, err := json.Marshal(m.TMDBSeasonRanges)
	if err != nil {
		return err
	}
	tmdbMovie, _ := json.Marshal(m.TMDBMovieIDs)
	tmdbShow, _ := json.Marshal(m.TMDBShowIDs)
	imdb, _ := json.Marshal(m.IMDBIDs)
	mal, _ := json.Marshal(m.MALIDs)
	sources, _ := json.Marshal(m.Sources)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mappings (
			anilist_id, anidb_id, tvdb_id, tmdb_movie_ids, tmdb_show_ids,
			imdb_ids, mal_ids, tvdb_season_ranges, tmdb_season_ranges,
			sources, custom, notes, title, year
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(anilist_id) DO UPDATE SET
			anidb_id=excluded.anidb_id, tvdb_id=excluded.tvdb_id,
			tmdb_movie_ids=excluded.tmdb_movie_ids, tmdb_show_ids=excluded.tmdb_show_ids,
			imdb_ids=excluded.imdb_ids, mal_ids=excluded.mal_ids,
			tvdb_season_ranges=excluded.tvdb_season_ranges, tmdb_season_ranges=excluded.tmdb_season_ranges,
			sources=excluded.sources, custom=excluded.custom, notes=excluded.notes,
			title=excluded.title, year=excluded.year
	`, m.AniListID, nullableInt(m.AniDBID), nullableInt(m.TVDBID), string(tmdbMovie), string(tmdbShow),
		string(imdb), string(mal), string(tvdbRanges), string(tmdbRanges),
		string(sources), boolToInt(m.Custom), m.Notes, m.Title, m.Year)
	return err
}

// Delete removes a custom override's materialized row.
func (s *Store) Delete(ctx context.Context, anilistID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mappings WHERE anilist_id = ?`, anilistID)
	return err
}

// ByAniListID fetches a single mapping by its primary key.
func (s *Store) ByAniListID(ctx context.Context, id int) (domain.Mapping, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM mappings WHERE anilist_id = ?`, id)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return domain.Mapping{}, false, nil
	}
	if err != nil {
		return domain.Mapping{}, false, err
	}
	return m, true, nil
}

// ByExternalID looks up mappings carrying the given external ID in the
// given provider column ("anidb" or "tvdb", the only single-valued
// scalar columns; multi-valued providers use ByExternalIDMulti).
func (s *Store) ByExternalID(ctx context.Context, provider string, id int) ([]domain.Mapping, error) {
	col, ok := map[string]string{"anidb": "anidb_id", "tvdb": "tvdb_id"}[provider]
	if !ok {
		return nil, fmt.Errorf("mapping: unsupported scalar provider %q", provider)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM mappings WHERE `+col+` = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

// ByExternalIDMulti scans the JSON array columns for providers that
// support more than one ID per AniList entry (tmdb_movie, tmdb_show,
// imdb, mal). This is a table scan; the mappings table is small enough
// (tens of thousands of rows) that this stays well within request
// budgets, and it is only exercised by the resolver's direct-match step.
func (s *Store) ByExternalIDMulti(ctx context.Context, provider string, id string) ([]domain.Mapping, error) {
	col, ok := map[string]string{
		"tmdb_movie": "tmdb_movie_ids",
		"tmdb_show":  "tmdb_show_ids",
		"imdb":       "imdb_ids",
		"mal":        "mal_ids",
	}[provider]
	if !ok {
		return nil, fmt.Errorf("mapping: unsupported multi provider %q", provider)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM mappings, json_each(mappings.`+col+`)
		WHERE json_each.value = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

// ByTitleYear supports the override-only match step: title+year
// equality (case-insensitive).
func (s *Store) ByTitleYear(ctx context.Context, title string, year int) ([]domain.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+` FROM mappings
		WHERE lower(title) = lower(?) AND (year = ? OR ? = 0)`, title, year, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

// SearchFTS runs a full-text query over titles and returns candidate
// mappings ranked by relevance; each query word is matched as a prefix.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]domain.Mapping, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.`+strings.ReplaceAll(selectColumns, ", ", ", m.")+`
		FROM mappings_fts
		JOIN mappings m ON m.anilist_id = mappings_fts.rowid
		WHERE mappings_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

// All returns a point-in-time snapshot of every mapping, used by the
// Booru query engine and by resolver warm-up.
func (s *Store) All(ctx context.Context) ([]domain.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

const selectColumns = `anilist_id, anidb_id, tvdb_id, tmdb_movie_ids, tmdb_show_ids, imdb_ids, mal_ids, tvdb_season_ranges, tmdb_season_ranges, sources, custom, notes, title, year`

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(row scanner) (domain.Mapping, error) {
	var m domain.Mapping
	var anidb, tvdb sql.NullInt64
	var tmdbMovie, tmdbShow, imdb, mal, tvdbRanges, tmdbRanges, sources string
	var custom int

	err := row.Scan(&m.AniListID, &anidb, &tvdb, &tmdbMovie, &tmdbShow, &imdb, &mal,
		&tvdbRanges, &tmdbRanges, &sources, &custom, &m.Notes, &m.Title, &m.Year)
	if err != nil {
		return domain.Mapping{}, err
	}

	if anidb.Valid {
		v := int(anidb.Int64)
		m.AniDBID = &v
	}
	if tvdb.Valid {
		v := int(tvdb.Int64)
		m.TVDBID = &v
	}
	_ = json.Unmarshal([]byte(tmdbMovie), &m.TMDBMovieIDs)
	_ = json.Unmarshal([]byte(tmdbShow), &m.TMDBShowIDs)
	_ = json.Unmarshal([]byte(imdb), &m.IMDBIDs)
	_ = json.Unmarshal([]byte(mal), &m.MALIDs)
	_ = json.Unmarshal([]byte(tvdbRanges), &m.TVDBSeasonRanges)
	_ = json.Unmarshal([]byte(tmdbRanges), &m.TMDBSeasonRanges)
	_ = json.Unmarshal([]byte(sources), &m.Sources)
	m.Custom = custom != 0

	return m, nil
}

func scanMappings(rows *sql.Rows) ([]domain.Mapping, error) {
	var out []domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ftsQuery escapes a free-text query for FTS5's MATCH operator by
// quoting each token, so punctuation in titles never produces a syntax
// error.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		fields[i] = `"` + f + `"*`
	}
	return strings.Join(fields, " ")
}
