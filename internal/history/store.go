// Package history is the append-only record of sync decisions, plus the
// pin table that marks fields the engine must never overwrite. Built
// the same way as internal/mapping's embedded-SQL store: plain
// database/sql over modernc.org/sqlite with JSON columns for the
// pointer-shaped AniListListEntry snapshots, rather than an ORM.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"plexanibridge/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	profile TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	plex_rating_key TEXT NOT NULL,
	plex_child_rating_key TEXT NOT NULL DEFAULT '',
	plex_guid TEXT NOT NULL DEFAULT '',
	plex_type TEXT NOT NULL DEFAULT '',
	anilist_id INTEGER,
	outcome TEXT NOT NULL,
	before_state TEXT,
	after_state TEXT,
	error_message TEXT NOT NULL DEFAULT '',
	undone INTEGER NOT NULL DEFAULT 0,
	undoes_event_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_history_profile_ts ON history(profile, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_history_anilist_id ON history(anilist_id);
`

// Store persists HistoryEvents. It shares the sqlite handle the mapping
// store uses for anibridge.db rather than opening a second connection.
type Store struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB (see mapping.Open for the schema
// bootstrap pattern this mirrors) and ensures the history schema exists.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

const selectColumns = `id, profile, timestamp, plex_rating_key, plex_child_rating_key, plex_guid, plex_type,
	anilist_id, outcome, before_state, after_state, error_message, undone, undoes_event_id`

// Append inserts a new HistoryEvent and returns its assigned ID.
func (s *Store) Append(ctx context.Context, e domain.HistoryEvent) (int64, error) {
	before, err := marshalEntry(e.BeforeState)
	if err != nil {
		return 0, err
	}
	after, err := marshalEntry(e.AfterState)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO history (profile, timestamp, plex_rating_key, plex_child_rating_key, plex_guid, plex_type,
			anilist_id, outcome, before_state, after_state, error_message, undone, undoes_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Profile, e.Timestamp.Unix(), e.PlexRatingKey, e.PlexChildRatingKey, e.PlexGuid, string(e.PlexType),
		nullableInt(e.AniListID), string(e.Outcome), before, after, e.ErrorMessage, boolToInt(e.Undone), nullableInt64(e.UndoesEventID))
	if err != nil {
		return 0, fmt.Errorf("history: append: %w", err)
	}
	return res.LastInsertId()
}

// MarkUndone sets the undone flag on event id.
func (s *Store) MarkUndone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE history SET undone = 1 WHERE id = ?`, id)
	return err
}

// ByID fetches a single event.
func (s *Store) ByID(ctx context.Context, id int64) (domain.HistoryEvent, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM history WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return domain.HistoryEvent{}, false, nil
	}
	if err != nil {
		return domain.HistoryEvent{}, false, err
	}
	return e, true, nil
}

// Filter narrows a listing by profile (empty = all), outcome (empty =
// all), and a time window (zero values = unbounded).
type Filter struct {
	Profile string
	Outcome domain.Outcome
	Since   time.Time
	Until   time.Time
	Limit   int
	Offset  int
}

// List returns events matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]domain.HistoryEvent, error) {
	query := `SELECT ` + selectColumns + ` FROM history WHERE 1=1`
	var args []any

	if f.Profile != "" {
		query += ` AND profile = ?`
		args = append(args, f.Profile)
	}
	if f.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(f.Outcome))
	}
	if !f.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Since.Unix())
	}
	if !f.Until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.Until.Unix())
	}
	query += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes a single event permanently (delete_history op).
func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (domain.HistoryEvent, error) {
	var (
		e                                   domain.HistoryEvent
		ts                                  int64
		anilistID, undoesEventID            sql.NullInt64
		before, after                       sql.NullString
		outcome, plexType                   string
		undone                              int
	)
	if err := row.Scan(&e.ID, &e.Profile, &ts, &e.PlexRatingKey, &e.PlexChildRatingKey, &e.PlexGuid, &plexType,
		&anilistID, &outcome, &before, &after, &e.ErrorMessage, &undone, &undoesEventID); err != nil {
		return domain.HistoryEvent{}, err
	}

	e.Timestamp = time.Unix(ts, 0).UTC()
	e.PlexType = domain.ItemType(plexType)
	e.Outcome = domain.Outcome(outcome)
	e.Undone = undone != 0
	if anilistID.Valid {
		v := int(anilistID.Int64)
		e.AniListID = &v
	}
	if undoesEventID.Valid {
		e.UndoesEventID = &undoesEventID.Int64
	}

	var err error
	e.BeforeState, err = unmarshalEntry(before)
	if err != nil {
		return domain.HistoryEvent{}, err
	}
	e.AfterState, err = unmarshalEntry(after)
	if err != nil {
		return domain.HistoryEvent{}, err
	}
	return e, nil
}

func marshalEntry(e *domain.AniListListEntry) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("history: marshal entry: %w", err)
	}
	return string(b), nil
}

func unmarshalEntry(s sql.NullString) (*domain.AniListListEntry, error) {
	if !s.Valid {
		return nil, nil
	}
	var e domain.AniListListEntry
	if err := json.Unmarshal([]byte(s.String), &e); err != nil {
		return nil, fmt.Errorf("history: unmarshal entry: %w", err)
	}
	return &e, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt64(p *int64) any {
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
