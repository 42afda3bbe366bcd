package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const watermarkSchema = `
CREATE TABLE IF NOT EXISTS watermarks (
	profile            TEXT PRIMARY KEY,
	last_full_sync_at  INTEGER,
	last_poll_at       INTEGER
);
`

// WatermarkStore persists, per profile, the timestamp of the last
// successful full scan and the last successful poll. The scheduler
// consults these to decide whether a periodic or poll trigger can
// narrow its Plex query to "updated since" instead of walking every
// item in the library.
type WatermarkStore struct {
	db *sql.DB
}

// NewWatermarkStore ensures the watermarks schema exists on db.
func NewWatermarkStore(db *sql.DB) (*WatermarkStore, error) {
	if _, err := db.Exec(watermarkSchema); err != nil {
		return nil, fmt.Errorf("history: create watermark schema: %w", err)
	}
	return &WatermarkStore{db: db}, nil
}

// Get returns the last full-sync and last-poll watermarks for profile.
// A zero time.Time means no successful run of that kind has completed.
func (w *WatermarkStore) Get(ctx context.Context, profile string) (lastFullSync, lastPoll time.Time, err error) {
	row := w.db.QueryRowContext(ctx,
		`SELECT last_full_sync_at, last_poll_at FROM watermarks WHERE profile = ?`, profile)

	var fullSync, poll sql.NullInt64
	if err := row.Scan(&fullSync, &poll); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, time.Time{}, nil
		}
		return time.Time{}, time.Time{}, err
	}
	if fullSync.Valid {
		lastFullSync = time.Unix(fullSync.Int64, 0).UTC()
	}
	if poll.Valid {
		lastPoll = time.Unix(poll.Int64, 0).UTC()
	}
	return lastFullSync, lastPoll, nil
}

// SetFullSync records a successful full scan at ts for profile.
func (w *WatermarkStore) SetFullSync(ctx context.Context, profile string, ts time.Time) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO watermarks (profile, last_full_sync_at) VALUES (?, ?)
		ON CONFLICT(profile) DO UPDATE SET last_full_sync_at = excluded.last_full_sync_at`,
		profile, ts.Unix())
	return err
}

// SetPoll records a successful poll at ts for profile.
func (w *WatermarkStore) SetPoll(ctx context.Context, profile string, ts time.Time) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO watermarks (profile, last_poll_at) VALUES (?, ?)
		ON CONFLICT(profile) DO UPDATE SET last_poll_at = excluded.last_poll_at`,
		profile, ts.Unix())
	return err
}
