package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"plexanibridge/internal/domain"
)

const pinsSchema = `
CREATE TABLE IF NOT EXISTS pins (
	profile TEXT NOT NULL,
	anilist_id INTEGER NOT NULL,
	fields TEXT NOT NULL DEFAULT '[]',
	note TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (profile, anilist_id)
);
`

// PinStore persists PinRecords: fields the reconciler must never
// overwrite for a given (profile, media) pair.
type PinStore struct {
	db *sql.DB
}

// NewPinStore ensures the pins schema exists on db.
func NewPinStore(db *sql.DB) (*PinStore, error) {
	if _, err := db.Exec(pinsSchema); err != nil {
		return nil, fmt.Errorf("history: create pins schema: %w", err)
	}
	return &PinStore{db: db}, nil
}

// Upsert creates or replaces the pin record for (profile, anilistID).
func (p *PinStore) Upsert(ctx context.Context, rec domain.PinRecord) error {
	fields := make([]string, 0, len(rec.Fields))
	for f, on := range rec.Fields {
		if on {
			fields = append(fields, f)
		}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("history: marshal pin fields: %w", err)
	}

	now := time.Now()
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO pins (profile, anilist_id, fields, note, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile, anilist_id) DO UPDATE SET
			fields = excluded.fields, note = excluded.note, updated_at = excluded.updated_at`,
		rec.Profile, rec.AniListID, string(fieldsJSON), rec.Note, rec.CreatedAt.Unix(), now.Unix())
	return err
}

// Delete removes a pin record.
func (p *PinStore) Delete(ctx context.Context, profile string, anilistID int) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM pins WHERE profile = ? AND anilist_id = ?`, profile, anilistID)
	return err
}

// Get fetches the pin record for (profile, anilistID), if any. Callers
// pass the returned Fields map directly into reconcile.ApplyPolicy.
func (p *PinStore) Get(ctx context.Context, profile string, anilistID int) (domain.PinRecord, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT profile, anilist_id, fields, note, created_at, updated_at
		FROM pins WHERE profile = ? AND anilist_id = ?`, profile, anilistID)

	var (
		rec        domain.PinRecord
		fieldsJSON string
		created, updated int64
	)
	if err := row.Scan(&rec.Profile, &rec.AniListID, &fieldsJSON, &rec.Note, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return domain.PinRecord{}, false, nil
		}
		return domain.PinRecord{}, false, err
	}

	var fields []string
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return domain.PinRecord{}, false, fmt.Errorf("history: unmarshal pin fields: %w", err)
	}
	rec.Fields = make(map[string]bool, len(fields))
	for _, f := range fields {
		rec.Fields[f] = true
	}
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	return rec, true, nil
}

// ByProfile lists every pin record for a profile.
func (p *PinStore) ByProfile(ctx context.Context, profile string) ([]domain.PinRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT profile, anilist_id, fields, note, created_at, updated_at
		FROM pins WHERE profile = ?`, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PinRecord
	for rows.Next() {
		var (
			rec        domain.PinRecord
			fieldsJSON string
			created, updated int64
		)
		if err := rows.Scan(&rec.Profile, &rec.AniListID, &fieldsJSON, &rec.Note, &created, &updated); err != nil {
			return nil, err
		}
		var fields []string
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("history: unmarshal pin fields: %w", err)
		}
		rec.Fields = make(map[string]bool, len(fields))
		for _, f := range fields {
			rec.Fields[f] = true
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		rec.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
