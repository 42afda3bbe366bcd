// Package backup produces and restores JSON snapshots of a profile's
// full AniList anime list: created on service start and daily at local
// midnight, retained for a configurable window, and restored by
// computing a per-entry delta against the live list.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"plexanibridge/internal/domain"
)

const version = "1"

// Writer is the subset of the AniList client restore needs.
type Writer interface {
	SaveEntry(ctx context.Context, entry domain.AniListListEntry) error
	DeleteEntry(ctx context.Context, listEntryID int) error
}

// Store manages backup files under dataPath/backups.
type Store struct {
	dir string
}

// New returns a Store rooted at dataPath/backups, creating it if absent.
func New(dataPath string) (*Store, error) {
	dir := filepath.Join(dataPath, "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create backups dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// onDisk is the JSON document shape: {created_at, user, version, entries}.
type onDisk struct {
	CreatedAt time.Time                  `json:"created_at"`
	User      string                     `json:"user"`
	Version   string                     `json:"version"`
	Entries   []domain.AniListListEntry `json:"entries"`
}

// Create writes a new backup file for profile containing entries, named
// plexanibridge-<profile>.<timestamp>.json.
func (s *Store) Create(profile, user string, entries []domain.AniListListEntry) (string, error) {
	now := time.Now().UTC()
	doc := onDisk{CreatedAt: now, User: user, Version: version, Entries: entries}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("backup: marshal: %w", err)
	}

	name := fmt.Sprintf("plexanibridge-%s.%s.json", profile, now.Format("20060102T150405Z"))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("backup: write %s: %w", path, err)
	}
	return name, nil
}

// List returns backup filenames for profile, newest first.
func (s *Store) List(profile string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	prefix := fmt.Sprintf("plexanibridge-%s.", profile)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Load reads and decodes one backup file by name.
func (s *Store) Load(name string) (domain.Backup, []domain.AniListListEntry, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return domain.Backup{}, nil, fmt.Errorf("backup: read %s: %w", name, err)
	}
	var doc onDisk
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.Backup{}, nil, fmt.Errorf("backup: decode %s: %w", name, err)
	}
	return domain.Backup{
		CreatedAt: doc.CreatedAt,
		User:      doc.User,
		Version:   doc.Version,
		Entries:   doc.Entries,
	}, doc.Entries, nil
}

// Prune deletes backup files for profile older than retention.
func (s *Store) Prune(profile string, retention time.Duration) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("backup: prune: %w", err)
	}
	cutoff := time.Now().Add(-retention)
	prefix := fmt.Sprintf("plexanibridge-%s.", profile)

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
	return nil
}

// Restore replaces the live list with snapshot's entries by computing a
// delta against current and writing via writer. Restore is destructive
// by definition: entries present in current but absent from snapshot
// are deleted; everything else is written unconditionally from the
// snapshot. A write or delete failure is recorded against that entry
// and restoration continues through the rest of the snapshot rather
// than aborting.
func Restore(ctx context.Context, writer Writer, current, snapshot []domain.AniListListEntry) domain.RestoreSummary {
	currentByMedia := make(map[int]domain.AniListListEntry, len(current))
	for _, e := range current {
		currentByMedia[e.MediaID] = e
	}
	snapshotByMedia := make(map[int]bool, len(snapshot))

	var summary domain.RestoreSummary

	for _, e := range snapshot {
		snapshotByMedia[e.MediaID] = true
		summary.Processed++
		if err := writer.SaveEntry(ctx, e); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("restore write media %d: %v", e.MediaID, err))
			continue
		}
		summary.Restored++
	}

	for mediaID := range currentByMedia {
		if snapshotByMedia[mediaID] {
			continue
		}
		summary.Processed++
		if err := writer.DeleteEntry(ctx, mediaID); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("restore delete media %d: %v", mediaID, err))
			continue
		}
		summary.Restored++
	}
	return summary
}
