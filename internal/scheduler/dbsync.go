package scheduler

import (
	"context"
	"log/slog"
	"time"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/mapping"
)

// MappingSource abstracts the authoritative remote mapping document plus
// any local custom override files, decoupling the database-sync job
// from the concrete fetcher/store types.
type MappingSource interface {
	FetchAuthoritative(ctx context.Context) ([]domain.Mapping, error)
	FetchOverrides(ctx context.Context) ([]domain.Mapping, error)
}

// DBSyncJob refreshes the mappings store on a fixed cadence, independent
// of any profile's sync. It never blocks a profile sync: readers see the
// store's last-committed snapshot via ordinary SQL reads.
type DBSyncJob struct {
	store    *mapping.Store
	source   MappingSource
	interval time.Duration
	logger   *slog.Logger
}

// NewDBSyncJob builds a job that refreshes store from source every
// interval (default 24h if interval <= 0).
func NewDBSyncJob(store *mapping.Store, source MappingSource, interval time.Duration, logger *slog.Logger) *DBSyncJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DBSyncJob{store: store, source: source, interval: interval, logger: logger}
}

// Run blocks, refreshing on interval until ctx is cancelled. It refreshes
// once immediately on entry.
func (j *DBSyncJob) Run(ctx context.Context) {
	j.refresh(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.refresh(ctx)
		}
	}
}

func (j *DBSyncJob) refresh(ctx context.Context) {
	authoritative, err := j.source.FetchAuthoritative(ctx)
	if err != nil {
		j.logger.Error("database-sync: fetch authoritative mappings failed", "error", err)
		return
	}
	for _, m := range authoritative {
		if err := j.store.Upsert(ctx, m); err != nil {
			j.logger.Warn("database-sync: upsert authoritative mapping failed", "anilist_id", m.AniListID, "error", err)
		}
	}

	overrides, err := j.source.FetchOverrides(ctx)
	if err != nil {
		j.logger.Warn("database-sync: fetch custom overrides failed", "error", err)
		return
	}
	mapping.MarkCustom(overrides)
	for _, m := range overrides {
		if err := j.store.Upsert(ctx, m); err != nil {
			j.logger.Warn("database-sync: upsert override mapping failed", "anilist_id", m.AniListID, "error", err)
		}
	}

	j.logger.Info("database-sync: refreshed mappings", "authoritative", len(authoritative), "overrides", len(overrides))
}
