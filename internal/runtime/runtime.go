// Package runtime is the composition root: it wires the Plex client,
// mapping resolver, AniList client, reconciler, scheduler, history,
// backup, and bus packages into one CoreRuntime and implements the
// "Core → API surface" operations the control surface (internal/webhookapi)
// and the CLI consume. One hand-wired main-style composition over the
// embedded-sqlite stack, no DI framework and no gorm/pgx involved.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"plexanibridge/internal/anilistclient"
	"plexanibridge/internal/backup"
	"plexanibridge/internal/bus"
	"plexanibridge/internal/config"
	"plexanibridge/internal/domain"
	"plexanibridge/internal/history"
	"plexanibridge/internal/mapping"
	"plexanibridge/internal/plexclient"
	"plexanibridge/internal/reconcile"
	"plexanibridge/internal/scheduler"
	"plexanibridge/internal/syncerr"
	"plexanibridge/internal/webhookapi"
)

// CoreRuntime owns every long-lived component and exposes the
// operations the control surface binds to HTTP handlers.
type CoreRuntime struct {
	cfg *config.Config

	mappingStore    *mapping.Store
	historyStore    *history.Store
	pinStore        *history.PinStore
	watermarkStore  *history.WatermarkStore
	backupStore     *backup.Store
	bus          *bus.Bus
	supervisor   *scheduler.Supervisor
	logger       *slog.Logger

	profiles map[string]domain.Profile
	anilist  map[string]*anilistclient.Client
	plex     map[string]*plexclient.Client
}

// New builds a CoreRuntime from cfg around an already-open mappingStore,
// whose database also receives the history, pin and watermark tables.
func New(ctx context.Context, cfg *config.Config, mappingStore *mapping.Store, logger *slog.Logger) (*CoreRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	historyStore, err := history.New(mappingStore.DB())
	if err != nil {
		return nil, fmt.Errorf("runtime: open history store: %w", err)
	}
	pinStore, err := history.NewPinStore(mappingStore.DB())
	if err != nil {
		return nil, fmt.Errorf("runtime: open pin store: %w", err)
	}
	watermarkStore, err := history.NewWatermarkStore(mappingStore.DB())
	if err != nil {
		return nil, fmt.Errorf("runtime: open watermark store: %w", err)
	}
	backupStore, err := backup.New(cfg.Global.DataPath)
	if err != nil {
		return nil, fmt.Errorf("runtime: open backup store: %w", err)
	}

	eventBus := bus.New()
	rt := &CoreRuntime{
		cfg:          cfg,
		mappingStore:   mappingStore,
		historyStore:   historyStore,
		pinStore:       pinStore,
		watermarkStore: watermarkStore,
		backupStore:    backupStore,
		bus:          eventBus,
		supervisor:   scheduler.New(eventBus, logger),
		logger:       logger,
		profiles:     cfg.Profiles,
		anilist:      make(map[string]*anilistclient.Client),
		plex:         make(map[string]*plexclient.Client),
	}

	for name, profile := range cfg.Profiles {
		rt.anilist[name] = anilistclient.New(profile.AniListToken, logger.With("profile", name))
		rt.plex[name] = plexclient.New(profile, 24*time.Hour, logger.With("profile", name))
	}

	return rt, nil
}

// Start registers every profile with the scheduler and begins their
// trigger timers. Call once after New.
func (rt *CoreRuntime) Start(ctx context.Context) {
	for name, profile := range rt.profiles {
		runner := &profileRunner{rt: rt, profileName: name}
		rt.supervisor.Register(ctx, profile, runner)
	}
}

// Shutdown stops every profile worker.
func (rt *CoreRuntime) Shutdown() {
	rt.supervisor.Shutdown()
}

// Bus exposes the observability bus for the WebSocket relay.
func (rt *CoreRuntime) Bus() *bus.Bus { return rt.bus }

// --- Core -> API surface ---

// Status returns every profile's runtime status.
func (rt *CoreRuntime) Status() []scheduler.Status {
	return rt.supervisor.AllStatus()
}

// History lists history events for profile under filter f.
func (rt *CoreRuntime) History(ctx context.Context, profile string, f history.Filter) ([]domain.HistoryEvent, error) {
	f.Profile = profile
	return rt.historyStore.List(ctx, f)
}

// Trigger enqueues a sync for profile.
func (rt *CoreRuntime) Trigger(profile string, kind scheduler.TriggerKind, ratingKey string) error {
	if !rt.supervisor.Trigger(profile, scheduler.Trigger{Kind: kind, RatingKey: ratingKey}) {
		return syncerr.New(syncerr.KindNotFound, "runtime", "trigger", fmt.Errorf("unknown profile %q", profile))
	}
	return nil
}

// Undo reverses a single history event.
func (rt *CoreRuntime) Undo(ctx context.Context, eventID int64) (int64, error) {
	event, ok, err := rt.historyStore.ByID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, syncerr.New(syncerr.KindNotFound, "runtime", "undo", fmt.Errorf("event %d not found", eventID))
	}
	profile, ok := rt.profiles[event.Profile]
	if !ok {
		return 0, syncerr.New(syncerr.KindNotFound, "runtime", "undo", fmt.Errorf("unknown profile %q", event.Profile))
	}
	client := rt.anilist[event.Profile]
	return rt.historyStore.Undo(ctx, event, client, profile.DestructiveSync)
}

// DeleteHistory permanently removes a history entry.
func (rt *CoreRuntime) DeleteHistory(ctx context.Context, eventID int64) error {
	return rt.historyStore.Delete(ctx, eventID)
}

// ListBackups lists backup files for profile.
func (rt *CoreRuntime) ListBackups(profile string) ([]string, error) {
	return rt.backupStore.List(profile)
}

// RestoreBackup restores profile's AniList list from the named backup
// file against the live list, returning a per-entry summary rather
// than aborting on the first failed write or delete.
func (rt *CoreRuntime) RestoreBackup(ctx context.Context, profile, filename string) (domain.RestoreSummary, error) {
	client, ok := rt.anilist[profile]
	if !ok {
		return domain.RestoreSummary{}, syncerr.New(syncerr.KindNotFound, "runtime", "restore_backup", fmt.Errorf("unknown profile %q", profile))
	}
	viewer, err := client.GetViewer(ctx)
	if err != nil {
		return domain.RestoreSummary{}, err
	}
	current, err := client.GetList(ctx, viewer.ID)
	if err != nil {
		return domain.RestoreSummary{}, err
	}
	_, snapshot, err := rt.backupStore.Load(filename)
	if err != nil {
		return domain.RestoreSummary{}, err
	}
	return backup.Restore(ctx, client, current, snapshot), nil
}

// SearchMappings runs a Booru-style query against the mappings store.
func (rt *CoreRuntime) SearchMappings(ctx context.Context, query string) ([]domain.Mapping, error) {
	all, err := rt.mappingStore.All(ctx)
	if err != nil {
		return nil, err
	}
	q, err := mapping.ParseQuery(query)
	if err != nil {
		return nil, syncerr.New(syncerr.KindValidation, "runtime", "search_mappings", err)
	}
	var out []domain.Mapping
	for _, m := range all {
		if q.Eval(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// UpsertOverride writes a user-supplied custom mapping.
func (rt *CoreRuntime) UpsertOverride(ctx context.Context, m domain.Mapping) error {
	m.Custom = true
	return rt.mappingStore.Upsert(ctx, m)
}

// DeleteOverride removes a custom mapping by AniList ID.
func (rt *CoreRuntime) DeleteOverride(ctx context.Context, anilistID int) error {
	return rt.mappingStore.Delete(ctx, anilistID)
}

// RunBackupSchedule runs backup.Create on start and daily at local
// midnight for every profile, pruning by retention afterward.
func (rt *CoreRuntime) RunBackupSchedule(ctx context.Context) {
	for name := range rt.profiles {
		rt.backupNow(ctx, name)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(untilNextMidnight()):
			for name := range rt.profiles {
				rt.backupNow(ctx, name)
			}
		}
	}
}

func (rt *CoreRuntime) backupNow(ctx context.Context, profileName string) {
	client := rt.anilist[profileName]
	if client == nil {
		return
	}
	viewer, err := client.GetViewer(ctx)
	if err != nil {
		rt.logger.Warn("backup: get viewer failed", "profile", profileName, "error", err)
		return
	}
	entries, err := client.GetList(ctx, viewer.ID)
	if err != nil {
		rt.logger.Warn("backup: get list failed", "profile", profileName, "error", err)
		return
	}
	if _, err := rt.backupStore.Create(profileName, viewer.Name, entries); err != nil {
		rt.logger.Warn("backup: create failed", "profile", profileName, "error", err)
		return
	}
	if err := rt.backupStore.Prune(profileName, rt.cfg.BackupRetention()); err != nil {
		rt.logger.Warn("backup: prune failed", "profile", profileName, "error", err)
	}
}

func untilNextMidnight() time.Duration {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}

var _ reconcile.Writer = (*anilistclient.Client)(nil)
var _ webhookapi.Core = (*CoreRuntime)(nil)
