package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"plexanibridge/internal/anilistclient"
	"plexanibridge/internal/bus"
	"plexanibridge/internal/domain"
	"plexanibridge/internal/mapping"
	"plexanibridge/internal/plexclient"
	"plexanibridge/internal/reconcile"
	"plexanibridge/internal/scheduler"
)

// scoreScale is the AniList scoring format this engine reads and writes
// list entries in (scoreRaw over POINT_100), so Plex's 0-10 rating
// scales directly to 0-100.
const scoreScale = 100

// anilistConcurrency bounds how many media IDs a single sync pass
// reconciles (plan + write) concurrently.
const anilistConcurrency = 4

// profileRunner implements scheduler.Runner for one profile, wiring the
// Plex client, mapping resolver, AniList client, and reconciler
// together for a single sync pass.
type profileRunner struct {
	rt          *CoreRuntime
	profileName string
}

// batchWriter adapts an anilistclient.Batcher to reconcile.Writer:
// saves are coalesced into shared GraphQL documents, deletes still go
// out one at a time since spec's batch_requests only names save_entry.
type batchWriter struct {
	batcher *anilistclient.Batcher
	client  *anilistclient.Client
}

func (w *batchWriter) SaveEntry(ctx context.Context, entry domain.AniListListEntry) error {
	return w.batcher.Save(ctx, entry)
}

func (w *batchWriter) DeleteEntry(ctx context.Context, listEntryID int) error {
	return w.client.DeleteEntry(ctx, listEntryID)
}

var _ reconcile.Writer = (*batchWriter)(nil)

func (r *profileRunner) RunSync(ctx context.Context, profile domain.Profile, trigger scheduler.Trigger, report func(scheduler.Status)) error {
	plex := r.rt.plex[profile.Name]
	anilist := r.rt.anilist[profile.Name]

	if err := plex.ResolveHomeUser(ctx, profile.PlexUser); err != nil {
		return fmt.Errorf("resolve home user: %w", err)
	}

	viewer, err := anilist.GetViewer(ctx)
	if err != nil {
		return fmt.Errorf("get viewer: %w", err)
	}
	currentList, err := anilist.GetList(ctx, viewer.ID)
	if err != nil {
		return fmt.Errorf("get list: %w", err)
	}
	byMedia := make(map[int]domain.AniListListEntry, len(currentList))
	for _, e := range currentList {
		byMedia[e.MediaID] = e
	}

	resolver := mapping.NewResolver(r.rt.mappingStore, anilist, profile.FuzzyThreshold)

	sections, err := plex.ListSections(ctx)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}
	sections = filterSections(sections, profile.PlexSections)

	report(scheduler.Status{State: scheduler.StateScanning, Total: len(sections)})

	lastFullSync, lastPoll, err := r.rt.watermarkStore.Get(ctx, profile.Name)
	if err != nil {
		r.rt.logger.Warn("read sync watermark failed", "error", err)
	}
	mode := iterModeFor(profile, trigger, lastFullSync, lastPoll)

	// AniList write concurrency is independent of batch_requests: the
	// pool bounds how many media IDs this pass reconciles at once,
	// while batch_requests (below) decides whether those writes go out
	// as one save_entry call apiece or coalesced into shared GraphQL
	// documents.
	pool := scheduler.NewWorkerPool(ctx, anilistConcurrency, r.rt.logger.With("profile", profile.Name))
	pool.Start()

	var writer reconcile.Writer = anilist
	var batcher *anilistclient.Batcher
	if profile.BatchRequests {
		batcher = anilistclient.NewBatcher(anilist, 0)
		writer = &batchWriter{batcher: batcher, client: anilist}
	}

	var byMediaMu sync.Mutex

	for si, section := range sections {
		report(scheduler.Status{State: scheduler.StateScanning, Section: section.Title, Processed: si, Total: len(sections)})

		err := plex.IterItems(ctx, section, mode, func(item domain.PlexItem) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return r.reconcileItem(ctx, profile, item, plex, anilist, writer, resolver, byMedia, &byMediaMu, pool)
		})
		if err != nil {
			pool.Shutdown()
			if batcher != nil {
				batcher.Close()
			}
			return fmt.Errorf("iterate section %s: %w", section.Title, err)
		}
	}

	report(scheduler.Status{State: scheduler.StateReconciling})
	pool.Wait()
	if batcher != nil {
		batcher.Close()
	}

	report(scheduler.Status{State: scheduler.StateWriting})

	switch trigger.Kind {
	case scheduler.TriggerFull:
		if err := r.rt.watermarkStore.SetFullSync(ctx, profile.Name, time.Now()); err != nil {
			r.rt.logger.Warn("persist full-sync watermark failed", "error", err)
		}
	case scheduler.TriggerPoll:
		if err := r.rt.watermarkStore.SetPoll(ctx, profile.Name, time.Now()); err != nil {
			r.rt.logger.Warn("persist poll watermark failed", "error", err)
		}
	}

	return nil
}

func (r *profileRunner) reconcileItem(
	ctx context.Context,
	profile domain.Profile,
	item domain.PlexItem,
	plex *plexclient.Client,
	anilist *anilistclient.Client,
	writer reconcile.Writer,
	resolver *mapping.Resolver,
	byMedia map[int]domain.AniListListEntry,
	byMediaMu *sync.Mutex,
	pool *scheduler.WorkerPool,
) error {
	full, err := plex.FetchMetadata(ctx, item.RatingKey)
	if err != nil {
		r.rt.logger.Warn("fetch metadata failed", "rating_key", item.RatingKey, "error", err)
		return nil
	}

	switch full.Type {
	case domain.ItemMovie:
		return r.reconcileCandidates(ctx, profile, full, []domain.PlexItem{full}, writer, resolver, byMedia, byMediaMu, pool)
	case domain.ItemShow:
		for _, season := range full.Children {
			candidates, err := resolver.Resolve(ctx, season)
			if err != nil {
				r.rt.logger.Warn("resolve season failed", "show", full.Title, "season", season.SeasonIndex, "error", err)
				continue
			}
			if len(candidates) == 0 {
				continue
			}
			seasonDetail, err := plex.FetchMetadata(ctx, season.RatingKey)
			if err != nil {
				r.rt.logger.Warn("fetch season metadata failed", "rating_key", season.RatingKey, "error", err)
				continue
			}
			for _, c := range candidates {
				episodes := episodesInRange(seasonDetail.Children, c.Range)
				r.reconcileOne(profile, season, c.AniListID, episodes, writer, byMedia, byMediaMu, pool)
			}
		}
	}
	return nil
}

func (r *profileRunner) reconcileCandidates(ctx context.Context, profile domain.Profile, item domain.PlexItem, items []domain.PlexItem, writer reconcile.Writer, resolver *mapping.Resolver, byMedia map[int]domain.AniListListEntry, byMediaMu *sync.Mutex, pool *scheduler.WorkerPool) error {
	candidates, err := resolver.Resolve(ctx, item)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		r.reconcileOne(profile, item, c.AniListID, items, writer, byMedia, byMediaMu, pool)
	}
	return nil
}

// reconcileOne submits the plan-and-write for one media ID as a pool
// task so independent media IDs can write to AniList concurrently; the
// byMedia map is shared across workers and guarded by byMediaMu. writer
// is either the AniList client directly or a Batcher-backed adapter
// when the profile enables batch_requests.
func (r *profileRunner) reconcileOne(profile domain.Profile, representative domain.PlexItem, mediaID int, items []domain.PlexItem, writer reconcile.Writer, byMedia map[int]domain.AniListListEntry, byMediaMu *sync.Mutex, pool *scheduler.WorkerPool) {
	anilistClient := r.rt.anilist[profile.Name]

	pool.Submit(func(ctx context.Context) error {
		episodeCount := 0
		if batch, err := anilistClient.GetMediaBatch(ctx, []int{mediaID}); err == nil {
			if node, ok := batch[mediaID]; ok {
				episodeCount = node.Episodes
			}
		}

		byMediaMu.Lock()
		var current *domain.AniListListEntry
		if e, ok := byMedia[mediaID]; ok {
			c := e.Clone()
			current = &c
		}
		byMediaMu.Unlock()

		var pinned map[string]bool
		if rec, ok, err := r.rt.pinStore.Get(ctx, profile.Name, mediaID); err == nil && ok {
			pinned = rec.Fields
		}

		op := reconcile.Plan(reconcile.Target{
			MediaID:      mediaID,
			Items:        items,
			EpisodeCount: episodeCount,
			ScoreScale:   scoreScale,
			Current:      current,
			PinnedFields: pinned,
		}, profile)

		event := reconcile.Execute(ctx, writer, op, representative, profile.DryRun)
		event.Profile = profile.Name

		if _, err := r.rt.historyStore.Append(ctx, event); err != nil {
			r.rt.logger.Warn("append history failed", "error", err)
		}
		r.rt.bus.Publish(newHistoryBusEvent(profile.Name, event))

		byMediaMu.Lock()
		if op.After != nil && op.Kind != domain.PlanNoop {
			byMedia[mediaID] = *op.After
		} else if op.Kind == domain.PlanDelete {
			delete(byMedia, mediaID)
		}
		byMediaMu.Unlock()

		if event.Outcome == domain.OutcomeFailed {
			return fmt.Errorf("reconcile media %d: %s", mediaID, event.ErrorMessage)
		}
		return nil
	})
}

func newHistoryBusEvent(profileName string, event domain.HistoryEvent) bus.Event {
	return bus.Event{
		Type:      bus.EventHistoryRecorded,
		Profile:   profileName,
		Timestamp: time.Now(),
		Payload:   event,
	}
}

func episodesInRange(episodes []domain.PlexItem, r domain.EpisodeRange) []domain.PlexItem {
	var out []domain.PlexItem
	for _, ep := range episodes {
		if r.Contains(ep.EpisodeIndex) {
			out = append(out, ep)
		}
	}
	return out
}

func filterSections(sections []plexclient.Section, allowed []string) []plexclient.Section {
	if len(allowed) == 0 {
		return sections
	}
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	var out []plexclient.Section
	for _, s := range sections {
		if set[s.Key] || set[s.Title] {
			out = append(out, s)
		}
	}
	return out
}

// iterModeFor decides the Plex query shape for trigger t. A periodic
// full-scan trigger narrows to "updated since the last successful full
// sync" once one has happened and the profile hasn't forced full_scan;
// a poll trigger narrows to "updated since the last successful poll"
// once one has happened, falling back to Plex's own recently-updated
// view on the very first poll.
func iterModeFor(profile domain.Profile, t scheduler.Trigger, lastFullSync, lastPoll time.Time) plexclient.IterMode {
	switch t.Kind {
	case scheduler.TriggerWebhook:
		return plexclient.IterMode{SingleRatingKey: t.RatingKey}
	case scheduler.TriggerPoll:
		if !lastPoll.IsZero() {
			return plexclient.IterMode{Since: lastPoll}
		}
		return plexclient.IterMode{RecentlyUpdated: true}
	default:
		if !profile.FullScan && !lastFullSync.IsZero() {
			return plexclient.IterMode{Since: lastFullSync}
		}
		return plexclient.IterMode{Full: true}
	}
}
