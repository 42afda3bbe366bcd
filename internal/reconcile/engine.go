package reconcile

import (
	"context"
	"time"

	"plexanibridge/internal/domain"
)

// Writer is the subset of the AniList client the engine needs to
// execute a PlanOp.
type Writer interface {
	SaveEntry(ctx context.Context, entry domain.AniListListEntry) error
	DeleteEntry(ctx context.Context, listEntryID int) error
}

// Target is one resolved (media, range) unit the engine reconciles in a
// single call: the Plex items covering that range, the media's known
// episode count and scoring scale, and the current AniList entry (nil
// if the media isn't on the list yet).
type Target struct {
	MediaID      int
	Items        []domain.PlexItem
	EpisodeCount int
	ScoreScale   float64
	Current      *domain.AniListListEntry
	PinnedFields map[string]bool
}

// Plan computes the PlanOp for one target under profile's policy by
// deriving observed state and applying policy to it. It never performs
// I/O.
func Plan(target Target, profile domain.Profile) domain.PlanOp {
	observed := DeriveObserved(target.Items, target.EpisodeCount, target.ScoreScale)
	after := ApplyPolicy(target.MediaID, observed, target.Current, profile, target.PinnedFields)

	op := domain.PlanOp{
		MediaID: target.MediaID,
		Before:  target.Current,
		After:   after,
	}
	for field := range target.PinnedFields {
		op.PinsApplied = append(op.PinsApplied, field)
	}

	switch {
	case target.Current == nil && after == nil:
		op.Kind = domain.PlanNoop
	case target.Current == nil && after != nil:
		op.Kind = domain.PlanCreate
	case target.Current != nil && after == nil:
		op.Kind = domain.PlanDelete
	case entriesEqual(*target.Current, *after):
		op.Kind = domain.PlanNoop
	default:
		op.Kind = domain.PlanUpdate
	}

	return op
}

// Execute applies op via writer and returns the HistoryEvent to append.
// dryRun replaces the mutation with a log-only outcome but still
// produces a synthetic "synced" event.
func Execute(ctx context.Context, writer Writer, op domain.PlanOp, item domain.PlexItem, dryRun bool) domain.HistoryEvent {
	event := domain.HistoryEvent{
		Timestamp:          time.Now(),
		PlexRatingKey:      item.RatingKey,
		PlexChildRatingKey: item.ParentRatingKey,
		PlexGuid:           item.Guid,
		PlexType:           item.Type,
		AniListID:          &op.MediaID,
		BeforeState:        op.Before,
		AfterState:         op.After,
	}

	if op.Kind == domain.PlanNoop {
		event.Outcome = domain.OutcomeSkipped
		return event
	}

	if dryRun {
		event.Outcome = domain.OutcomeSynced
		return event
	}

	var err error
	switch op.Kind {
	case domain.PlanCreate, domain.PlanUpdate:
		err = writer.SaveEntry(ctx, *op.After)
	case domain.PlanDelete:
		err = writer.DeleteEntry(ctx, op.MediaID)
	}

	if err != nil {
		event.Outcome = domain.OutcomeFailed
		event.ErrorMessage = err.Error()
		return event
	}

	if op.Kind == domain.PlanDelete {
		event.Outcome = domain.OutcomeDeleted
	} else {
		event.Outcome = domain.OutcomeSynced
	}
	return event
}

func entriesEqual(a, b domain.AniListListEntry) bool {
	if a.Status != b.Status || a.Progress != b.Progress || a.Repeat != b.Repeat {
		return false
	}
	if !float64PtrEqual(a.Score, b.Score) {
		return false
	}
	if !stringPtrEqual(a.Notes, b.Notes) {
		return false
	}
	if !timePtrEqual(a.StartedAt, b.StartedAt) {
		return false
	}
	if !timePtrEqual(a.CompletedAt, b.CompletedAt) {
		return false
	}
	return true
}

func float64PtrEqual(a, b *float64) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func stringPtrEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || a.Equal(*b)
}
