package history

import (
	"context"
	"fmt"
	"time"

	"plexanibridge/internal/domain"
)

// Undoer is the subset of the AniList client Undo needs to reverse an
// event.
type Undoer interface {
	SaveEntry(ctx context.Context, entry domain.AniListListEntry) error
	DeleteEntry(ctx context.Context, listEntryID int) error
}

// ErrNotUndoable is returned when the event's (outcome, before, after)
// combination isn't reversible.
var ErrNotUndoable = fmt.Errorf("history: event is not undoable")

// ErrAlreadyUndone guards against double-undo.
var ErrAlreadyUndone = fmt.Errorf("history: event already undone")

// Undo reverses event according to its outcome and recorded state:
//
//	synced, before present, after present  -> write before
//	synced, before null,    after present  -> delete (destructive only)
//	deleted, before present, after null    -> write before
//	anything else                          -> not undoable
//
// It appends a new counter-event and marks the original undone,
// returning the counter-event's assigned ID.
func (s *Store) Undo(ctx context.Context, event domain.HistoryEvent, undoer Undoer, destructiveSync bool) (int64, error) {
	if event.Undone {
		return 0, ErrAlreadyUndone
	}

	var counter domain.HistoryEvent
	counter.Profile = event.Profile
	counter.Timestamp = time.Now()
	counter.PlexRatingKey = event.PlexRatingKey
	counter.PlexChildRatingKey = event.PlexChildRatingKey
	counter.PlexGuid = event.PlexGuid
	counter.PlexType = event.PlexType
	counter.AniListID = event.AniListID
	counter.UndoesEventID = &event.ID

	switch {
	case event.Outcome == domain.OutcomeSynced && event.BeforeState != nil && event.AfterState != nil:
		if err := undoer.SaveEntry(ctx, *event.BeforeState); err != nil {
			return 0, fmt.Errorf("history: undo write before state: %w", err)
		}
		counter.Outcome = domain.OutcomeSynced
		counter.BeforeState = event.AfterState
		counter.AfterState = event.BeforeState

	case event.Outcome == domain.OutcomeSynced && event.BeforeState == nil && event.AfterState != nil:
		if !destructiveSync {
			return 0, ErrNotUndoable
		}
		if event.AniListID == nil {
			return 0, fmt.Errorf("history: undo delete: missing media id")
		}
		if err := undoer.DeleteEntry(ctx, *event.AniListID); err != nil {
			return 0, fmt.Errorf("history: undo delete entry: %w", err)
		}
		counter.Outcome = domain.OutcomeDeleted
		counter.BeforeState = event.AfterState
		counter.AfterState = nil

	case event.Outcome == domain.OutcomeDeleted && event.BeforeState != nil && event.AfterState == nil:
		if err := undoer.SaveEntry(ctx, *event.BeforeState); err != nil {
			return 0, fmt.Errorf("history: undo recreate: %w", err)
		}
		counter.Outcome = domain.OutcomeSynced
		counter.BeforeState = nil
		counter.AfterState = event.BeforeState

	default:
		return 0, ErrNotUndoable
	}

	id, err := s.Append(ctx, counter)
	if err != nil {
		return 0, err
	}
	if err := s.MarkUndone(ctx, event.ID); err != nil {
		return 0, err
	}
	return id, nil
}
