package history

import (
	"context"
	"testing"
	"time"

	"plexanibridge/internal/domain"
)

type fakeUndoer struct {
	saved   []domain.AniListListEntry
	deleted []int
	saveErr error
	delErr  error
}

func (f *fakeUndoer) SaveEntry(ctx context.Context, entry domain.AniListListEntry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, entry)
	return nil
}

func (f *fakeUndoer) DeleteEntry(ctx context.Context, listEntryID int) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, listEntryID)
	return nil
}

func TestUndoSyncedWithBeforeAndAfterWritesBefore(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	before := &domain.AniListListEntry{MediaID: 42, Progress: 1}
	after := &domain.AniListListEntry{MediaID: 42, Progress: 5}
	id, _ := store.Append(ctx, domain.HistoryEvent{
		Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced,
		BeforeState: before, AfterState: after,
	})
	event, _, _ := store.ByID(ctx, id)

	undoer := &fakeUndoer{}
	counterID, err := store.Undo(ctx, event, undoer, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(undoer.saved) != 1 || undoer.saved[0].Progress != 1 {
		t.Fatalf("expected before state written back, got %+v", undoer.saved)
	}

	counter, _, _ := store.ByID(ctx, counterID)
	if counter.UndoesEventID == nil || *counter.UndoesEventID != id {
		t.Error("expected counter event to reference the original")
	}

	original, _, _ := store.ByID(ctx, id)
	if !original.Undone {
		t.Error("expected original event marked undone")
	}
}

func TestUndoSyncedWithoutBeforeRequiresDestructive(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	mediaID := 7
	id, _ := store.Append(ctx, domain.HistoryEvent{
		Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced,
		AniListID: &mediaID, AfterState: &domain.AniListListEntry{MediaID: 7},
	})
	event, _, _ := store.ByID(ctx, id)

	undoer := &fakeUndoer{}
	if _, err := store.Undo(ctx, event, undoer, false); err != ErrNotUndoable {
		t.Errorf("expected ErrNotUndoable in non-destructive mode, got %v", err)
	}

	counterID, err := store.Undo(ctx, event, undoer, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(undoer.deleted) != 1 || undoer.deleted[0] != 7 {
		t.Fatalf("expected delete entry called with media id, got %+v", undoer.deleted)
	}
	counter, _, _ := store.ByID(ctx, counterID)
	if counter.Outcome != domain.OutcomeDeleted {
		t.Errorf("counter outcome = %v, want OutcomeDeleted", counter.Outcome)
	}
}

func TestUndoDeletedRecreatesEntry(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	before := &domain.AniListListEntry{MediaID: 9, Progress: 3}
	id, _ := store.Append(ctx, domain.HistoryEvent{
		Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeDeleted,
		BeforeState: before,
	})
	event, _, _ := store.ByID(ctx, id)

	undoer := &fakeUndoer{}
	_, err := store.Undo(ctx, event, undoer, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(undoer.saved) != 1 || undoer.saved[0].MediaID != 9 {
		t.Fatalf("expected recreate via SaveEntry, got %+v", undoer.saved)
	}
}

func TestUndoAlreadyUndoneRejected(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	id, _ := store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced, Undone: true})
	event, _, _ := store.ByID(ctx, id)

	if _, err := store.Undo(ctx, event, &fakeUndoer{}, false); err != ErrAlreadyUndone {
		t.Errorf("expected ErrAlreadyUndone, got %v", err)
	}
}

func TestUndoNoopOutcomeNotUndoable(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	id, _ := store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeNoop})
	event, _, _ := store.ByID(ctx, id)

	if _, err := store.Undo(ctx, event, &fakeUndoer{}, false); err != ErrNotUndoable {
		t.Errorf("expected ErrNotUndoable for a noop event, got %v", err)
	}
}
