package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"plexanibridge/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreAppendAndByID(t *testing.T) {
	db := openTestDB(t)
	store, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	mediaID := 42
	event := domain.HistoryEvent{
		Profile:       "alice",
		Timestamp:     time.Now(),
		PlexRatingKey: "123",
		Outcome:       domain.OutcomeSynced,
		AniListID:     &mediaID,
		AfterState:    &domain.AniListListEntry{MediaID: 42, Status: domain.StatusCurrent, Progress: 3},
	}

	id, err := store.Append(ctx, event)
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero assigned ID")
	}

	got, ok, err := store.ByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected event to be found")
	}
	if got.Profile != "alice" || got.Outcome != domain.OutcomeSynced {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.AfterState == nil || got.AfterState.Progress != 3 {
		t.Errorf("AfterState = %+v, want Progress 3", got.AfterState)
	}
}

func TestStoreByIDMissing(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	_, ok, err := store.ByID(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected missing event to report ok=false")
	}
}

func TestStoreMarkUndone(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	id, _ := store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced})
	if err := store.MarkUndone(ctx, id); err != nil {
		t.Fatal(err)
	}

	got, _, _ := store.ByID(ctx, id)
	if !got.Undone {
		t.Error("expected event to be marked undone")
	}
}

func TestStoreListFiltersByProfileAndOutcome(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced})
	store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeFailed})
	store.Append(ctx, domain.HistoryEvent{Profile: "bob", Timestamp: time.Now(), Outcome: domain.OutcomeSynced})

	events, err := store.List(ctx, Filter{Profile: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for alice, want 2", len(events))
	}

	events, err = store.List(ctx, Filter{Profile: "alice", Outcome: domain.OutcomeFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d failed events for alice, want 1", len(events))
	}
}

func TestStoreListRespectsLimit(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced})
	}

	events, err := store.List(ctx, Filter{Profile: "alice", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (limited)", len(events))
	}
}

func TestStoreDeleteRemovesEvent(t *testing.T) {
	db := openTestDB(t)
	store, _ := New(db)
	ctx := context.Background()

	id, _ := store.Append(ctx, domain.HistoryEvent{Profile: "alice", Timestamp: time.Now(), Outcome: domain.OutcomeSynced})
	if err := store.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	_, ok, _ := store.ByID(ctx, id)
	if ok {
		t.Error("expected deleted event to be gone")
	}
}
