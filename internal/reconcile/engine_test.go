package reconcile

import (
	"context"
	"errors"
	"testing"

	"plexanibridge/internal/domain"
)

type fakeWriter struct {
	saved   []domain.AniListListEntry
	deleted []int
	saveErr error
}

func (f *fakeWriter) SaveEntry(ctx context.Context, entry domain.AniListListEntry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, entry)
	return nil
}

func (f *fakeWriter) DeleteEntry(ctx context.Context, listEntryID int) error {
	f.deleted = append(f.deleted, listEntryID)
	return nil
}

func TestPlanCreateWhenNoCurrentEntry(t *testing.T) {
	target := Target{
		MediaID:      7,
		Items:        []domain.PlexItem{{Type: domain.ItemMovie, ViewCount: 1}},
		EpisodeCount: 1,
		ScoreScale:   10,
	}
	op := Plan(target, domain.Profile{})
	if op.Kind != domain.PlanCreate {
		t.Errorf("Kind = %s, want create", op.Kind)
	}
	if op.After == nil || op.After.MediaID != 7 {
		t.Errorf("After = %+v, want MediaID 7", op.After)
	}
}

func TestPlanNoopWhenUnchanged(t *testing.T) {
	current := &domain.AniListListEntry{MediaID: 7, Status: domain.StatusCompleted, Progress: 1}
	target := Target{
		MediaID:      7,
		Items:        []domain.PlexItem{{Type: domain.ItemMovie, ViewCount: 1}},
		EpisodeCount: 1,
		ScoreScale:   10,
		Current:      current,
	}
	op := Plan(target, domain.Profile{})
	if op.Kind != domain.PlanNoop {
		t.Errorf("Kind = %s, want noop", op.Kind)
	}
}

func TestPlanDeleteWhenDestructiveAndItemRemoved(t *testing.T) {
	current := &domain.AniListListEntry{MediaID: 7, Status: domain.StatusCurrent, Progress: 3}
	target := Target{
		MediaID: 7,
		Items:   []domain.PlexItem{{Type: domain.ItemEpisode}},
		Current: current,
	}
	op := Plan(target, domain.Profile{DestructiveSync: true})
	if op.Kind != domain.PlanDelete {
		t.Errorf("Kind = %s, want delete", op.Kind)
	}
}

func TestPlanRecordsAppliedPins(t *testing.T) {
	target := Target{
		MediaID:      7,
		Items:        []domain.PlexItem{{Type: domain.ItemMovie, ViewCount: 1}},
		EpisodeCount: 1,
		ScoreScale:   10,
		PinnedFields: map[string]bool{domain.FieldScore: true},
	}
	op := Plan(target, domain.Profile{})
	if len(op.PinsApplied) != 1 || op.PinsApplied[0] != domain.FieldScore {
		t.Errorf("PinsApplied = %v, want [score]", op.PinsApplied)
	}
}

func TestExecuteSkipsWhenNoop(t *testing.T) {
	writer := &fakeWriter{}
	op := domain.PlanOp{Kind: domain.PlanNoop, MediaID: 1}
	event := Execute(context.Background(), writer, op, domain.PlexItem{}, false)
	if event.Outcome != domain.OutcomeSkipped {
		t.Errorf("Outcome = %s, want skipped", event.Outcome)
	}
	if len(writer.saved) != 0 {
		t.Error("expected no write for a noop plan")
	}
}

func TestExecuteDryRunNeverWrites(t *testing.T) {
	writer := &fakeWriter{}
	entry := domain.AniListListEntry{MediaID: 1, Status: domain.StatusCurrent}
	op := domain.PlanOp{Kind: domain.PlanCreate, MediaID: 1, After: &entry}
	event := Execute(context.Background(), writer, op, domain.PlexItem{}, true)

	if event.Outcome != domain.OutcomeSynced {
		t.Errorf("Outcome = %s, want synced", event.Outcome)
	}
	if len(writer.saved) != 0 {
		t.Error("dry run must not call SaveEntry")
	}
}

func TestExecuteCreateCallsSaveEntry(t *testing.T) {
	writer := &fakeWriter{}
	entry := domain.AniListListEntry{MediaID: 1, Status: domain.StatusCurrent}
	op := domain.PlanOp{Kind: domain.PlanCreate, MediaID: 1, After: &entry}
	event := Execute(context.Background(), writer, op, domain.PlexItem{RatingKey: "123"}, false)

	if event.Outcome != domain.OutcomeSynced {
		t.Errorf("Outcome = %s, want synced", event.Outcome)
	}
	if len(writer.saved) != 1 {
		t.Fatalf("expected one SaveEntry call, got %d", len(writer.saved))
	}
	if event.PlexRatingKey != "123" {
		t.Errorf("PlexRatingKey = %q, want 123", event.PlexRatingKey)
	}
}

func TestExecuteDeleteCallsDeleteEntry(t *testing.T) {
	writer := &fakeWriter{}
	op := domain.PlanOp{Kind: domain.PlanDelete, MediaID: 9}
	event := Execute(context.Background(), writer, op, domain.PlexItem{}, false)

	if event.Outcome != domain.OutcomeDeleted {
		t.Errorf("Outcome = %s, want deleted", event.Outcome)
	}
	if len(writer.deleted) != 1 || writer.deleted[0] != 9 {
		t.Errorf("deleted = %v, want [9]", writer.deleted)
	}
}

func TestExecuteRecordsFailure(t *testing.T) {
	writer := &fakeWriter{saveErr: errors.New("anilist: rate limited")}
	entry := domain.AniListListEntry{MediaID: 1}
	op := domain.PlanOp{Kind: domain.PlanCreate, MediaID: 1, After: &entry}
	event := Execute(context.Background(), writer, op, domain.PlexItem{}, false)

	if event.Outcome != domain.OutcomeFailed {
		t.Errorf("Outcome = %s, want failed", event.Outcome)
	}
	if event.ErrorMessage == "" {
		t.Error("expected ErrorMessage to be populated")
	}
}
