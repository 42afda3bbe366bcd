package scheduler

import (
	"context"
	"testing"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/mapping"
)

type fakeMappingSource struct {
	authoritative []domain.Mapping
	overrides     []domain.Mapping
	authErr       error
	overrideErr   error
}

func (f *fakeMappingSource) FetchAuthoritative(ctx context.Context) ([]domain.Mapping, error) {
	return f.authoritative, f.authErr
}

func (f *fakeMappingSource) FetchOverrides(ctx context.Context) ([]domain.Mapping, error) {
	return f.overrides, f.overrideErr
}

func openTestMappingStore(t *testing.T) *mapping.Store {
	t.Helper()
	store, err := mapping.Open(":memory:")
	if err != nil {
		t.Fatalf("mapping.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDBSyncJobRefreshUpsertsAuthoritativeThenOverrides(t *testing.T) {
	store := openTestMappingStore(t)
	source := &fakeMappingSource{
		authoritative: []domain.Mapping{{AniListID: 1, Title: "Naruto"}},
		overrides:     []domain.Mapping{{AniListID: 2, Title: "Bleach"}},
	}
	job := NewDBSyncJob(store, source, 0, nil)

	job.refresh(context.Background())

	m, ok, err := store.ByAniListID(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected override mapping to be upserted")
	}
	if !m.Custom {
		t.Error("expected override mapping to be marked custom")
	}

	base, ok, err := store.ByAniListID(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || base.Custom {
		t.Error("expected authoritative mapping to be present and not marked custom")
	}
}

func TestDBSyncJobSkipsOverridesWhenAuthoritativeFetchFails(t *testing.T) {
	store := openTestMappingStore(t)
	source := &fakeMappingSource{
		authErr:   context.DeadlineExceeded,
		overrides: []domain.Mapping{{AniListID: 5}},
	}
	job := NewDBSyncJob(store, source, 0, nil)

	job.refresh(context.Background())

	_, ok, _ := store.ByAniListID(context.Background(), 5)
	if ok {
		t.Error("expected overrides to be skipped when authoritative fetch fails")
	}
}

func TestDBSyncJobDefaultsIntervalWhenNonPositive(t *testing.T) {
	store := openTestMappingStore(t)
	job := NewDBSyncJob(store, &fakeMappingSource{}, 0, nil)
	if job.interval <= 0 {
		t.Errorf("interval = %v, want a positive default", job.interval)
	}
}
