package mapping

import (
	"context"
	"testing"

	"plexanibridge/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreUpsertAndByAniListID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tvdb := 100
	m := domain.Mapping{AniListID: 1, Title: "Attack on Titan", Year: 2013, TVDBID: &tvdb}
	if err := store.Upsert(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.ByAniListID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected mapping to be found")
	}
	if got.Title != "Attack on Titan" || got.TVDBID == nil || *got.TVDBID != 100 {
		t.Errorf("unexpected mapping: %+v", got)
	}
}

func TestStoreUpsertReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Upsert(ctx, domain.Mapping{AniListID: 1, Title: "Old Title"})
	store.Upsert(ctx, domain.Mapping{AniListID: 1, Title: "New Title"})

	got, _, err := store.ByAniListID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New Title" {
		t.Errorf("Title = %q, want New Title", got.Title)
	}
}

func TestStoreByExternalID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	tvdb := 555
	store.Upsert(ctx, domain.Mapping{AniListID: 1, TVDBID: &tvdb})

	mappings, err := store.ByExternalID(ctx, "tvdb", 555)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 || mappings[0].AniListID != 1 {
		t.Fatalf("ByExternalID = %+v", mappings)
	}
}

func TestStoreByExternalIDMulti(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Upsert(ctx, domain.Mapping{AniListID: 1, IMDBIDs: []string{"tt1234567"}})

	mappings, err := store.ByExternalIDMulti(ctx, "imdb", "tt1234567")
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 || mappings[0].AniListID != 1 {
		t.Fatalf("ByExternalIDMulti = %+v", mappings)
	}
}

func TestStoreByTitleYear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Upsert(ctx, domain.Mapping{AniListID: 1, Title: "One Piece", Year: 1999, Custom: true})

	mappings, err := store.ByTitleYear(ctx, "one piece", 1999)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 {
		t.Fatalf("ByTitleYear = %+v, want one case-insensitive hit", mappings)
	}
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Upsert(ctx, domain.Mapping{AniListID: 1})

	if err := store.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	_, ok, err := store.ByAniListID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected mapping to be gone after Delete")
	}
}

func TestStoreSearchFTS(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Upsert(ctx, domain.Mapping{AniListID: 1, Title: "Attack on Titan"})
	store.Upsert(ctx, domain.Mapping{AniListID: 2, Title: "One Piece"})

	results, err := store.SearchFTS(ctx, "Attack", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].AniListID != 1 {
		t.Fatalf("SearchFTS = %+v", results)
	}
}

func TestStoreAll(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	store.Upsert(ctx, domain.Mapping{AniListID: 1})
	store.Upsert(ctx, domain.Mapping{AniListID: 2})

	all, err := store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("All() returned %d mappings, want 2", len(all))
	}
}
