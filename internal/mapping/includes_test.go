package mapping

import (
	"context"
	"testing"
)

type fakeFetcher struct {
	docs map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	b, ok := f.docs[ref]
	if !ok {
		return nil, errFileNotFound(ref)
	}
	return b, nil
}

type notFoundErr struct{ ref string }

func (e notFoundErr) Error() string { return "fixture not found: " + e.ref }

func errFileNotFound(ref string) error { return notFoundErr{ref} }

func TestResolveIncludesMergesEntries(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string][]byte{
		"root.json": []byte(`{
			"mappings": [
				{"anilist_id": 1, "title": "Show A", "tvdb_id": 100},
				{"anilist_id": 2, "title": "Show B"}
			]
		}`),
	}}

	mappings, err := ResolveIncludes(context.Background(), fetcher, "root.json")
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 2 {
		t.Fatalf("got %d mappings, want 2", len(mappings))
	}
	if mappings[0].AniListID != 1 || mappings[0].Title != "Show A" {
		t.Errorf("unexpected first mapping: %+v", mappings[0])
	}
	if mappings[0].TVDBID == nil || *mappings[0].TVDBID != 100 {
		t.Errorf("expected TVDBID 100, got %v", mappings[0].TVDBID)
	}
}

func TestResolveIncludesFollowsIncludesGraph(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string][]byte{
		"root.json": []byte(`{
			"$includes": ["base.json"],
			"mappings": [{"anilist_id": 1, "title": "Overridden Title"}]
		}`),
		"base.json": []byte(`{
			"mappings": [{"anilist_id": 1, "title": "Base Title", "year": 2020}]
		}`),
	}}

	mappings, err := ResolveIncludes(context.Background(), fetcher, "root.json")
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 1 {
		t.Fatalf("got %d mappings, want 1", len(mappings))
	}
	if mappings[0].Title != "Overridden Title" {
		t.Errorf("Title = %q, want root to override base", mappings[0].Title)
	}
	if mappings[0].Year != 2020 {
		t.Errorf("Year = %d, want 2020 carried over from base", mappings[0].Year)
	}
}

func TestResolveIncludesDetectsCycle(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string][]byte{
		"a.json": []byte(`{"$includes": ["b.json"], "mappings": []}`),
		"b.json": []byte(`{"$includes": ["a.json"], "mappings": []}`),
	}}

	if _, err := ResolveIncludes(context.Background(), fetcher, "a.json"); err == nil {
		t.Error("expected cycle detection error")
	}
}

func TestResolveIncludesNullErasesField(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string][]byte{
		"root.json": []byte(`{
			"$includes": ["base.json"],
			"mappings": [{"anilist_id": 1, "tvdb_id": null}]
		}`),
		"base.json": []byte(`{
			"mappings": [{"anilist_id": 1, "title": "Base", "tvdb_id": 42}]
		}`),
	}}

	mappings, err := ResolveIncludes(context.Background(), fetcher, "root.json")
	if err != nil {
		t.Fatal(err)
	}
	if mappings[0].TVDBID != nil {
		t.Errorf("expected TVDBID erased by explicit null override, got %v", mappings[0].TVDBID)
	}
}

func TestMarkCustomFlagsEveryMapping(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string][]byte{
		"root.json": []byte(`{"mappings": [{"anilist_id": 1}, {"anilist_id": 2}]}`),
	}}
	mappings, err := ResolveIncludes(context.Background(), fetcher, "root.json")
	if err != nil {
		t.Fatal(err)
	}
	MarkCustom(mappings)
	for _, m := range mappings {
		if !m.Custom {
			t.Errorf("expected mapping %d to be marked custom", m.AniListID)
		}
	}
}
