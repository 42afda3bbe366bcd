package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/syncerr"
)

// rawMapping is the on-disk shape of one mapping entry before merge: a
// field set to JSON null means "erase"; a field omitted (absent key)
// means "preserve the base value". encoding/json alone cannot tell
// "null" apart from "absent" once unmarshaled into a struct, so fields
// that support erasure are decoded as *json.RawMessage and inspected.
type rawMapping struct {
	AniListID        int                        `json:"anilist_id" yaml:"anilist_id" toml:"anilist_id"`
	AniDBID          *json.RawMessage           `json:"anidb_id,omitempty" yaml:"anidb_id,omitempty" toml:"anidb_id,omitempty"`
	TVDBID           *json.RawMessage           `json:"tvdb_id,omitempty" yaml:"tvdb_id,omitempty" toml:"tvdb_id,omitempty"`
	TMDBMovieIDs     *json.RawMessage           `json:"tmdb_movie_id,omitempty" yaml:"tmdb_movie_id,omitempty" toml:"tmdb_movie_id,omitempty"`
	TMDBShowIDs      *json.RawMessage           `json:"tmdb_show_id,omitempty" yaml:"tmdb_show_id,omitempty" toml:"tmdb_show_id,omitempty"`
	IMDBIDs          *json.RawMessage           `json:"imdb_id,omitempty" yaml:"imdb_id,omitempty" toml:"imdb_id,omitempty"`
	MALIDs           *json.RawMessage           `json:"mal_id,omitempty" yaml:"mal_id,omitempty" toml:"mal_id,omitempty"`
	TVDBSeasonRanges map[string]*string         `json:"tvdb_mapping,omitempty" yaml:"tvdb_mapping,omitempty" toml:"tvdb_mapping,omitempty"`
	TMDBSeasonRanges map[string]*string         `json:"tmdb_mapping,omitempty" yaml:"tmdb_mapping,omitempty" toml:"tmdb_mapping,omitempty"`
	Notes            *string                    `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	Title            string                     `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	Year             int                        `json:"year,omitempty" yaml:"year,omitempty" toml:"year,omitempty"`
}

// rawDocument is one mapping file: an optional $includes list plus a
// list of entries.
type rawDocument struct {
	Includes []string     `json:"$includes,omitempty" yaml:"$includes,omitempty" toml:"$includes,omitempty"`
	Mappings []rawMapping `json:"mappings" yaml:"mappings" toml:"mappings"`
}

// Fetcher abstracts loading a mapping document by path or URL, so
// includes.go has no direct network dependency during tests.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// DefaultFetcher loads local files directly and http(s) URLs via a
// short-timeout client.
type DefaultFetcher struct {
	HTTPClient *http.Client
}

// Fetch implements Fetcher.
func (f *DefaultFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		client := f.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("mapping: fetch %s: HTTP %d", ref, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(ref)
}

// ResolveIncludes walks the $includes graph from root depth-first,
// returning the merged mapping set in "earliest writer wins unless a
// later override re-specifies the field" order, with cycle detection.
// This runs only during the database-sync job (includes are resolved
// during database-sync only; sync runs never touch the network for
// mapping data).
func ResolveIncludes(ctx context.Context, fetcher Fetcher, root string) ([]domain.Mapping, error) {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	merged := make(map[int]domain.Mapping)
	var order []int

	var walk func(ref string) error
	walk = func(ref string) error {
		if visiting[ref] {
			return syncerr.New(syncerr.KindValidation, "mapping", "resolve_includes",
				fmt.Errorf("include cycle detected at %q", ref))
		}
		if visited[ref] {
			return nil
		}
		visiting[ref] = true
		defer func() { visiting[ref] = false; visited[ref] = true }()

		raw, err := fetcher.Fetch(ctx, ref)
		if err != nil {
			return syncerr.New(syncerr.KindTransport, "mapping", "fetch_include", err)
		}
		doc, err := parseRawDocument(ref, raw)
		if err != nil {
			return syncerr.New(syncerr.KindValidation, "mapping", "parse_include", err)
		}

		for _, include := range doc.Includes {
			if err := walk(resolveRelative(ref, include)); err != nil {
				return err
			}
		}

		for _, rm := range doc.Mappings {
			base, existed := merged[rm.AniListID]
			if !existed {
				base = domain.Mapping{AniListID: rm.AniListID}
			}
			applyOverride(&base, rm, ref)
			merged[rm.AniListID] = base
			if !existed {
				order = append(order, rm.AniListID)
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}

	out := make([]domain.Mapping, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out, nil
}

func resolveRelative(parent, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(parent), ref)
}

func parseRawDocument(ref string, raw []byte) (*rawDocument, error) {
	var doc rawDocument
	switch ext := strings.ToLower(filepath.Ext(ref)); {
	case strings.HasSuffix(ext, ".yaml"), strings.HasSuffix(ext, ".yml"):
		return &doc, yaml.Unmarshal(raw, &doc)
	case strings.HasSuffix(ext, ".toml"):
		return &doc, toml.Unmarshal(raw, &doc)
	default:
		return &doc, json.Unmarshal(raw, &doc)
	}
}

// applyOverride shallow-merges rm onto base: a present non-null field
// replaces, an explicit null erases (sets zero value), an absent field
// preserves. It also appends source to base.Sources. It never sets
// Custom; callers flag override-file mappings with MarkCustom.
func applyOverride(base *domain.Mapping, rm rawMapping, source string) {
	base.Title = firstNonEmpty(rm.Title, base.Title)
	if rm.Year != 0 {
		base.Year = rm.Year
	}
	base.Sources = append(base.Sources, source)

	applyIntPtr(&base.AniDBID, rm.AniDBID)
	applyIntPtr(&base.TVDBID, rm.TVDBID)
	applyIntSlice(&base.TMDBMovieIDs, rm.TMDBMovieIDs)
	applyIntSlice(&base.TMDBShowIDs, rm.TMDBShowIDs)
	applyStringSlice(&base.IMDBIDs, rm.IMDBIDs)
	applyIntSlice(&base.MALIDs, rm.MALIDs)

	if rm.Notes != nil {
		base.Notes = *rm.Notes
	}

	mergeRangeTable(&base.TVDBSeasonRanges, rm.TVDBSeasonRanges)
	mergeRangeTable(&base.TMDBSeasonRanges, rm.TMDBSeasonRanges)
}

func mergeRangeTable(dst *map[string]string, src map[string]*string) {
	if src == nil {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	for k, v := range src {
		if v == nil {
			delete(*dst, k)
			continue
		}
		(*dst)[k] = *v
	}
}

func applyIntPtr(dst **int, raw *json.RawMessage) {
	if raw == nil {
		return
	}
	if string(*raw) == "null" {
		*dst = nil
		return
	}
	var v int
	if json.Unmarshal(*raw, &v) == nil {
		*dst = &v
	}
}

func applyIntSlice(dst *[]int, raw *json.RawMessage) {
	if raw == nil {
		return
	}
	if string(*raw) == "null" {
		*dst = nil
		return
	}
	var v []int
	if err := json.Unmarshal(*raw, &v); err == nil {
		*dst = v
		return
	}
	var single int
	if json.Unmarshal(*raw, &single) == nil {
		*dst = []int{single}
	}
}

func applyStringSlice(dst *[]string, raw *json.RawMessage) {
	if raw == nil {
		return
	}
	if string(*raw) == "null" {
		*dst = nil
		return
	}
	var v []string
	if err := json.Unmarshal(*raw, &v); err == nil {
		*dst = v
		return
	}
	var single string
	if json.Unmarshal(*raw, &single) == nil {
		*dst = []string{single}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MarkCustom flags every mapping in custom as user-provided, for the
// override layer merged on top of the authoritative snapshot.
func MarkCustom(mappings []domain.Mapping) {
	for i := range mappings {
		mappings[i].Custom = true
	}
}
