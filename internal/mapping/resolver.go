package mapping

import (
	"context"
	"fmt"
	"sort"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/syncerr"
)

// Candidate is one resolved (anilist_id, episode_range) target for a
// PlexItem. A show with a cours split produces more than one Candidate.
type Candidate struct {
	AniListID int
	Range     domain.EpisodeRange
	Reason    string
}

// guidProviderRank orders guid providers for shows by preference:
// tvdb > tmdb_show > imdb > anidb > mal.
var guidProviderRank = map[string]int{
	"tvdb": 0, "tmdb_show": 1, "imdb": 2, "anidb": 3, "mal": 4,
}

// movieProviderRank orders guid providers for movies: tmdb_movie > imdb.
var movieProviderRank = map[string]int{
	"tmdb_movie": 0, "imdb": 1,
}

// AniListSearcher is the subset of the AniList client the resolver
// needs for fuzzy fallback; kept as an interface so the resolver has no
// import-time dependency on the concrete HTTP client.
type AniListSearcher interface {
	SearchMedia(ctx context.Context, query string, year int, limit int) ([]AniListSearchResult, error)
}

// AniListSearchResult is the subset of an AniList media search hit the
// resolver needs to score title similarity.
type AniListSearchResult struct {
	ID              int
	RomajiTitle     string
	EnglishTitle    string
	NativeTitle     string
	Year            int
	EpisodeCount    int
}

// Resolver answers "PlexItem -> AniList target(s)" using a three-step
// algorithm: direct guid match, override-only title+year match, fuzzy
// title search.
type Resolver struct {
	store          *Store
	search         AniListSearcher
	fuzzyThreshold int
}

// NewResolver builds a Resolver backed by store for guid/title lookups
// and search for the fuzzy fallback step.
func NewResolver(store *Store, search AniListSearcher, fuzzyThreshold int) *Resolver {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 90
	}
	return &Resolver{store: store, search: search, fuzzyThreshold: fuzzyThreshold}
}

// Resolve returns zero or more candidates covering item. The first
// non-empty step wins; later steps never run once a step yields a
// result, per spec.
func (r *Resolver) Resolve(ctx context.Context, item domain.PlexItem) ([]Candidate, error) {
	if candidates, err := r.directGuidMatch(ctx, item); err != nil {
		return nil, err
	} else if len(candidates) > 0 {
		return candidates, nil
	}

	if candidates, err := r.overrideTitleMatch(ctx, item); err != nil {
		return nil, err
	} else if len(candidates) > 0 {
		return candidates, nil
	}

	return r.fuzzyMatch(ctx, item)
}

func (r *Resolver) directGuidMatch(ctx context.Context, item domain.PlexItem) ([]Candidate, error) {
	type hit struct {
		mapping  domain.Mapping
		provider string
		rank     int
	}
	var hits []hit

	rank := guidProviderRank
	if item.Type == domain.ItemMovie {
		rank = movieProviderRank
	}

	for _, g := range item.Guids {
		r2, ok := rank[g.Provider]
		if !ok {
			continue
		}
		mappings, err := lookupByProvider(ctx, r.store, g.Provider, g.ID)
		if err != nil {
			return nil, syncerr.New(syncerr.KindInternal, "mapping", "direct_guid_match", err)
		}
		for _, m := range mappings {
			hits = append(hits, hit{mapping: m, provider: g.Provider, rank: r2})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })
	bestRank := hits[0].rank

	// Multiple mappings can share the same external ID at the best rank
	// (e.g. a cours-split show with one mapping per season range), so
	// every mapping at bestRank is resolved, not just the first.
	var out []Candidate
	seen := make(map[int]bool)
	for _, h := range hits {
		if h.rank != bestRank || seen[h.mapping.AniListID] {
			continue
		}
		seen[h.mapping.AniListID] = true

		if item.Type != domain.ItemSeason && item.Type != domain.ItemEpisode {
			out = append(out, Candidate{AniListID: h.mapping.AniListID, Reason: "direct_guid:" + h.provider})
			continue
		}

		candidates, err := r.splitBySeasonRanges(item, h.mapping, h.provider)
		if err != nil {
			return nil, err
		}
		out = append(out, candidates...)
	}

	return out, nil
}

func lookupByProvider(ctx context.Context, store *Store, provider, id string) ([]domain.Mapping, error) {
	switch provider {
	case "tvdb":
		n, err := atoiSafe(id)
		if err != nil {
			return nil, nil
		}
		return store.ByExternalID(ctx, "tvdb", n)
	case "anidb":
		n, err := atoiSafe(id)
		if err != nil {
			return nil, nil
		}
		return store.ByExternalID(ctx, "anidb", n)
	case "tmdb_movie", "tmdb_show", "imdb", "mal":
		return store.ByExternalIDMulti(ctx, provider, id)
	default:
		return nil, nil
	}
}

func atoiSafe(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// splitBySeasonRanges intersects item's episode with the mapping's
// season-range table, implementing the cours-split behavior: one show
// mapping can resolve to multiple AniList targets.
func (r *Resolver) splitBySeasonRanges(item domain.PlexItem, m domain.Mapping, provider string) ([]Candidate, error) {
	ranges := m.TVDBSeasonRanges
	if provider == "tmdb_show" {
		ranges = m.TMDBSeasonRanges
	}
	if len(ranges) == 0 {
		return []Candidate{{AniListID: m.AniListID, Reason: "direct_guid:" + provider}}, nil
	}

	seasonKey := fmt.Sprintf("s%d", item.SeasonIndex)
	expr, ok := ranges[seasonKey]
	if !ok {
		return nil, nil
	}
	episodeRange, err := domain.ParseEpisodeRange(expr)
	if err != nil {
		return nil, syncerr.New(syncerr.KindValidation, "mapping", "parse_season_range", err)
	}

	if item.Type == domain.ItemEpisode {
		if !episodeRange.Contains(item.EpisodeIndex) {
			return nil, nil
		}
	}

	return []Candidate{{AniListID: m.AniListID, Range: episodeRange, Reason: "direct_guid:" + provider + ":" + seasonKey}}, nil
}

func (r *Resolver) overrideTitleMatch(ctx context.Context, item domain.PlexItem) ([]Candidate, error) {
	mappings, err := r.store.ByTitleYear(ctx, item.Title, item.Year)
	if err != nil {
		return nil, syncerr.New(syncerr.KindInternal, "mapping", "override_title_match", err)
	}
	var out []Candidate
	for _, m := range mappings {
		if !m.Custom {
			continue
		}
		out = append(out, Candidate{AniListID: m.AniListID, Reason: "override_title"})
	}
	return out, nil
}

func (r *Resolver) fuzzyMatch(ctx context.Context, item domain.PlexItem) ([]Candidate, error) {
	if r.search == nil {
		return nil, nil
	}
	results, err := r.search.SearchMedia(ctx, item.Title, item.Year, 10)
	if err != nil {
		return nil, syncerr.New(syncerr.KindTransport, "mapping", "fuzzy_search", err)
	}

	best, bestScore, tied := bestTitleMatch(item.Title, results)
	if tied {
		return nil, syncerr.New(syncerr.KindAmbiguousMatch, "mapping", "fuzzy_search",
			fmt.Errorf("multiple equally scored candidates for %q", item.Title))
	}
	if best == nil || bestScore < r.fuzzyThreshold {
		return nil, nil
	}
	return []Candidate{{AniListID: best.ID, Reason: fmt.Sprintf("fuzzy:%d", bestScore)}}, nil
}
