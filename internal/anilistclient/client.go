package anilistclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/mapping"
	"plexanibridge/internal/syncerr"
)

const (
	apiURL = "https://graphql.anilist.co"

	// rateLimit/rateBurst seed the token bucket before the first
	// response arrives; adjustRateLimit resizes it to 80% of whatever
	// X-RateLimit-Limit AniList actually reports from then on.
	rateLimit = 1 // sustained 60 req/min, below AniList's documented 90 req/min
	rateBurst = 5

	maxRetries   = 5
	initialDelay = 1 * time.Second
	maxDelay     = 32 * time.Second
)

// Client issues rate-limited GraphQL calls against the AniList API on
// behalf of one profile's token.
type Client struct {
	token       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// New builds a Client authenticated with token.
func New(token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:       token,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// GetViewer fetches the authenticated user.
func (c *Client) GetViewer(ctx context.Context) (Viewer, error) {
	const query = `
	query {
		Viewer { id name }
	}`
	var result struct {
		Viewer Viewer `json:"Viewer"`
	}
	if err := c.doRequest(ctx, query, nil, &result); err != nil {
		return Viewer{}, syncerr.New(syncerr.KindTransport, "anilistclient", "get_viewer", err)
	}
	return result.Viewer, nil
}

// GetList fetches every ANIME list entry for userID, across all
// status lists, in one call via MediaListCollection.
func (c *Client) GetList(ctx context.Context, userID int) ([]domain.AniListListEntry, error) {
	const query = `
	query ($userId: Int) {
		MediaListCollection(userId: $userId, type: ANIME) {
			lists {
				entries {
					id
					mediaId
					status
					score(format: POINT_100)
					progress
					repeat
					notes
					startedAt { year month day }
					completedAt { year month day }
					updatedAt
					media { id episodes seasonYear format title { romaji english native } }
				}
			}
		}
	}`
	variables := map[string]any{"userId": userID}

	var result struct {
		MediaListCollection struct {
			Lists []struct {
				Entries []MediaListEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	if err := c.doRequest(ctx, query, variables, &result); err != nil {
		return nil, syncerr.New(syncerr.KindTransport, "anilistclient", "get_list", err)
	}

	var out []domain.AniListListEntry
	for _, l := range result.MediaListCollection.Lists {
		for _, e := range l.Entries {
			out = append(out, toDomainEntry(e))
		}
	}
	return out, nil
}

// SaveEntry creates or updates one list entry via the SaveMediaListEntry
// mutation, sending only the fields the engine has decided to write.
func (c *Client) SaveEntry(ctx context.Context, entry domain.AniListListEntry) error {
	const mutation = `
	mutation ($mediaId: Int, $status: MediaListStatus, $score: Float, $progress: Int, $repeat: Int, $notes: String, $startedAt: FuzzyDateInput, $completedAt: FuzzyDateInput) {
		SaveMediaListEntry(mediaId: $mediaId, status: $status, scoreRaw: $score, progress: $progress, repeat: $repeat, notes: $notes, startedAt: $startedAt, completedAt: $completedAt) {
			id
		}
	}`
	variables := map[string]any{
		"mediaId":  entry.MediaID,
		"status":   string(entry.Status),
		"progress": entry.Progress,
		"repeat":   entry.Repeat,
	}
	if entry.Score != nil {
		variables["score"] = *entry.Score
	}
	if entry.Notes != nil {
		variables["notes"] = *entry.Notes
	}
	if d := fromTime(entry.StartedAt); d != nil {
		variables["startedAt"] = d
	}
	if d := fromTime(entry.CompletedAt); d != nil {
		variables["completedAt"] = d
	}

	var result struct {
		SaveMediaListEntry struct {
			ID int `json:"id"`
		} `json:"SaveMediaListEntry"`
	}
	if err := c.doRequest(ctx, mutation, variables, &result); err != nil {
		return syncerr.New(syncerr.KindTransport, "anilistclient", "save_entry", err)
	}
	return nil
}

// DeleteEntry removes a list entry by its AniList list-entry ID (not
// the media ID).
func (c *Client) DeleteEntry(ctx context.Context, listEntryID int) error {
	const mutation = `
	mutation ($id: Int) {
		DeleteMediaListEntry(id: $id) { deleted }
	}`
	variables := map[string]any{"id": listEntryID}
	var result struct {
		DeleteMediaListEntry struct {
			Deleted bool `json:"deleted"`
		} `json:"DeleteMediaListEntry"`
	}
	if err := c.doRequest(ctx, mutation, variables, &result); err != nil {
		return syncerr.New(syncerr.KindTransport, "anilistclient", "delete_entry", err)
	}
	return nil
}

// SearchMedia implements mapping.AniListSearcher for the resolver's
// fuzzy fallback step.
func (c *Client) SearchMedia(ctx context.Context, query string, year int, limit int) ([]mapping.AniListSearchResult, error) {
	const gql = `
	query ($search: String, $perPage: Int) {
		Page(page: 1, perPage: $perPage) {
			media(search: $search, type: ANIME) {
				id
				episodes
				seasonYear
				title { romaji english native }
			}
		}
	}`
	if limit <= 0 {
		limit = 10
	}
	variables := map[string]any{"search": query, "perPage": limit}

	var result struct {
		Page struct {
			Media []MediaNode `json:"media"`
		} `json:"Page"`
	}
	if err := c.doRequest(ctx, gql, variables, &result); err != nil {
		return nil, syncerr.New(syncerr.KindTransport, "anilistclient", "search_media", err)
	}

	out := make([]mapping.AniListSearchResult, 0, len(result.Page.Media))
	for _, m := range result.Page.Media {
		if year != 0 && m.SeasonYear != 0 && m.SeasonYear != year {
			continue
		}
		out = append(out, mapping.AniListSearchResult{
			ID:           m.ID,
			RomajiTitle:  m.Title.Romaji,
			EnglishTitle: m.Title.English,
			NativeTitle:  m.Title.Native,
			Year:         m.SeasonYear,
			EpisodeCount: m.Episodes,
		})
	}
	return out, nil
}

// GetMediaBatch fetches episode counts and titles for a set of AniList
// media IDs in one call, falling back to per-ID calls if the batch call
// itself fails.
func (c *Client) GetMediaBatch(ctx context.Context, ids []int) (map[int]MediaNode, error) {
	out := make(map[int]MediaNode, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const query = `
	query ($ids: [Int]) {
		Page(perPage: 50) {
			media(id_in: $ids, type: ANIME) {
				id episodes seasonYear format title { romaji english native }
			}
		}
	}`
	variables := map[string]any{"ids": ids}

	var result struct {
		Page struct {
			Media []MediaNode `json:"media"`
		} `json:"Page"`
	}
	if err := c.doRequest(ctx, query, variables, &result); err == nil {
		for _, m := range result.Page.Media {
			out[m.ID] = m
		}
		return out, nil
	}

	for _, id := range ids {
		node, err := c.getMediaByID(ctx, id)
		if err != nil {
			c.logger.Warn("media batch fallback lookup failed", "media_id", id, "error", err)
			continue
		}
		out[id] = node
	}
	return out, nil
}

func (c *Client) getMediaByID(ctx context.Context, id int) (MediaNode, error) {
	const query = `
	query ($id: Int) {
		Media(id: $id, type: ANIME) { id episodes seasonYear format title { romaji english native } }
	}`
	var result struct {
		Media MediaNode `json:"Media"`
	}
	if err := c.doRequest(ctx, query, map[string]any{"id": id}, &result); err != nil {
		return MediaNode{}, err
	}
	return result.Media, nil
}

func toDomainEntry(e MediaListEntry) domain.AniListListEntry {
	out := domain.AniListListEntry{
		MediaID:  e.MediaID,
		Status:   domain.AniListStatus(e.Status),
		Progress: e.Progress,
		Repeat:   e.Repeat,
	}
	if e.Score != 0 {
		s := e.Score
		out.Score = &s
	}
	if e.Notes != "" {
		n := e.Notes
		out.Notes = &n
	}
	if e.StartedAt != nil {
		out.StartedAt = e.StartedAt.toTime()
	}
	if e.CompletedAt != nil {
		out.CompletedAt = e.CompletedAt.toTime()
	}
	return out
}

// doRequest sends one GraphQL call with token-bucket rate limiting and
// retry/backoff on 429/5xx, honoring Retry-After and
// X-RateLimit-Remaining.
func (c *Client) doRequest(ctx context.Context, query string, variables map[string]any, result any) error {
	reqBody := GraphQLRequest{Query: query, Variables: variables}
	bodyJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("anilistclient: marshal request: %w", err)
	}

	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("anilistclient: rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(bodyJSON))
		if err != nil {
			return fmt.Errorf("anilistclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				c.logger.Warn("anilist request failed, retrying", "attempt", attempt+1, "error", err)
				time.Sleep(delay)
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			return fmt.Errorf("anilistclient: request failed after %d attempts: %w", maxRetries+1, lastErr)
		}

		c.adjustRateLimit(resp.Header)

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("anilistclient: read response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return syncerr.New(syncerr.KindAuth, "anilistclient", "do_request",
				fmt.Errorf("anilist token rejected (401)"))
		}

		if resp.StatusCode != http.StatusOK {
			if shouldRetry(resp.StatusCode) && attempt < maxRetries {
				lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
				wait := rateLimitFromHeaders(resp.Header)
				if wait == 0 {
					wait = delay
				}
				c.logger.Warn("anilist rate limited or server error, retrying", "attempt", attempt+1, "wait", wait)
				time.Sleep(wait)
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				return syncerr.New(syncerr.KindRateLimit, "anilistclient", "do_request",
					fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody)))
			}
			return fmt.Errorf("anilistclient: HTTP %d: %s", resp.StatusCode, string(respBody))
		}

		var envelope GraphQLResponse
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("anilistclient: decode response: %w", err)
		}
		if len(envelope.Errors) > 0 {
			return fmt.Errorf("anilistclient: graphql error: %s", envelope.Errors[0].Message)
		}
		if result == nil || envelope.Data == nil {
			return nil
		}
		return json.Unmarshal(envelope.Data, result)
	}
	return lastErr
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
