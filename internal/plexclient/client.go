package plexclient

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"plexanibridge/internal/cache"
	"plexanibridge/internal/domain"
	"plexanibridge/internal/syncerr"
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	initialDelay   = 500 * time.Millisecond
	maxDelay       = 8 * time.Second
	onlineMetaURL  = "https://metadata.provider.plex.tv"
)

// Client is a thin XML/REST client over one Plex Media Server,
// optionally switched to the online metadata endpoint.
type Client struct {
	baseURL    string
	token      string
	clientID   string
	onlineMeta bool
	httpClient *http.Client
	cache      *cache.LRU
	logger     *slog.Logger
}

// New builds a Client for profile. cacheTTL <= 0 uses a default of
// 24h.
func New(profile domain.Profile, cacheTTL time.Duration, logger *slog.Logger) *Client {
	baseURL := profile.PlexURL
	if profile.PlexOnlineMeta {
		baseURL = onlineMetaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      profile.PlexToken,
		clientID:   profile.PlexClientID,
		onlineMeta: profile.PlexOnlineMeta,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache.NewLRU(4096, cacheTTL),
		logger:     logger,
	}
}

// ResolveHomeUser checks that the named home user, if set, exists among
// the server's accounts. It does not switch the client's token: every
// request still uses the profile's Plex token.
func (c *Client) ResolveHomeUser(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	var container accountsContainer
	if err := c.doRequest(ctx, "GET", "/accounts", nil, &container); err != nil {
		return syncerr.New(syncerr.KindTransport, "plexclient", "resolve_home_user", err)
	}
	for _, acct := range container.Users {
		if strings.EqualFold(acct.Name, username) {
			c.logger.Debug("resolved home user", "username", username, "account_id", acct.ID)
			return nil
		}
	}
	return syncerr.New(syncerr.KindConfig, "plexclient", "resolve_home_user",
		fmt.Errorf("home user %q not found on this server", username))
}

// ListSections returns every library section on the server.
func (c *Client) ListSections(ctx context.Context) ([]Section, error) {
	var container mediaContainer
	if err := c.doRequest(ctx, "GET", "/library/sections", nil, &container); err != nil {
		return nil, syncerr.New(syncerr.KindTransport, "plexclient", "list_sections", err)
	}
	out := make([]Section, 0, len(container.Directory))
	for _, d := range container.Directory {
		out = append(out, Section{Key: d.Key, Type: d.Type, Title: d.Title})
	}
	return out, nil
}

// IterMode selects which slice of a section iter_items walks.
type IterMode struct {
	Full             bool
	Since            time.Time
	RecentlyUpdated  bool
	SingleRatingKey  string
}

// IterItems yields PlexItems from section in stable rating_key-ascending
// order. The lazy-sequence contract is expressed here as a callback:
// yield returning an error stops iteration and the error propagates,
// giving the scheduler a cooperative cancellation point between items.
func (c *Client) IterItems(ctx context.Context, section Section, mode IterMode, yield func(domain.PlexItem) error) error {
	path := fmt.Sprintf("/library/sections/%s/all", section.Key)
	if mode.SingleRatingKey != "" {
		path = fmt.Sprintf("/library/metadata/%s", mode.SingleRatingKey)
	} else if mode.RecentlyUpdated {
		path = fmt.Sprintf("/library/sections/%s/recentlyUpdated", section.Key)
	} else if !mode.Since.IsZero() {
		path = fmt.Sprintf("/library/sections/%s/all?updatedAt>>=%d", section.Key, mode.Since.Unix())
	}

	var container mediaContainer
	if err := c.doRequest(ctx, "GET", path, nil, &container); err != nil {
		if isNotFound(err) {
			return nil // single-item 404: caller records "not found" and continues
		}
		return syncerr.New(syncerr.KindTransport, "plexclient", "iter_items", err)
	}

	items := toPlexItems(container.Video, section.Key)
	sortByRatingKey(items)

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := yield(item); err != nil {
			return err
		}
	}
	return nil
}

// FetchMetadata fetches a single item, including children (seasons,
// episodes) when applicable.
func (c *Client) FetchMetadata(ctx context.Context, ratingKey string) (domain.PlexItem, error) {
	if cached, ok := c.cache.Get(cacheKey(ratingKey)); ok {
		return cached.(domain.PlexItem), nil
	}

	var container mediaContainer
	if err := c.doRequest(ctx, "GET", fmt.Sprintf("/library/metadata/%s", ratingKey), nil, &container); err != nil {
		if isNotFound(err) {
			return domain.PlexItem{}, syncerr.New(syncerr.KindNotFound, "plexclient", "fetch_metadata", err)
		}
		return domain.PlexItem{}, syncerr.New(syncerr.KindTransport, "plexclient", "fetch_metadata", err)
	}
	if len(container.Video) == 0 {
		return domain.PlexItem{}, syncerr.New(syncerr.KindNotFound, "plexclient", "fetch_metadata",
			fmt.Errorf("rating key %s not found", ratingKey))
	}

	items := toPlexItems(container.Video, "")
	item := items[0]

	var childContainer mediaContainer
	if err := c.doRequest(ctx, "GET", fmt.Sprintf("/library/metadata/%s/children", ratingKey), nil, &childContainer); err == nil {
		item.Children = toPlexItems(childContainer.Video, "")
	}

	c.cache.Set(cacheKey(ratingKey), item)
	return item, nil
}

func cacheKey(ratingKey string) string { return "plex:item:" + ratingKey }

func toPlexItems(videos []video, sectionKey string) []domain.PlexItem {
	out := make([]domain.PlexItem, 0, len(videos))
	for _, v := range videos {
		out = append(out, toPlexItem(v, sectionKey))
	}
	return out
}

func toPlexItem(v video, sectionKey string) domain.PlexItem {
	item := domain.PlexItem{
		SectionKey:      sectionKey,
		RatingKey:       v.RatingKey,
		ParentRatingKey: v.ParentRatingKey,
		Guid:            v.Guid,
		Type:            itemType(v.Type),
		Title:           v.Title,
		Year:            v.Year,
		ViewCount:       v.ViewCount,
		ViewOffsetMs:    v.ViewOffset,
		DurationMs:      v.Duration,
		AddedAt:         time.Unix(v.AddedAt, 0).UTC(),
		UpdatedAt:       time.Unix(v.UpdatedAt, 0).UTC(),
	}
	if v.LastViewedAt > 0 {
		t := time.Unix(v.LastViewedAt, 0).UTC()
		item.LastViewedAt = &t
	}
	if v.UserRating > 0 {
		r := v.UserRating
		item.UserRating = &r
	}
	if len(v.Review) > 0 {
		item.ReviewText = v.Review[0].Text
	}
	for _, g := range v.Guids {
		item.Guids = append(item.Guids, parseGuid(g.ID))
	}
	switch item.Type {
	case domain.ItemEpisode:
		item.SeasonIndex = v.ParentIndex
		item.EpisodeIndex = v.Index
	case domain.ItemSeason:
		item.SeasonIndex = v.Index
	}
	return item
}

func parseGuid(raw string) domain.Guid {
	parts := strings.SplitN(raw, "://", 2)
	if len(parts) != 2 {
		return domain.Guid{Provider: "plex", ID: raw}
	}
	return domain.Guid{Provider: parts[0], ID: parts[1]}
}

func itemType(t string) domain.ItemType {
	switch t {
	case "movie":
		return domain.ItemMovie
	case "show":
		return domain.ItemShow
	case "season":
		return domain.ItemSeason
	case "episode":
		return domain.ItemEpisode
	default:
		return domain.ItemType(t)
	}
}

func sortByRatingKey(items []domain.PlexItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].RatingKey < items[j-1].RatingKey; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

type notFoundError struct{ status int }

func (e *notFoundError) Error() string { return fmt.Sprintf("HTTP %d", e.status) }

func isNotFound(err error) bool {
	var nf *notFoundError
	if e, ok := err.(*notFoundError); ok {
		nf = e
	}
	return nf != nil && nf.status == http.StatusNotFound
}

// doRequest performs one XML request with retry/backoff on 5xx and
// connection errors.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, result any) error {
	url := c.baseURL + path

	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("X-Plex-Token", c.token)
		req.Header.Set("Accept", "application/xml")
		if c.clientID != "" {
			req.Header.Set("X-Plex-Client-Identifier", c.clientID)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				c.logger.Warn("plex request failed, retrying", "attempt", attempt+1, "error", err)
				time.Sleep(delay)
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			return lastErr
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return syncerr.New(syncerr.KindAuth, "plexclient", "do_request",
				fmt.Errorf("plex token rejected (401)"))
		case resp.StatusCode == http.StatusNotFound:
			return &notFoundError{status: http.StatusNotFound}
		case resp.StatusCode >= 500:
			lastErr = &notFoundError{status: resp.StatusCode}
			if attempt < maxRetries {
				time.Sleep(delay)
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			return fmt.Errorf("plex server error: HTTP %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("plex request failed: HTTP %d: %s", resp.StatusCode, string(respBody))
		}

		if len(respBody) == 0 {
			return nil
		}
		return xml.Unmarshal(respBody, result)
	}
	return lastErr
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
