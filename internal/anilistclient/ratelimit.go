package anilistclient

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitSafetyMargin keeps the client's token bucket under AniList's
// announced per-minute budget rather than chasing it exactly, so a
// burst of concurrent writers doesn't trip the ceiling the bucket was
// sized from.
const rateLimitSafetyMargin = 0.8

// adjustRateLimit resizes the token bucket to rateLimitSafetyMargin of
// the per-minute budget AniList reports via X-RateLimit-Limit, if
// present. Called after every response so the bucket follows whatever
// budget the current token/IP is actually subject to instead of the
// hardcoded default the client starts with.
func (c *Client) adjustRateLimit(h http.Header) {
	raw := h.Get("X-RateLimit-Limit")
	if raw == "" {
		return
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return
	}

	budget := float64(limit) * rateLimitSafetyMargin
	burst := int(budget)
	if burst < 1 {
		burst = 1
	}
	c.rateLimiter.SetBurst(burst)
	c.rateLimiter.SetLimit(rate.Limit(budget / 60))
}

// rateLimitFromHeaders reads AniList's X-RateLimit-Remaining and
// Retry-After headers to decide how long to back off before the next
// attempt, beyond the client's steady-state token bucket.
func rateLimitFromHeaders(h http.Header) time.Duration {
	if retryAfter := h.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if remaining := h.Get("X-RateLimit-Remaining"); remaining == "0" {
		return 60 * time.Second
	}
	return 0
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
