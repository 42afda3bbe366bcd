package anilistclient

import (
	"net/http"
	"testing"
)

func TestAdjustRateLimitFollowsAnnouncedBudget(t *testing.T) {
	c := newTestClient(t, nil)

	h := http.Header{}
	h.Set("X-RateLimit-Limit", "90")
	c.adjustRateLimit(h)

	if got := c.rateLimiter.Burst(); got != 72 {
		t.Errorf("burst = %d, want 72 (80%% of 90)", got)
	}
	if got := c.rateLimiter.Limit(); got != 72.0/60 {
		t.Errorf("limit = %v, want %v", got, 72.0/60)
	}
}

func TestAdjustRateLimitIgnoresMissingOrInvalidHeader(t *testing.T) {
	c := newTestClient(t, nil)
	before := c.rateLimiter.Burst()

	c.adjustRateLimit(http.Header{})
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "not-a-number")
	c.adjustRateLimit(h)

	if got := c.rateLimiter.Burst(); got != before {
		t.Errorf("burst changed to %d on invalid header, want unchanged %d", got, before)
	}
}
