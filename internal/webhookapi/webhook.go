package webhookapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"plexanibridge/internal/scheduler"
)

// plexWebhookPayload is the subset of Plex's webhook JSON body this
// receiver cares about: enough to know which item changed state.
type plexWebhookPayload struct {
	Event   string `json:"event"`
	Account struct {
		Title string `json:"title"`
	} `json:"Account"`
	Metadata struct {
		RatingKey string `json:"ratingKey"`
		Type      string `json:"type"`
	} `json:"Metadata"`
}

// relevantPlexEvents are the Plex webhook events worth enqueueing a
// point sync for; everything else (library.new, admin.*, etc.) is
// acknowledged but ignored.
var relevantPlexEvents = map[string]bool{
	"media.scrobble": true,
	"media.rate":     true,
	"media.play":     true,
	"media.resume":   true,
	"media.stop":     true,
	"media.pause":    true,
}

// handlePlexWebhook receives Plex's webhook POST, optionally validated
// against the profile's sync_webhook_secret via a query parameter
// (Plex's own webhook requests carry no signature header), and
// enqueues a single-item sync for the reported rating key.
func (s *Server) handlePlexWebhook(c *gin.Context) {
	profile := c.Param("profile")

	if secret, ok := s.webhooks[profile]; ok && secret != "" {
		got := c.Query("sync_webhook_secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	raw := c.PostForm("payload")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing payload field"})
		return
	}

	var payload plexWebhookPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload json"})
		return
	}

	if !relevantPlexEvents[payload.Event] {
		c.JSON(http.StatusOK, gin.H{"ignored": payload.Event})
		return
	}
	if payload.Metadata.RatingKey == "" {
		c.JSON(http.StatusOK, gin.H{"ignored": "no rating key"})
		return
	}

	if err := s.core.Trigger(profile, scheduler.TriggerWebhook, payload.Metadata.RatingKey); err != nil {
		s.logger.Warn("webhook trigger failed", "profile", profile, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"triggered": payload.Metadata.RatingKey})
}
