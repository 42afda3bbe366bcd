package webhookapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"plexanibridge/internal/domain"
	"plexanibridge/internal/history"
	"plexanibridge/internal/scheduler"
)

// Core is the subset of runtime.CoreRuntime this surface binds to HTTP
// handlers. Kept as an interface so handler tests can fake it without
// constructing a full runtime.
type Core interface {
	Status() []scheduler.Status
	History(ctx context.Context, profile string, f history.Filter) ([]domain.HistoryEvent, error)
	Trigger(profile string, kind scheduler.TriggerKind, ratingKey string) error
	Undo(ctx context.Context, eventID int64) (int64, error)
	DeleteHistory(ctx context.Context, eventID int64) error
	ListBackups(profile string) ([]string, error)
	RestoreBackup(ctx context.Context, profile, filename string) (domain.RestoreSummary, error)
	SearchMappings(ctx context.Context, query string) ([]domain.Mapping, error)
	UpsertOverride(ctx context.Context, m domain.Mapping) error
	DeleteOverride(ctx context.Context, anilistID int) error
}

// Server is the gin HTTP surface: a Plex webhook receiver plus a
// JWT-authenticated set of status/history/trigger/backup/mapping
// endpoints and a WebSocket event relay.
type Server struct {
	core     Core
	issuer   *TokenIssuer
	hub      *Hub
	webhooks map[string]string // profile -> sync_webhook_secret
	logger   *slog.Logger

	engine *gin.Engine
}

// NewServer builds the gin engine and registers every route.
func NewServer(core Core, issuer *TokenIssuer, hub *Hub, webhookSecrets map[string]string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		core:     core,
		issuer:   issuer,
		hub:      hub,
		webhooks: webhookSecrets,
		logger:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.POST("/webhook/plex/:profile", s.handlePlexWebhook)
	r.GET("/api/v1/stream", s.handleStream)

	api := r.Group("/api/v1")
	api.Use(RequireBearer(issuer))
	{
		api.GET("/status", s.handleStatus)
		api.GET("/profiles/:name/history", s.handleHistoryList)
		api.POST("/profiles/:name/trigger", s.handleTrigger)
		api.POST("/history/:id/undo", s.handleUndo)
		api.DELETE("/history/:id", s.handleDeleteHistory)
		api.GET("/profiles/:name/backups", s.handleListBackups)
		api.POST("/profiles/:name/backups/:file/restore", s.handleRestoreBackup)
		api.GET("/mappings/search", s.handleSearchMappings)
		api.PUT("/mappings/:id", s.handleUpsertMapping)
		api.DELETE("/mappings/:id", s.handleDeleteMapping)
	}

	s.engine = r
	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.core.Status())
}

func (s *Server) handleHistoryList(c *gin.Context) {
	profile := c.Param("name")
	f := history.Filter{}
	if outcome := c.Query("outcome"); outcome != "" {
		f.Outcome = domain.Outcome(outcome)
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		f.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		f.Offset = offset
	}

	events, err := s.core.History(c.Request.Context(), profile, f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) handleTrigger(c *gin.Context) {
	profile := c.Param("name")
	var body struct {
		RatingKey string `json:"rating_key"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := s.core.Trigger(profile, scheduler.TriggerFull, body.RatingKey); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"triggered": profile})
}

func (s *Server) handleUndo(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	newID, err := s.core.Undo(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"undo_event_id": newID})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}
	if err := s.core.DeleteHistory(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListBackups(c *gin.Context) {
	files, err := s.core.ListBackups(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": files})
}

func (s *Server) handleRestoreBackup(c *gin.Context) {
	profile := c.Param("name")
	file := c.Param("file")
	summary, err := s.core.RestoreBackup(c.Request.Context(), profile, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"processed": summary.Processed,
		"restored":  summary.Restored,
		"errors":    summary.Errors,
	})
}

func (s *Server) handleSearchMappings(c *gin.Context) {
	results, err := s.core.SearchMappings(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleUpsertMapping(c *gin.Context) {
	anilistID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anilist id"})
		return
	}
	var m domain.Mapping
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.AniListID = anilistID
	if err := s.core.UpsertOverride(c.Request.Context(), m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleDeleteMapping(c *gin.Context) {
	anilistID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid anilist id"})
		return
	}
	if err := s.core.DeleteOverride(c.Request.Context(), anilistID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
