package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ytmp3convert/internal/adapters/errorlog"
	"ytmp3convert/internal/adapters/wshub"
	"ytmp3convert/internal/core/domain"
	"ytmp3convert/internal/core/ports"
)

// SessionHeader carries the caller's session id.
const SessionHeader = "X-Session-ID"

// Handler serves the conversion API.
type Handler struct {
	service  string
	sessions *Sessions
	hub      *wshub.Hub
	errors   errorlog.Log
	store    ports.JobStore
	baseCtx  context.Context
	logger   *log.Logger
}

// HandlerConfig groups the Handler's collaborators. Hub, Errors and Store are optional.
type HandlerConfig struct {
	Service  string
	Sessions *Sessions
	Hub      *wshub.Hub
	Errors   errorlog.Log
	Store    ports.JobStore
	// BaseContext bounds every background conversion; cancel it on shutdown.
	BaseContext context.Context
	Logger      *log.Logger
}

// NewHandler creates a new Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Service == "" {
		cfg.Service = "ytmp3convert"
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Handler{
		service:  cfg.Service,
		sessions: cfg.Sessions,
		hub:      cfg.Hub,
		errors:   cfg.Errors,
		store:    cfg.Store,
		baseCtx:  cfg.BaseContext,
		logger:   cfg.Logger,
	}
}

// session resolves the session id from the header, then the query string.
func session(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(SessionHeader))
	if id == "" {
		id = strings.TrimSpace(c.Query("session"))
	}
	if id == "" {
		return DefaultSession, true
	}
	return id, ValidSession(id)
}

func badSession(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
}

// HealthCheck returns the health status of the service.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": time.Now().Unix(),
	})
}

// Index answers the landing route that vanity URLs redirect to.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.service,
		"message": "POST /api/convert with {\"url\": \"<YouTube URL>\"} to convert a video to MP3",
	})
}

type convertRequest struct {
	URL string `json:"url" binding:"required"`
}

// Convert starts a conversion for the session, superseding its previous job.
func (h *Handler) Convert(c *gin.Context) {
	sid, ok := session(c)
	if !ok {
		badSession(c)
		return
	}

	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	orch, ok := h.sessions.Open(sid)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many active sessions"})
		return
	}

	job, done := orch.Start(h.baseCtx, req.URL)
	go func() {
		res := <-done
		if res.Err != nil {
			h.logger.Printf("[JOB %s] session %s finished in %s: %v", res.Job.ID, sid, res.Job.State, res.Err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Conversion started",
		"session": sid,
		"job":     job,
	})
}

// GetJob returns the session's current job.
func (h *Handler) GetJob(c *gin.Context) {
	sid, ok := session(c)
	if !ok {
		badSession(c)
		return
	}
	if orch, ok := h.sessions.Get(sid); ok {
		if job, ok := orch.Current(); ok {
			c.JSON(http.StatusOK, job)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "no conversion job for this session"})
}

// CancelJob abandons the session's running job.
func (h *Handler) CancelJob(c *gin.Context) {
	sid, ok := session(c)
	if !ok {
		badSession(c)
		return
	}
	orch, ok := h.sessions.Get(sid)
	if !ok || !orch.Cancel() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running conversion for this session"})
		return
	}
	job, _ := orch.Current()
	c.JSON(http.StatusOK, gin.H{
		"message": "Conversion cancelled",
		"job":     job,
	})
}

// GetJobByID loads a persisted job snapshot.
func (h *Handler) GetJobByID(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	job, err := h.store.LoadJob(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		h.logger.Printf("Failed to load job %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// WebSocket streams the session's notifications. session=all subscribes to every session.
func (h *Handler) WebSocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notifications are disabled"})
		return
	}
	sid, ok := session(c)
	if !ok {
		badSession(c)
		return
	}

	conn, err := wshub.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	wshub.NewClient(h.hub, conn, sid).Serve()
}

// ListErrors returns the recent error log, newest first.
func (h *Handler) ListErrors(c *gin.Context) {
	if h.errors == nil {
		c.JSON(http.StatusOK, gin.H{"errors": []errorlog.Entry{}})
		return
	}
	entries, err := h.errors.List(c.Request.Context())
	if err != nil {
		h.logger.Printf("Failed to retrieve error logs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve error logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": entries})
}

// ClearErrors empties the error log.
func (h *Handler) ClearErrors(c *gin.Context) {
	if h.errors != nil {
		if err := h.errors.Clear(c.Request.Context()); err != nil {
			h.logger.Printf("Failed to clear error logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear error logs"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// FormatDuration renders seconds as M:SS or H:MM:SS.
func (h *Handler) FormatDuration(c *gin.Context) {
	seconds, err := strconv.Atoi(c.Query("seconds"))
	if err != nil || seconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"seconds":   seconds,
		"formatted": domain.FormatHMS(seconds),
	})
}
