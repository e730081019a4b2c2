package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careassist/hospital-assistant/internal/api/middleware"
	"github.com/careassist/hospital-assistant/internal/session"
)

// SessionHandler exposes the session orchestrator over REST
type SessionHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Manager, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

// SendMessageRequest is the body of POST /api/session/messages
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ZoomRequest is the body of PUT /api/session/zoom. Either Level is set,
// or Action is "in" or "out".
type ZoomRequest struct {
	Level  *int   `json:"level"`
	Action string `json:"action"`
}

func (h *SessionHandler) orchestrator(c *gin.Context) *session.Orchestrator {
	return h.sessions.Get(c.Request.Context(), middleware.UserID(c))
}

// Get returns the current session state
func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator(c).Snapshot())
}

// Open shows the session, creating it on first use
func (h *SessionHandler) Open(c *gin.Context) {
	o := h.orchestrator(c)
	o.Open(c.Request.Context())
	c.JSON(http.StatusOK, o.Snapshot())
}

// Close hides the session without discarding it
func (h *SessionHandler) Close(c *gin.Context) {
	o := h.orchestrator(c)
	o.Close()
	c.JSON(http.StatusOK, o.Snapshot())
}

// Clear replaces the session with a fresh one
func (h *SessionHandler) Clear(c *gin.Context) {
	o := h.orchestrator(c)
	o.Clear(c.Request.Context())
	c.JSON(http.StatusOK, o.Snapshot())
}

// SendMessage appends the user's message and waits for the reply
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	o := h.orchestrator(c)
	if err := o.Send(c.Request.Context(), req.Content); err != nil {
		if errors.Is(err, session.ErrSendInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "a reply is still being prepared"})
			return
		}
		h.logger.Error("send failed", zap.String("user", middleware.UserID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	c.JSON(http.StatusOK, o.Snapshot())
}

// SetZoom sets or steps the zoom level
func (h *SessionHandler) SetZoom(c *gin.Context) {
	var req ZoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	o := h.orchestrator(c)
	ctx := c.Request.Context()

	var level int
	switch {
	case req.Level != nil:
		level = o.SetZoom(ctx, *req.Level)
	case req.Action == "in":
		level = o.ZoomIn(ctx)
	case req.Action == "out":
		level = o.ZoomOut(ctx)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "level or action (in|out) is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"zoomLevel": level})
}

// UpdatePreferences applies a partial preferences update
func (h *SessionHandler) UpdatePreferences(c *gin.Context) {
	var patch session.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	prefs := h.orchestrator(c).UpdatePreferences(c.Request.Context(), patch)
	c.JSON(http.StatusOK, prefs)
}
