package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/session"
	"github.com/web-terminal/backend/internal/ws"
)

// WebSocketHandler serves the session attach endpoint.
type WebSocketHandler struct {
	sessionManager *session.Manager
	wsHandler      *ws.Handler
	log            *logging.Logger
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(sessionManager *session.Manager, wsHandler *ws.Handler, log *logging.Logger) *WebSocketHandler {
	if log == nil {
		log = logging.NewNop()
	}
	return &WebSocketHandler{
		sessionManager: sessionManager,
		wsHandler:      wsHandler,
		log:            log,
	}
}

// Attach handles GET /api/sessions/:id/attach - upgrades to WebSocket
// and streams the terminal.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	sess, err := h.sessionManager.Get(c.Request.Context(), sessionID)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	if sess.UserID != getUserID(c) {
		sendDomainError(c, model.ErrForbidden)
		return
	}

	if !h.sessionManager.IsSessionRunning(sessionID) {
		sendDomainError(c, model.ErrSessionNotRunning)
		return
	}

	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, sessionID); err != nil {
		h.log.Warn("websocket upgrade", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// RegisterRoutes registers the attach endpoint on a router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions/:id/attach", h.Attach)
}
