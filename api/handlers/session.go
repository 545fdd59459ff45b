// Package handlers provides the HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/session"
)

// SessionHandler serves the session registry endpoints.
type SessionHandler struct {
	sessionManager *session.Manager
	log            *logging.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessionManager *session.Manager, log *logging.Logger) *SessionHandler {
	if log == nil {
		log = logging.NewNop()
	}
	return &SessionHandler{
		sessionManager: sessionManager,
		log:            log,
	}
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Command string            `json:"command"`
	Name    string            `json:"name"`
	Workdir string            `json:"workdir"`
	Env     map[string]string `json:"env"`
}

// SessionResponse is a session in API responses.
type SessionResponse struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Name          string            `json:"name"`
	Command       string            `json:"command"`
	Workdir       string            `json:"workdir,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Status        string            `json:"status"`
	ExitCode      *int              `json:"exitCode,omitempty"`
	PID           *int              `json:"pid,omitempty"`
	RecordingPath string            `json:"recordingPath,omitempty"`
	PreviewLine   string            `json:"previewLine,omitempty"`
	Duration      string            `json:"duration"`
	IdleFor       string            `json:"idleFor"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
	LastActiveAt  string            `json:"lastActiveAt"`
}

// ErrorResponse is the error envelope of every failing endpoint.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toSessionResponse(s *model.Session) *SessionResponse {
	return &SessionResponse{
		ID:            s.ID,
		UserID:        s.UserID,
		Name:          s.Name,
		Command:       s.Command,
		Workdir:       s.Workdir,
		Env:           s.Env,
		Status:        string(s.Status),
		ExitCode:      s.ExitCode,
		PID:           s.PID,
		RecordingPath: s.RecordingPath,
		PreviewLine:   s.PreviewLine,
		Duration:      formatDuration(s.Duration()),
		IdleFor:       formatDuration(s.IdleFor(time.Now())),
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.Format(time.RFC3339),
		LastActiveAt:  s.LastActiveAt.Format(time.RFC3339),
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// getUserID extracts the user from the request. Authentication middleware
// sets "userID" on the context; the X-User-ID header and a development
// default are the fallbacks.
func getUserID(c *gin.Context) string {
	if userID, exists := c.Get("userID"); exists {
		if id, ok := userID.(string); ok && id != "" {
			return id
		}
	}
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "default-user"
}

func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendDomainError maps the model sentinel errors onto HTTP responses.
func sendDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrSessionNotFound):
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
	case errors.Is(err, model.ErrForbidden):
		sendError(c, http.StatusForbidden, "FORBIDDEN", "Access to session denied")
	case errors.Is(err, model.ErrCommandRequired):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, model.ErrConcurrencyLimit):
		sendError(c, http.StatusTooManyRequests, "LIMIT_EXCEEDED", err.Error())
	case errors.Is(err, model.ErrSessionRunning):
		sendError(c, http.StatusConflict, "INVALID_STATE", "Session is already running")
	case errors.Is(err, model.ErrSessionNotRunning):
		sendError(c, http.StatusBadRequest, "SESSION_NOT_RUNNING", "Session is not running")
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

// getOwnedSession loads a session and verifies the caller owns it.
func (h *SessionHandler) getOwnedSession(c *gin.Context) (*model.Session, bool) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return nil, false
	}

	sess, err := h.sessionManager.Get(c.Request.Context(), sessionID)
	if err != nil {
		sendDomainError(c, err)
		return nil, false
	}

	if sess.UserID != getUserID(c) {
		sendDomainError(c, model.ErrForbidden)
		return nil, false
	}
	return sess, true
}

// Create handles POST /api/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	sess, err := h.sessionManager.Create(c.Request.Context(), &model.CreateSessionRequest{
		Command: req.Command,
		Name:    req.Name,
		Workdir: req.Workdir,
		Env:     req.Env,
		UserID:  getUserID(c),
	})
	if err != nil {
		h.log.Warn("create session", zap.Error(err))
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// List handles GET /api/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessionManager.List(c.Request.Context(), getUserID(c))
	if err != nil {
		sendDomainError(c, err)
		return
	}

	response := make([]*SessionResponse, len(sessions))
	for n, sess := range sessions {
		// The database status can trail the process by a moment; report
		// what the process is actually doing.
		if sess.Status == model.SessionStatusRunning && !h.sessionManager.IsSessionRunning(sess.ID) {
			sess.Status = model.SessionStatusExited
		}
		response[n] = toSessionResponse(sess)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.getOwnedSession(c)
	if !ok {
		return
	}

	if sess.Status == model.SessionStatusRunning && !h.sessionManager.IsSessionRunning(sess.ID) {
		sess.Status = model.SessionStatusExited
	}

	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// Delete handles DELETE /api/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	sess, ok := h.getOwnedSession(c)
	if !ok {
		return
	}

	if err := h.sessionManager.Delete(c.Request.Context(), sess.ID); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Restart handles POST /api/sessions/:id/restart.
func (h *SessionHandler) Restart(c *gin.Context) {
	sess, ok := h.getOwnedSession(c)
	if !ok {
		return
	}

	restarted, err := h.sessionManager.Restart(c.Request.Context(), sess.ID)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(restarted))
}

// GetRecording handles GET /api/sessions/:id/recording - downloads the
// asciinema cast of a session.
func (h *SessionHandler) GetRecording(c *gin.Context) {
	sess, ok := h.getOwnedSession(c)
	if !ok {
		return
	}

	if sess.RecordingPath == "" {
		sendError(c, http.StatusNotFound, "RECORDING_NOT_FOUND", "No recording for session "+sess.ID)
		return
	}

	c.Header("Content-Type", "application/x-asciicast")
	c.Header("Content-Disposition", "attachment; filename="+sess.ID+".cast")
	c.File(sess.RecordingPath)
}

// RegisterRoutes registers the session endpoints on a router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.POST("/:id/restart", h.Restart)
		sessions.GET("/:id/recording", h.GetRecording)
	}
}
