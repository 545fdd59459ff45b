package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/web-terminal/backend/internal/config"
	"github.com/web-terminal/backend/internal/monitoring"
	"github.com/web-terminal/backend/internal/repository"
	"github.com/web-terminal/backend/internal/shell"
)

// ExecHandler serves the one-shot interpreter endpoints: command
// execution, history and completion.
type ExecHandler struct {
	interpreters *shell.Registry
	history      *repository.HistoryRepository
	metrics      *monitoring.Metrics

	limiterCfg config.RateLimitConfig
	limiterMu  sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewExecHandler creates an ExecHandler. metrics may be nil.
func NewExecHandler(interpreters *shell.Registry, history *repository.HistoryRepository, limiterCfg config.RateLimitConfig, metrics *monitoring.Metrics) *ExecHandler {
	return &ExecHandler{
		interpreters: interpreters,
		history:      history,
		metrics:      metrics,
		limiterCfg:   limiterCfg,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// ExecRequest is the request body for executing a command line.
type ExecRequest struct {
	Line string `json:"line" binding:"required"`
}

// ExecResponse carries the interpreter output.
type ExecResponse struct {
	Output      string `json:"output"`
	Interpreted string `json:"interpreted,omitempty"`
	Cwd         string `json:"cwd"`
}

// CompleteRequest is the request body for completion.
type CompleteRequest struct {
	Line string `json:"line"`
}

// CompleteResponse carries the completion candidates.
type CompleteResponse struct {
	Suggestions []string `json:"suggestions"`
}

// HistoryEntryResponse is one history line in API responses.
type HistoryEntryResponse struct {
	ID   int64  `json:"id"`
	Line string `json:"line"`
}

// limiter returns the rate limiter for one client IP.
func (h *ExecHandler) limiter(clientIP string) *rate.Limiter {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()

	if l, ok := h.limiters[clientIP]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(h.limiterCfg.RequestsPerSecond), h.limiterCfg.Burst)
	h.limiters[clientIP] = l
	return l
}

// allow applies the per-IP rate limit.
func (h *ExecHandler) allow(c *gin.Context) bool {
	if !h.limiterCfg.Enabled {
		return true
	}
	if h.limiter(c.ClientIP()).Allow() {
		return true
	}
	sendError(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many commands, slow down")
	return false
}

// Exec handles POST /api/exec - runs one command line through the
// interpreter of the calling user.
func (h *ExecHandler) Exec(c *gin.Context) {
	if !h.allow(c) {
		return
	}

	var req ExecRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	userID := getUserID(c)
	interp := h.interpreters.Get(userID)

	result := interp.Execute(c.Request.Context(), req.Line)

	if h.metrics != nil {
		name := commandName(result.Interpreted, req.Line)
		if interp.IsBuiltin(name) {
			h.metrics.ExecCommands.WithLabelValues(name).Inc()
		} else {
			h.metrics.ExecCommands.WithLabelValues("external").Inc()
		}
	}

	c.JSON(http.StatusOK, ExecResponse{
		Output:      result.Output,
		Interpreted: result.Interpreted,
		Cwd:         interp.Cwd(),
	})
}

// commandName returns the first word of the line that actually ran.
func commandName(interpreted, line string) string {
	if interpreted != "" {
		line = interpreted
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// History handles GET /api/history - returns the calling user's command
// history, oldest first.
func (h *ExecHandler) History(c *gin.Context) {
	entries, err := h.history.List(c.Request.Context(), getUserID(c))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load history: "+err.Error())
		return
	}

	response := make([]HistoryEntryResponse, len(entries))
	for n, e := range entries {
		response[n] = HistoryEntryResponse{ID: e.ID, Line: e.Line}
	}
	c.JSON(http.StatusOK, response)
}

// ClearHistory handles DELETE /api/history.
func (h *ExecHandler) ClearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context(), getUserID(c)); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to clear history: "+err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// Complete handles POST /api/complete - returns completion candidates
// for a partial command line.
func (h *ExecHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	interp := h.interpreters.Get(getUserID(c))
	suggestions := interp.Complete(req.Line)
	if suggestions == nil {
		suggestions = []string{}
	}

	c.JSON(http.StatusOK, CompleteResponse{Suggestions: suggestions})
}

// RegisterRoutes registers the interpreter endpoints on a router group.
func (h *ExecHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/exec", h.Exec)
	rg.GET("/history", h.History)
	rg.DELETE("/history", h.ClearHistory)
	rg.POST("/complete", h.Complete)
}
