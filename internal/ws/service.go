package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/pty"
)

// PreviewStore persists the preview line shown in session lists.
type PreviewStore interface {
	UpdatePreviewLine(ctx context.Context, id, preview string) error
}

// Service ties PTY processes to WebSocket hubs: it spawns sessions with
// broadcasting callbacks, keeps the preview line current, and reports
// exits. Processes keep running when no clients are attached.
type Service struct {
	hubManager *HubManager
	ptyManager *pty.Manager
	handler    *Handler
	previews   PreviewStore
	log        *logging.Logger

	mu             sync.RWMutex
	lastPreview    map[string]string
	onStatusChange func(sessionID string, status model.SessionStatus, exitCode *int)
}

// NewService creates a Service. previews and the handler's metrics may
// be nil.
func NewService(ptyManager *pty.Manager, handler *Handler, previews PreviewStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{
		hubManager:  handler.hubManager,
		ptyManager:  ptyManager,
		handler:     handler,
		previews:    previews,
		log:         log,
		lastPreview: make(map[string]string),
	}
}

// SetOnStatusChange sets the callback for session status changes.
func (s *Service) SetOnStatusChange(fn func(sessionID string, status model.SessionStatus, exitCode *int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatusChange = fn
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the hub manager.
func (s *Service) HubManager() *HubManager {
	return s.hubManager
}

// AttachSession spawns the session's PTY with broadcasting wired up.
// The hub exists from the start so output is buffered and the preview
// line tracked even before the first client attaches.
func (s *Service) AttachSession(ctx context.Context, session *model.Session, opts pty.SpawnOptions) (*pty.PTYProcess, error) {
	sessionID := session.ID

	opts.OutputCallback = func(data []byte) {
		s.handler.BroadcastOutput(sessionID, data)
		s.updatePreview(sessionID, data)
	}
	opts.ExitCallback = func(exitCode int, err error) {
		s.handleProcessExit(sessionID, exitCode, err)
	}

	ptyProcess, err := s.ptyManager.Spawn(ctx, opts)
	if err != nil {
		return nil, err
	}

	hub := s.hubManager.GetOrCreate(sessionID)
	hub.SetOnEmpty(func() {
		s.log.Info("all clients detached, session keeps running",
			zap.String("session_id", sessionID))
	})

	return ptyProcess, nil
}

// updatePreview extracts the last visible line of output and persists
// it when it changed.
func (s *Service) updatePreview(sessionID string, data []byte) {
	if s.previews == nil {
		return
	}

	preview := ExtractPreviewLine(data)
	if preview == "" {
		return
	}

	s.mu.Lock()
	if s.lastPreview[sessionID] == preview {
		s.mu.Unlock()
		return
	}
	s.lastPreview[sessionID] = preview
	s.mu.Unlock()

	if err := s.previews.UpdatePreviewLine(context.Background(), sessionID, preview); err != nil {
		s.log.Debug("update preview line",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func (s *Service) handleProcessExit(sessionID string, exitCode int, err error) {
	var status model.SessionStatus
	var code *int

	if err != nil {
		status = model.SessionStatusFailed
		s.log.Warn("session failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	} else {
		status = model.SessionStatusExited
		code = &exitCode
		s.log.Info("session exited",
			zap.String("session_id", sessionID),
			zap.Int("exit_code", exitCode))
	}

	s.handler.BroadcastStatus(sessionID, string(status), code)

	s.mu.RLock()
	fn := s.onStatusChange
	s.mu.RUnlock()

	if fn != nil {
		fn(sessionID, status, code)
	}
}

// DetachSession closes all WebSocket connections for a session. Called
// when the session is deleted.
func (s *Service) DetachSession(sessionID string) {
	s.hubManager.Remove(sessionID)

	s.mu.Lock()
	delete(s.lastPreview, sessionID)
	s.mu.Unlock()
}

// ClientCount returns the number of clients attached to a session.
func (s *Service) ClientCount(sessionID string) int {
	hub := s.hubManager.Get(sessionID)
	if hub == nil {
		return 0
	}
	return hub.ClientCount()
}

// Close disconnects every client of every session.
func (s *Service) Close() {
	s.hubManager.Close()
}
