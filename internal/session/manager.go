// Package session implements the session registry and lifecycle: create,
// attach, restart, delete, the per-user concurrency limit and the idle
// reaper.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/monitoring"
	"github.com/web-terminal/backend/internal/pty"
	"github.com/web-terminal/backend/internal/repository"
)

// Transport spawns PTY processes with output broadcasting wired up and
// tears their client connections down on delete.
type Transport interface {
	AttachSession(ctx context.Context, session *model.Session, opts pty.SpawnOptions) (*pty.PTYProcess, error)
	DetachSession(sessionID string)
}

// Context holds the runtime state of one session.
type Context struct {
	Session    *model.Session
	PTYProcess *pty.PTYProcess
}

// Config holds session manager configuration.
type Config struct {
	RecordingDir       string
	MaxSessionsPerUser int
	IdleTimeout        time.Duration // 0 disables the idle reaper
	DefaultShell       string        // command used when a request names none
}

// Manager owns all live sessions.
type Manager struct {
	ptyManager *pty.Manager
	repo       *repository.SessionRepository
	transport  Transport
	log        *logging.Logger
	metrics    *monitoring.Metrics

	recordingDir       string
	maxSessionsPerUser int
	idleTimeout        time.Duration
	defaultShell       string

	mu       sync.RWMutex
	sessions map[string]*Context

	reaperDone chan struct{}
}

// NewManager creates a session manager. metrics may be nil.
func NewManager(ptyManager *pty.Manager, repo *repository.SessionRepository, transport Transport, cfg Config, log *logging.Logger, metrics *monitoring.Metrics) (*Manager, error) {
	if cfg.MaxSessionsPerUser == 0 {
		cfg.MaxSessionsPerUser = 10
	}
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.RecordingDir != "" {
		if err := os.MkdirAll(cfg.RecordingDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create recording directory: %w", err)
		}
	}

	m := &Manager{
		ptyManager:         ptyManager,
		repo:               repo,
		transport:          transport,
		log:                log,
		metrics:            metrics,
		recordingDir:       cfg.RecordingDir,
		maxSessionsPerUser: cfg.MaxSessionsPerUser,
		idleTimeout:        cfg.IdleTimeout,
		defaultShell:       cfg.DefaultShell,
		sessions:           make(map[string]*Context),
	}

	if err := m.reconcileStale(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// reconcileStale marks sessions left at running by a previous server
// process as exited. Their PTYs died with that process, and the rows
// would otherwise count against the per-user limit forever.
func (m *Manager) reconcileStale(ctx context.Context) error {
	stale, err := m.repo.ListByStatus(ctx, model.SessionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running sessions: %w", err)
	}

	for _, sess := range stale {
		if err := m.repo.UpdateStatus(ctx, sess.ID, model.SessionStatusExited, nil); err != nil {
			return fmt.Errorf("failed to reconcile session %s: %w", sess.ID, err)
		}
		m.log.Info("marked orphaned session exited",
			zap.String("session_id", sess.ID),
			zap.String("user_id", sess.UserID))
	}
	return nil
}

// Create registers and spawns a new terminal session. The per-user
// concurrency limit is enforced against the database, so it survives
// restarts of the server.
func (m *Manager) Create(ctx context.Context, req *model.CreateSessionRequest) (*model.Session, error) {
	if req.Command == "" {
		req.Command = m.defaultShell
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	activeCount, err := m.repo.CountActiveByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}
	if activeCount >= m.maxSessionsPerUser {
		return nil, fmt.Errorf("%w: %d active sessions", model.ErrConcurrencyLimit, activeCount)
	}

	sessionID := uuid.New().String()

	var recordingPath string
	if m.recordingDir != "" {
		recordingPath = filepath.Join(m.recordingDir, sessionID+".cast")
	}

	now := time.Now()
	session := &model.Session{
		ID:            sessionID,
		UserID:        req.UserID,
		Name:          req.Name,
		Command:       req.Command,
		Workdir:       req.Workdir,
		Env:           req.Env,
		Status:        model.SessionStatusRunning,
		RecordingPath: recordingPath,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastActiveAt:  now,
	}
	if session.Name == "" {
		session.Name = "Session " + sessionID[:8]
	}

	if err := m.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	ptyProcess, err := m.transport.AttachSession(ctx, session, pty.SpawnOptions{
		Session:     session,
		InitialRows: 24,
		InitialCols: 80,
	})
	if err != nil {
		m.repo.Delete(ctx, sessionID)
		return nil, fmt.Errorf("failed to spawn PTY: %w", err)
	}

	pid := ptyProcess.PID()
	session.PID = &pid

	m.mu.Lock()
	m.sessions[sessionID] = &Context{
		Session:    session,
		PTYProcess: ptyProcess,
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
		m.metrics.SessionsStarted.Inc()
	}
	m.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("user_id", req.UserID),
		zap.String("command", req.Command),
		zap.Int("pid", pid))

	return session, nil
}

// Get returns a session, preferring the in-memory copy over the database.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	sessionCtx, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		return sessionCtx.Session, nil
	}
	return m.repo.GetByID(ctx, id)
}

// GetContext returns the runtime context of a live session.
func (m *Manager) GetContext(id string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionCtx, ok := m.sessions[id]
	return sessionCtx, ok
}

// List returns all sessions of a user, newest first.
func (m *Manager) List(ctx context.Context, userID string) ([]*model.Session, error) {
	return m.repo.List(ctx, userID)
}

// IsSessionRunning reports whether the session's PTY process is alive.
// The database status can lag behind; the process is the truth.
func (m *Manager) IsSessionRunning(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessionCtx, ok := m.sessions[id]
	return ok && sessionCtx.PTYProcess != nil && !sessionCtx.PTYProcess.IsClosed()
}

// Delete kills the session's process, disconnects its clients and
// removes it from the database. The recording file is removed with it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	sessionCtx, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok && sessionCtx.PTYProcess != nil {
		if err := sessionCtx.PTYProcess.Close(); err != nil {
			m.log.Warn("close pty on delete", zap.String("session_id", id), zap.Error(err))
		}
	}

	m.transport.DetachSession(id)

	session, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}
	if session.RecordingPath != "" {
		os.Remove(session.RecordingPath)
	}

	m.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Restart re-spawns an exited session with its original configuration.
// The recording starts over.
func (m *Manager) Restart(ctx context.Context, id string) (*model.Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if m.IsSessionRunning(id) {
		return nil, model.ErrSessionRunning
	}

	// The process is gone; make the database agree before re-spawning.
	if sess.Status == model.SessionStatusRunning {
		if err := m.repo.UpdateStatus(ctx, id, model.SessionStatusExited, nil); err != nil {
			return nil, fmt.Errorf("failed to update session status: %w", err)
		}
		sess.Status = model.SessionStatusExited
	}

	sess.Status = model.SessionStatusRunning
	sess.ExitCode = nil
	sess.UpdatedAt = time.Now()
	sess.LastActiveAt = sess.UpdatedAt

	if err := m.repo.UpdateStatus(ctx, id, model.SessionStatusRunning, nil); err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}

	ptyProcess, err := m.transport.AttachSession(ctx, sess, pty.SpawnOptions{
		Session:     sess,
		InitialRows: 24,
		InitialCols: 80,
	})
	if err != nil {
		m.repo.UpdateStatus(ctx, id, model.SessionStatusExited, nil)
		return nil, fmt.Errorf("failed to spawn PTY: %w", err)
	}

	pid := ptyProcess.PID()
	sess.PID = &pid

	m.mu.Lock()
	m.sessions[id] = &Context{
		Session:    sess,
		PTYProcess: ptyProcess,
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
		m.metrics.SessionsStarted.Inc()
	}
	m.log.Info("session restarted", zap.String("session_id", id), zap.Int("pid", pid))

	return sess, nil
}

// HandleStatusChange persists a session's exit. Wired to the transport's
// status callback.
func (m *Manager) HandleStatusChange(sessionID string, status model.SessionStatus, exitCode *int) {
	ctx := context.Background()

	if err := m.repo.UpdateStatus(ctx, sessionID, status, exitCode); err != nil {
		m.log.Error("update session status",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	m.mu.Lock()
	sessionCtx, ok := m.sessions[sessionID]
	wasRunning := ok && sessionCtx.Session.Status == model.SessionStatusRunning
	if ok {
		sessionCtx.Session.Status = status
		sessionCtx.Session.ExitCode = exitCode
		sessionCtx.Session.UpdatedAt = time.Now()
	}
	m.mu.Unlock()

	if wasRunning && m.metrics != nil {
		m.metrics.SessionsActive.Dec()
	}
}

// StartReaper launches the idle reaper. It kills sessions whose last
// traffic in either direction is older than the idle timeout, and keeps
// last_active_at in the database current. A zero timeout disables it.
func (m *Manager) StartReaper(ctx context.Context) {
	if m.idleTimeout <= 0 {
		return
	}

	interval := m.idleTimeout / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	m.reaperDone = make(chan struct{})
	go func() {
		defer close(m.reaperDone)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reapIdle(ctx)
			}
		}
	}()
}

func (m *Manager) reapIdle(ctx context.Context) {
	cutoff := time.Now().Add(-m.idleTimeout)

	m.mu.RLock()
	live := make([]*Context, 0, len(m.sessions))
	for _, sessionCtx := range m.sessions {
		live = append(live, sessionCtx)
	}
	m.mu.RUnlock()

	for _, sessionCtx := range live {
		p := sessionCtx.PTYProcess
		if p == nil || p.IsClosed() {
			continue
		}

		lastActive := p.LastActive()
		if err := m.repo.TouchActivity(ctx, sessionCtx.Session.ID, lastActive); err != nil {
			m.log.Debug("persist last activity",
				zap.String("session_id", sessionCtx.Session.ID),
				zap.Error(err))
		}

		if lastActive.After(cutoff) {
			continue
		}

		m.log.Info("reaping idle session",
			zap.String("session_id", sessionCtx.Session.ID),
			zap.Time("last_active", lastActive),
			zap.Duration("idle_timeout", m.idleTimeout))
		if err := p.Close(); err != nil {
			m.log.Warn("close idle session",
				zap.String("session_id", sessionCtx.Session.ID),
				zap.Error(err))
			continue
		}
		if m.metrics != nil {
			m.metrics.SessionsReaped.Inc()
		}
	}
}

// Close kills every live session. The reaper, if started, stops with the
// context passed to StartReaper.
func (m *Manager) Close() error {
	m.mu.Lock()
	live := make([]*Context, 0, len(m.sessions))
	for id, sessionCtx := range m.sessions {
		live = append(live, sessionCtx)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, sessionCtx := range live {
		if sessionCtx.PTYProcess != nil {
			if err := sessionCtx.PTYProcess.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
