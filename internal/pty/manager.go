package pty

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/web-terminal/backend/internal/buffer"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/recorder"
)

const (
	// DefaultRingBufferSize is the default hot-restore buffer size (64KB).
	DefaultRingBufferSize = 64 * 1024

	// readBufferSize is the chunk size for reading PTY output.
	readBufferSize = 4096
)

// PTYProcess is a running PTY process together with its session resources:
// the hot-restore ring buffer, the asciinema recorder, and the fan-out
// callbacks.
type PTYProcess struct {
	ID         string
	Session    *model.Session
	Process    *Process
	RingBuffer *buffer.RingBuffer
	Recorder   *recorder.Recorder

	// OutputCallback receives every chunk of PTY output. Used to
	// broadcast to WebSocket clients.
	OutputCallback func(data []byte)

	// ExitCallback runs once when the process exits.
	ExitCallback func(exitCode int, err error)

	lastActive atomic.Int64 // unix nanos of last traffic in either direction

	mu       sync.RWMutex
	closed   bool
	closedCh chan struct{}
}

// Manager owns the PTY processes of all running sessions.
type Manager struct {
	processes map[string]*PTYProcess
	mu        sync.RWMutex

	// RingBufferSize is the hot-restore buffer capacity per process.
	RingBufferSize int
}

// NewManager creates a new PTY manager.
func NewManager() *Manager {
	return &Manager{
		processes:      make(map[string]*PTYProcess),
		RingBufferSize: DefaultRingBufferSize,
	}
}

// SpawnOptions contains options for spawning a PTY process.
type SpawnOptions struct {
	// Session is the session metadata; its Command, Workdir, Env and
	// RecordingPath drive the spawn.
	Session *model.Session

	// InitialRows and InitialCols set the starting window size.
	InitialRows uint16
	InitialCols uint16

	// OutputCallback receives PTY output chunks.
	OutputCallback func(data []byte)

	// ExitCallback runs when the process exits.
	ExitCallback func(exitCode int, err error)
}

// Spawn starts a new PTY process for the given session and registers it.
func (m *Manager) Spawn(ctx context.Context, opts SpawnOptions) (*PTYProcess, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.Session.Command == "" {
		return nil, model.ErrCommandRequired
	}

	if opts.InitialRows == 0 {
		opts.InitialRows = 24
	}
	if opts.InitialCols == 0 {
		opts.InitialCols = 80
	}

	// Inherit the server environment so PATH, HOME etc. are present,
	// then layer the session-specific variables on top.
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	for k, v := range opts.Session.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	var rec *recorder.Recorder
	if opts.Session.RecordingPath != "" {
		var err error
		rec, err = recorder.New(opts.Session.RecordingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create recorder: %w", err)
		}
		if err := rec.WriteHeader(int(opts.InitialCols), int(opts.InitialRows), nil); err != nil {
			rec.Close()
			return nil, fmt.Errorf("failed to write recording header: %w", err)
		}
	}

	cmdParts := SplitCommand(opts.Session.Command)
	if len(cmdParts) == 0 {
		if rec != nil {
			rec.Close()
		}
		return nil, fmt.Errorf("invalid command")
	}

	workdir, err := expandWorkdir(opts.Session.Workdir)
	if err != nil {
		if rec != nil {
			rec.Close()
		}
		return nil, err
	}
	opts.Session.Workdir = workdir

	process, err := Start(StartOptions{
		Command:     cmdParts[0],
		Args:        cmdParts[1:],
		Env:         env,
		Dir:         workdir,
		InitialRows: opts.InitialRows,
		InitialCols: opts.InitialCols,
	})
	if err != nil {
		if rec != nil {
			rec.Close()
		}
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	ptyProcess := &PTYProcess{
		ID:             opts.Session.ID,
		Session:        opts.Session,
		Process:        process,
		RingBuffer:     buffer.NewRingBuffer(m.RingBufferSize),
		Recorder:       rec,
		OutputCallback: opts.OutputCallback,
		ExitCallback:   opts.ExitCallback,
		closedCh:       make(chan struct{}),
	}
	ptyProcess.touch()

	m.mu.Lock()
	m.processes[opts.Session.ID] = ptyProcess
	m.mu.Unlock()

	go ptyProcess.readLoop()
	go ptyProcess.waitLoop(m)

	return ptyProcess, nil
}

// expandWorkdir expands a leading ~ and creates the directory when it
// does not exist yet. Empty input stays empty.
func expandWorkdir(workdir string) (string, error) {
	if workdir == "" {
		return "", nil
	}
	if workdir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		if len(workdir) == 1 {
			workdir = home
		} else if workdir[1] == '/' {
			workdir = home + workdir[1:]
		}
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create working directory %s: %w", workdir, err)
	}
	return workdir, nil
}

// Get returns the PTY process for the given session ID.
func (m *Manager) Get(id string) (*PTYProcess, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.processes[id]
	return p, ok
}

// Kill terminates the PTY process for the given session ID.
func (m *Manager) Kill(id string) error {
	p, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("process not found: %s", id)
	}
	return p.Close()
}

// Resize changes the PTY window size for the given session ID.
func (m *Manager) Resize(id string, rows, cols uint16) error {
	p, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("process not found: %s", id)
	}
	return p.Resize(rows, cols)
}

// Write writes stdin data to the given session's PTY.
func (m *Manager) Write(id string, data []byte) error {
	p, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("process not found: %s", id)
	}
	return p.Write(data)
}

// Remove removes the process from the manager after it has exited.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.processes, id)
	m.mu.Unlock()
}

// List returns all registered PTY processes.
func (m *Manager) List() []*PTYProcess {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*PTYProcess, 0, len(m.processes))
	for _, p := range m.processes {
		result = append(result, p)
	}
	return result
}

// Close closes all PTY processes.
func (m *Manager) Close() error {
	m.mu.Lock()
	processes := make([]*PTYProcess, 0, len(m.processes))
	for _, p := range m.processes {
		processes = append(processes, p)
	}
	m.mu.Unlock()

	var firstErr error
	for _, p := range processes {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readLoop fans PTY output out to the ring buffer, the recorder and the
// output callback until the PTY is closed.
func (p *PTYProcess) readLoop() {
	buf := make([]byte, readBufferSize)

	for {
		n, err := p.Process.Read(buf)
		if n > 0 {
			data := buf[:n]
			p.touch()

			p.RingBuffer.Write(data)

			if p.Recorder != nil {
				p.Recorder.WriteOutput(data)
			}

			p.mu.RLock()
			cb := p.OutputCallback
			p.mu.RUnlock()
			if cb != nil {
				cb(data)
			}
		}
		if err != nil {
			// EOF or EIO, both mean the PTY is gone.
			return
		}
	}
}

// waitLoop reaps the process, runs the exit callback and unregisters.
func (p *PTYProcess) waitLoop(m *Manager) {
	exitCode, err := p.Process.Wait()

	if p.ExitCallback != nil {
		p.ExitCallback(exitCode, err)
	}

	p.Close()
	m.Remove(p.ID)
}

func (p *PTYProcess) touch() {
	p.lastActive.Store(time.Now().UnixNano())
}

// LastActive returns the time of the most recent traffic in either direction.
func (p *PTYProcess) LastActive() time.Time {
	return time.Unix(0, p.lastActive.Load())
}

// Write writes stdin data to the PTY and records it.
func (p *PTYProcess) Write(data []byte) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return model.ErrSessionNotRunning
	}
	p.mu.RUnlock()

	if _, err := p.Process.Write(data); err != nil {
		return fmt.Errorf("failed to write to PTY: %w", err)
	}
	p.touch()

	if p.Recorder != nil {
		p.Recorder.WriteInput(data)
	}
	return nil
}

// SetOutputCallback replaces the output fan-out callback.
func (p *PTYProcess) SetOutputCallback(cb func(data []byte)) {
	p.mu.Lock()
	p.OutputCallback = cb
	p.mu.Unlock()
}

// Resize changes the PTY window size.
func (p *PTYProcess) Resize(rows, cols uint16) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return model.ErrSessionNotRunning
	}
	p.mu.RUnlock()

	return p.Process.Resize(rows, cols)
}

// Close kills the process and releases the PTY and recorder. Safe to
// call more than once.
func (p *PTYProcess) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closedCh)
	p.mu.Unlock()

	var firstErr error
	if err := p.Process.Kill(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.Process.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if p.Recorder != nil {
		if err := p.Recorder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsClosed reports whether the process has been closed.
func (p *PTYProcess) IsClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// ClosedChan is closed when the process exits.
func (p *PTYProcess) ClosedChan() <-chan struct{} {
	return p.closedCh
}

// GetHistory returns the hot-restore buffer contents.
func (p *PTYProcess) GetHistory() []byte {
	return p.RingBuffer.ReadAll()
}

// PID returns the process ID.
func (p *PTYProcess) PID() int {
	return p.Process.PID()
}
