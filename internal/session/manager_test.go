package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/web-terminal/backend/internal/db"
	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/pty"
	"github.com/web-terminal/backend/internal/repository"
	"github.com/web-terminal/backend/internal/ws"
)

func setupTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := repository.NewSessionRepository(database)
	ptyManager := pty.NewManager()

	handler := ws.NewHandler(ws.NewHubManager(), ptyManager, nil, logging.NewNop())
	service := ws.NewService(ptyManager, handler, nil, logging.NewNop())

	if cfg.RecordingDir == "" {
		cfg.RecordingDir = t.TempDir()
	}
	if cfg.MaxSessionsPerUser == 0 {
		cfg.MaxSessionsPerUser = 5
	}

	manager, err := NewManager(ptyManager, repo, service, cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	service.SetOnStatusChange(manager.HandleStatusChange)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func waitForExit(t *testing.T, manager *Manager, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !manager.IsSessionRunning(id) {
			// Give the status callback a moment to land in the database.
			time.Sleep(50 * time.Millisecond)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s did not exit", id)
}

func TestManager_Create(t *testing.T) {
	manager := setupTestManager(t, Config{})
	ctx := context.Background()

	t.Run("create session successfully", func(t *testing.T) {
		session, err := manager.Create(ctx, &model.CreateSessionRequest{
			Command: "/bin/cat",
			Name:    "Test Session",
			UserID:  "user1",
		})
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		if session.ID == "" {
			t.Error("session ID should not be empty")
		}
		if session.Name != "Test Session" {
			t.Errorf("name = %q", session.Name)
		}
		if session.Status != model.SessionStatusRunning {
			t.Errorf("status = %q", session.Status)
		}
		if session.PID == nil {
			t.Error("PID should not be nil")
		}
		if session.RecordingPath == "" {
			t.Error("recording path should not be empty")
		}
		if !manager.IsSessionRunning(session.ID) {
			t.Error("session should be running")
		}
	})

	t.Run("default name from session id", func(t *testing.T) {
		session, err := manager.Create(ctx, &model.CreateSessionRequest{
			Command: "/bin/cat",
			UserID:  "user1",
		})
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if session.Name != "Session "+session.ID[:8] {
			t.Errorf("name = %q", session.Name)
		}
	})

	t.Run("missing command is rejected", func(t *testing.T) {
		_, err := manager.Create(ctx, &model.CreateSessionRequest{UserID: "user1"})
		if !errors.Is(err, model.ErrCommandRequired) {
			t.Errorf("err = %v, want ErrCommandRequired", err)
		}
	})
}

func TestManager_DefaultShell(t *testing.T) {
	manager := setupTestManager(t, Config{DefaultShell: "/bin/cat"})

	session, err := manager.Create(context.Background(), &model.CreateSessionRequest{UserID: "user1"})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if session.Command != "/bin/cat" {
		t.Errorf("command = %q, want default shell", session.Command)
	}
}

func TestManager_ConcurrencyLimit(t *testing.T) {
	manager := setupTestManager(t, Config{MaxSessionsPerUser: 2})
	ctx := context.Background()

	for n := 0; n < 2; n++ {
		if _, err := manager.Create(ctx, &model.CreateSessionRequest{
			Command: "/bin/cat",
			UserID:  "limited",
		}); err != nil {
			t.Fatalf("create %d: %v", n, err)
		}
	}

	_, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/cat",
		UserID:  "limited",
	})
	if !errors.Is(err, model.ErrConcurrencyLimit) {
		t.Errorf("err = %v, want ErrConcurrencyLimit", err)
	}

	// Other users are unaffected.
	if _, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/cat",
		UserID:  "someone-else",
	}); err != nil {
		t.Errorf("other user blocked: %v", err)
	}
}

func TestManager_ExitUpdatesStatus(t *testing.T) {
	manager := setupTestManager(t, Config{})
	ctx := context.Background()

	session, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/echo done",
		UserID:  "user1",
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	waitForExit(t, manager, session.ID)

	got, err := manager.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.Status != model.SessionStatusExited {
		t.Errorf("status = %q, want exited", got.Status)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", got.ExitCode)
	}
}

func TestManager_Delete(t *testing.T) {
	manager := setupTestManager(t, Config{})
	ctx := context.Background()

	session, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/cat",
		UserID:  "user1",
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	recording := session.RecordingPath

	if err := manager.Delete(ctx, session.ID); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}

	if _, err := manager.Get(ctx, session.ID); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("get after delete: %v, want ErrSessionNotFound", err)
	}
	if _, err := os.Stat(recording); !os.IsNotExist(err) {
		t.Errorf("recording file still present: %v", err)
	}

	t.Run("delete unknown session", func(t *testing.T) {
		if err := manager.Delete(ctx, "no-such-id"); !errors.Is(err, model.ErrSessionNotFound) {
			t.Errorf("err = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestManager_Restart(t *testing.T) {
	manager := setupTestManager(t, Config{})
	ctx := context.Background()

	session, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/echo restart me",
		UserID:  "user1",
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	waitForExit(t, manager, session.ID)

	restarted, err := manager.Restart(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to restart session: %v", err)
	}
	if restarted.Status != model.SessionStatusRunning {
		t.Errorf("status = %q, want running", restarted.Status)
	}
	if restarted.ExitCode != nil {
		t.Errorf("exit code = %v, want nil", restarted.ExitCode)
	}
	if restarted.PID == nil {
		t.Error("PID should be set after restart")
	}

	t.Run("restart running session is rejected", func(t *testing.T) {
		running, err := manager.Create(ctx, &model.CreateSessionRequest{
			Command: "/bin/cat",
			UserID:  "user1",
		})
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if _, err := manager.Restart(ctx, running.ID); !errors.Is(err, model.ErrSessionRunning) {
			t.Errorf("err = %v, want ErrSessionRunning", err)
		}
	})
}

func TestManager_ReconcilesOrphanedSessions(t *testing.T) {
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := repository.NewSessionRepository(database)
	ctx := context.Background()

	// Rows left at running by a previous server process. Their PTYs died
	// with it, but nothing updated the database.
	orphans := []string{"orphan-1", "orphan-2"}
	for _, id := range orphans {
		now := time.Now()
		if err := repo.Create(ctx, &model.Session{
			ID:           id,
			UserID:       "user1",
			Name:         "Session " + id,
			Command:      "/bin/cat",
			Status:       model.SessionStatusRunning,
			CreatedAt:    now,
			UpdatedAt:    now,
			LastActiveAt: now,
		}); err != nil {
			t.Fatalf("failed to seed session: %v", err)
		}
	}

	ptyManager := pty.NewManager()
	handler := ws.NewHandler(ws.NewHubManager(), ptyManager, nil, logging.NewNop())
	service := ws.NewService(ptyManager, handler, nil, logging.NewNop())

	manager, err := NewManager(ptyManager, repo, service, Config{
		RecordingDir:       t.TempDir(),
		MaxSessionsPerUser: 2,
	}, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	for _, id := range orphans {
		got, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("failed to get session %s: %v", id, err)
		}
		if got.Status != model.SessionStatusExited {
			t.Errorf("session %s status = %q, want exited", id, got.Status)
		}
	}

	// The stale rows no longer count against the per-user limit.
	if _, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/cat",
		UserID:  "user1",
	}); err != nil {
		t.Errorf("create after reconcile: %v", err)
	}
}

func TestManager_IdleReaper(t *testing.T) {
	manager := setupTestManager(t, Config{IdleTimeout: 300 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := manager.Create(ctx, &model.CreateSessionRequest{
		Command: "/bin/cat",
		UserID:  "user1",
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	manager.StartReaper(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !manager.IsSessionRunning(session.ID) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("idle session was not reaped")
}
