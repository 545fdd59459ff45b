package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/model"
	"github.com/web-terminal/backend/internal/pty"
)

func spawnCat(t *testing.T, manager *pty.Manager, id string) *pty.PTYProcess {
	t.Helper()

	p, err := manager.Spawn(context.Background(), pty.SpawnOptions{
		Session: &model.Session{
			ID:      id,
			UserID:  "user1",
			Command: "/bin/cat",
			Status:  model.SessionStatusRunning,
		},
	})
	if err != nil {
		t.Fatalf("failed to spawn process: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func waitUnregistered(t *testing.T, manager *pty.Manager, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := manager.Get(id); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("process %s still registered", id)
}

func TestHandler_StdinReachesRespawnedProcess(t *testing.T) {
	manager := pty.NewManager()
	t.Cleanup(func() { manager.Close() })

	first := spawnCat(t, manager, "sess-1")

	h := NewHandler(NewHubManager(), manager, nil, logging.NewNop())
	hub := h.hubManager.GetOrCreate("sess-1")
	hub.SetOnMessage(h.handleMessage)
	client := NewClient(hub, nil, "sess-1")
	hub.Register(client)

	// The session is killed and re-spawned while the client stays
	// attached; its input must reach the new process.
	first.Close()
	waitUnregistered(t, manager, "sess-1")
	second := spawnCat(t, manager, "sess-1")

	hub.HandleMessage(client, &Message{Type: MessageTypeStdin, Data: "after-restart\n"})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(string(second.GetHistory()), "after-restart") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("stdin never reached the re-spawned process; ring buffer = %q", second.GetHistory())
}

func TestHandler_StdinWithoutProcessIsDropped(t *testing.T) {
	h := NewHandler(NewHubManager(), pty.NewManager(), nil, logging.NewNop())
	hub := h.hubManager.GetOrCreate("ghost")
	client := NewClient(hub, nil, "ghost")

	// Must not panic or block.
	h.handleMessage(client, &Message{Type: MessageTypeStdin, Data: "nobody home\n"})
	h.handleMessage(client, &Message{Type: MessageTypeResize, Rows: 40, Cols: 120})
}

func TestHandler_AttachDeliversHistoryFirst(t *testing.T) {
	manager := pty.NewManager()
	t.Cleanup(func() { manager.Close() })

	p := spawnCat(t, manager, "sess-hist")
	if err := p.Write([]byte("seed\n")); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(string(p.GetHistory()), "seed") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	h := NewHandler(NewHubManager(), manager, nil, logging.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleConnection(w, r, "sess-hist")
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read first frame: %v", err)
	}
	if msg.Type != MessageTypeHistory {
		t.Fatalf("first frame type = %q, want history", msg.Type)
	}
	if !strings.Contains(msg.Data, "seed") {
		t.Errorf("history frame missing buffered output: %q", msg.Data)
	}
}
