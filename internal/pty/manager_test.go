package pty

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web-terminal/backend/internal/model"
)

func testSession(t *testing.T, command string) *model.Session {
	t.Helper()
	dir := t.TempDir()
	return &model.Session{
		ID:            "test-" + strings.ReplaceAll(t.Name(), "/", "-"),
		UserID:        "user1",
		Command:       command,
		RecordingPath: filepath.Join(dir, "session.cast"),
		CreatedAt:     time.Now(),
	}
}

func TestManager_SpawnAndExit(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var mu sync.Mutex
	var output bytes.Buffer
	exited := make(chan int, 1)

	sess := testSession(t, "/bin/echo hello-pty")
	proc, err := m.Spawn(context.Background(), SpawnOptions{
		Session: sess,
		OutputCallback: func(data []byte) {
			mu.Lock()
			output.Write(data)
			mu.Unlock()
		},
		ExitCallback: func(code int, err error) {
			exited <- code
		},
	})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if proc.PID() <= 0 {
		t.Errorf("expected positive PID, got %d", proc.PID())
	}

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("expected exit code 0, got %d", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit in time")
	}

	// The read loop may deliver output slightly after exit.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := output.String()
		mu.Unlock()
		if strings.Contains(got, "hello-pty") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("output callback never saw command output, got %q", got)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !strings.Contains(string(proc.GetHistory()), "hello-pty") {
		t.Error("ring buffer should hold the command output")
	}

	// Recording file must exist and start with the v2 header.
	data, err := os.ReadFile(sess.RecordingPath)
	if err != nil {
		t.Fatalf("recording file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"version":2`) {
		t.Errorf("recording does not start with asciinema v2 header: %q", string(data[:min(len(data), 40)]))
	}
}

func TestManager_WriteRoundTrip(t *testing.T) {
	m := NewManager()
	defer m.Close()

	var mu sync.Mutex
	var output bytes.Buffer

	sess := testSession(t, "/bin/cat")
	proc, err := m.Spawn(context.Background(), SpawnOptions{
		Session: sess,
		OutputCallback: func(data []byte) {
			mu.Lock()
			output.Write(data)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	defer proc.Close()

	if err := m.Write(sess.ID, []byte("ping\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		got := output.String()
		mu.Unlock()
		if strings.Contains(got, "ping") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never saw echoed input, got %q", got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_KillAndCleanup(t *testing.T) {
	m := NewManager()
	defer m.Close()

	sess := testSession(t, "/bin/cat")
	proc, err := m.Spawn(context.Background(), SpawnOptions{Session: sess})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := m.Kill(sess.ID); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if !proc.IsClosed() {
		t.Error("process should be closed after Kill")
	}

	// Double close is a no-op.
	if err := proc.Close(); err != nil {
		t.Errorf("second Close should be nil, got %v", err)
	}

	// Writes after close report the session as not running.
	if err := proc.Write([]byte("x")); err != model.ErrSessionNotRunning {
		t.Errorf("expected ErrSessionNotRunning, got %v", err)
	}

	// The wait loop unregisters the process.
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := m.Get(sess.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("process was not removed from manager")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_Resize(t *testing.T) {
	m := NewManager()
	defer m.Close()

	sess := testSession(t, "/bin/cat")
	proc, err := m.Spawn(context.Background(), SpawnOptions{Session: sess, InitialRows: 24, InitialCols: 80})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	defer proc.Close()

	if err := m.Resize(sess.ID, 40, 120); err != nil {
		t.Errorf("Resize failed: %v", err)
	}
	if err := m.Resize("no-such-session", 40, 120); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestManager_SpawnValidation(t *testing.T) {
	m := NewManager()
	defer m.Close()

	if _, err := m.Spawn(context.Background(), SpawnOptions{}); err == nil {
		t.Error("expected error for missing session")
	}

	sess := testSession(t, "")
	if _, err := m.Spawn(context.Background(), SpawnOptions{Session: sess}); err != model.ErrCommandRequired {
		t.Errorf("expected ErrCommandRequired, got %v", err)
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"ls", []string{"ls"}},
		{"ls -la /tmp", []string{"ls", "-la", "/tmp"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'single quoted'`, []string{"echo", "single quoted"}},
		{`grep "it's nested"`, []string{"grep", "it's nested"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{"", nil},
	}

	for _, c := range cases {
		if got := SplitCommand(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("SplitCommand(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
