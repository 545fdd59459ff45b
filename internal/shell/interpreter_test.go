package shell

import (
	"context"
	"strings"
	"testing"

	"github.com/web-terminal/backend/internal/model"
)

type memHistory struct {
	lines []string
}

func (m *memHistory) Append(_ context.Context, _ string, line string) error {
	m.lines = append(m.lines, line)
	return nil
}

func (m *memHistory) List(_ context.Context, _ string) ([]*model.HistoryEntry, error) {
	entries := make([]*model.HistoryEntry, 0, len(m.lines))
	for n, line := range m.lines {
		entries = append(entries, &model.HistoryEntry{ID: int64(n + 1), UserID: "u1", Line: line})
	}
	return entries, nil
}

func TestInterpreter_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("cd and pwd", func(t *testing.T) {
		i := New("u1", nil)
		dir := t.TempDir()
		if out := i.Execute(ctx, "cd "+dir).Output; out != "" {
			t.Fatalf("cd: %q", out)
		}
		if got := i.Execute(ctx, "pwd").Output; got != dir {
			t.Errorf("pwd = %q, want %q", got, dir)
		}
	})

	t.Run("mkdir touch ls cat", func(t *testing.T) {
		i := New("u1", nil)
		dir := t.TempDir()
		i.Execute(ctx, "cd "+dir)

		if out := i.Execute(ctx, "mkdir sub").Output; out != "" {
			t.Fatalf("mkdir: %q", out)
		}
		if out := i.Execute(ctx, "touch sub/a.txt").Output; out != "" {
			t.Fatalf("touch: %q", out)
		}
		if out := i.Execute(ctx, "echo hello").Output; out != "hello" {
			t.Errorf("echo = %q", out)
		}
		ls := i.Execute(ctx, "ls").Output
		if !strings.Contains(ls, "sub") {
			t.Errorf("ls = %q, want listing containing sub", ls)
		}
		cat := i.Execute(ctx, "cat sub/a.txt").Output
		if cat != "" {
			t.Errorf("cat empty file = %q", cat)
		}
	})

	t.Run("coreutils style errors", func(t *testing.T) {
		i := New("u1", nil)
		i.Execute(ctx, "cd "+t.TempDir())

		if out := i.Execute(ctx, "cat missing.txt").Output; !strings.Contains(out, "No such file or directory") {
			t.Errorf("cat missing = %q", out)
		}
		if out := i.Execute(ctx, "cd nowhere").Output; !strings.Contains(out, "no such file or directory") {
			t.Errorf("cd missing = %q", out)
		}
		if out := i.Execute(ctx, "mkdir").Output; out != "mkdir: missing operand" {
			t.Errorf("mkdir no args = %q", out)
		}
		// The operand is quoted as typed, not as the resolved path.
		if out := i.Execute(ctx, "ls nope").Output; out != "ls: cannot access 'nope': No such file or directory" {
			t.Errorf("ls missing = %q", out)
		}
	})

	t.Run("unknown command falls through", func(t *testing.T) {
		i := New("u1", nil)
		out := i.Execute(ctx, "definitely-not-a-command-xyz").Output
		if !strings.Contains(out, "command not found") {
			t.Errorf("unknown command = %q", out)
		}
	})

	t.Run("natural language is translated", func(t *testing.T) {
		i := New("u1", nil)
		dir := t.TempDir()
		i.Execute(ctx, "cd "+dir)

		res := i.Execute(ctx, "create a folder called docs")
		if res.Interpreted != "mkdir docs" {
			t.Errorf("interpreted = %q, want %q", res.Interpreted, "mkdir docs")
		}
		ls := i.Execute(ctx, "ls").Output
		if !strings.Contains(ls, "docs") {
			t.Errorf("ls after translation = %q", ls)
		}
	})

	t.Run("history records lines", func(t *testing.T) {
		h := &memHistory{}
		i := New("u1", h)
		i.Execute(ctx, "pwd")
		i.Execute(ctx, "echo one")

		if len(h.lines) != 2 || h.lines[1] != "echo one" {
			t.Fatalf("history lines = %#v", h.lines)
		}
		out := i.Execute(ctx, "history").Output
		if !strings.Contains(out, "echo one") {
			t.Errorf("history builtin = %q", out)
		}
	})

	t.Run("exit ends the session", func(t *testing.T) {
		i := New("u1", nil)
		if out := i.Execute(ctx, "exit").Output; out != "Session ended." {
			t.Errorf("exit = %q", out)
		}
	})

	t.Run("parse error surfaces", func(t *testing.T) {
		i := New("u1", nil)
		out := i.Execute(ctx, `echo "oops`).Output
		if !strings.Contains(out, "no closing quotation") {
			t.Errorf("parse error = %q", out)
		}
	})

	t.Run("empty line is a no-op", func(t *testing.T) {
		h := &memHistory{}
		i := New("u1", h)
		if res := i.Execute(ctx, "   "); res.Output != "" || res.Interpreted != "" {
			t.Errorf("empty line = %+v", res)
		}
		if len(h.lines) != 0 {
			t.Errorf("empty line recorded in history: %#v", h.lines)
		}
	})
}

func TestInterpreter_Builtins(t *testing.T) {
	i := New("u1", nil)
	names := i.Builtins()
	if len(names) == 0 {
		t.Fatal("no builtins registered")
	}
	for _, want := range []string{"cd", "ls", "cat", "history", "help", "cpu", "mem", "df"} {
		if !i.IsBuiltin(want) {
			t.Errorf("missing builtin %q", want)
		}
	}
	if i.IsBuiltin("grep") {
		t.Error("grep should not be a builtin")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Get("alice")
	if a == nil {
		t.Fatal("nil interpreter")
	}
	if r.Get("alice") != a {
		t.Error("same user should get the same interpreter")
	}
	if r.Get("bob") == a {
		t.Error("different users should get different interpreters")
	}
	r.Remove("alice")
	if r.Get("alice") == a {
		t.Error("removed interpreter should be rebuilt")
	}
}
