// Package shell implements the one-shot command interpreter behind the
// exec endpoint: builtin file and monitoring commands, persistent history,
// completion and a heuristic natural-language translator. Unknown commands
// fall through to the system.
package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/web-terminal/backend/internal/model"
)

// HistoryStore persists executed command lines per user.
type HistoryStore interface {
	Append(ctx context.Context, userID, line string) error
	List(ctx context.Context, userID string) ([]*model.HistoryEntry, error)
}

// builtin is a single interpreter command.
type builtin func(ctx context.Context, args []string) string

// Interpreter executes command lines for one user. It keeps its own
// working directory, so cd affects later commands of the same user but
// never the server process.
type Interpreter struct {
	mu       sync.Mutex
	userID   string
	cwd      string
	history  HistoryStore
	builtins map[string]builtin
}

// New creates an Interpreter rooted at the server's current directory.
// history may be nil, in which case the history builtin reports nothing.
func New(userID string, history HistoryStore) *Interpreter {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	i := &Interpreter{
		userID:  userID,
		cwd:     cwd,
		history: history,
	}
	i.builtins = map[string]builtin{
		"pwd":     i.cmdPwd,
		"cd":      i.cmdCd,
		"ls":      i.cmdLs,
		"mkdir":   i.cmdMkdir,
		"rmdir":   i.cmdRmdir,
		"rm":      i.cmdRm,
		"touch":   i.cmdTouch,
		"cat":     i.cmdCat,
		"head":    i.cmdHead,
		"tail":    i.cmdTail,
		"mv":      i.cmdMv,
		"cp":      i.cmdCp,
		"stat":    i.cmdStat,
		"echo":    i.cmdEcho,
		"cpu":     i.cmdCPU,
		"mem":     i.cmdMem,
		"ps":      i.cmdPs,
		"top":     i.cmdTop,
		"df":      i.cmdDf,
		"history": i.cmdHistory,
		"help":    i.cmdHelp,
	}
	return i
}

// Cwd returns the interpreter's current working directory.
func (i *Interpreter) Cwd() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cwd
}

// Builtins returns the sorted builtin command names.
func (i *Interpreter) Builtins() []string {
	names := make([]string, 0, len(i.builtins))
	for name := range i.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuiltin reports whether name is a builtin command.
func (i *Interpreter) IsBuiltin(name string) bool {
	_, ok := i.builtins[name]
	return ok
}

// Result is the outcome of executing one line.
type Result struct {
	// Output is what the terminal would have printed.
	Output string `json:"output"`

	// Interpreted is set when natural-language translation rewrote the
	// input; it holds the command that actually ran.
	Interpreted string `json:"interpreted,omitempty"`
}

// Execute runs one command line: natural-language translation when the
// input is sentence-like, builtin dispatch, then external fallback. The
// line is appended to the user's history.
func (i *Interpreter) Execute(ctx context.Context, line string) Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return Result{}
	}

	if i.history != nil {
		// History is best effort; the command still runs.
		_ = i.history.Append(ctx, i.userID, line)
	}

	var interpreted string
	if IsNaturalLanguage(line) {
		if translated, ok := Translate(line); ok {
			interpreted = translated
			line = translated
		}
	}

	tokens, err := Tokenize(line)
	if err != nil {
		return Result{Output: fmt.Sprintf("parse error: %v", err), Interpreted: interpreted}
	}
	if len(tokens) == 0 {
		return Result{Interpreted: interpreted}
	}

	cmd, args := tokens[0], tokens[1:]

	if fn, ok := i.builtins[cmd]; ok {
		i.mu.Lock()
		defer i.mu.Unlock()
		return Result{Output: fn(ctx, args), Interpreted: interpreted}
	}

	if cmd == "exit" || cmd == "quit" {
		return Result{Output: "Session ended.", Interpreted: interpreted}
	}

	return Result{Output: i.runExternal(ctx, cmd, args), Interpreted: interpreted}
}

// runExternal executes an unknown command on the system, capturing both
// stdout and stderr.
func (i *Interpreter) runExternal(ctx context.Context, cmd string, args []string) string {
	i.mu.Lock()
	cwd := i.cwd
	i.mu.Unlock()

	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = cwd
	out, err := c.CombinedOutput()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return fmt.Sprintf("%s: command not found", cmd)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Non-zero exit: the captured output is the answer.
			return string(out)
		}
		return fmt.Sprintf("error running external command: %v", err)
	}
	return string(out)
}

// resolve expands ~ and resolves relative paths against the interpreter cwd.
// Callers must hold i.mu.
func (i *Interpreter) resolve(path string) string {
	if path == "" {
		return i.cwd
	}
	path = expandHome(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(i.cwd, path)
	}
	return filepath.Clean(path)
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	if path[1] == '/' {
		return home + path[1:]
	}
	return path
}

// humanSize renders n as a short human-readable size.
func humanSize(n int64) string {
	f := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if f < 1024.0 && f > -1024.0 {
			return fmt.Sprintf("%.1f%s", f, unit)
		}
		f /= 1024.0
	}
	return fmt.Sprintf("%.1fPB", f)
}
