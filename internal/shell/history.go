package shell

import (
	"context"
	"strings"
)

func (i *Interpreter) cmdHistory(ctx context.Context, args []string) string {
	if i.history == nil {
		return ""
	}
	entries, err := i.history.List(ctx, i.userID)
	if err != nil {
		return "history: " + err.Error()
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line)
	}
	return strings.Join(lines, "\n")
}

func (i *Interpreter) cmdHelp(ctx context.Context, args []string) string {
	var b strings.Builder
	b.WriteString("Built-in commands:\n")
	b.WriteString("  " + strings.Join(i.Builtins(), ", ") + "\n\n")
	b.WriteString("External commands are forwarded to the system.\n")
	b.WriteString("Sentence-like input is interpreted as a command when possible.\n")
	return b.String()
}
