package shell

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Complete returns completion candidates for a partial input line.
// When the first word is being typed, builtin names compete with paths;
// afterwards only filesystem paths are offered. Directories gain a
// trailing separator and a leading ~ is preserved in the display form.
func (i *Interpreter) Complete(line string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	completingFirstWord := !strings.ContainsAny(strings.TrimLeft(line, " \t"), " \t")
	word := line
	if idx := strings.LastIndexAny(line, " \t"); idx >= 0 {
		word = line[idx+1:]
	}

	var candidates []string
	if completingFirstWord {
		for _, name := range i.Builtins() {
			if strings.HasPrefix(name, word) {
				candidates = append(candidates, name)
			}
		}
	}
	candidates = append(candidates, i.completePath(word)...)

	sort.Strings(candidates)
	return candidates
}

// completePath lists filesystem entries matching the partial path.
// Callers must hold i.mu.
func (i *Interpreter) completePath(text string) []string {
	expanded := expandHome(text)
	dir := filepath.Dir(expanded)
	base := filepath.Base(expanded)
	if expanded == "" || strings.HasSuffix(expanded, string(os.PathSeparator)) {
		dir = expanded
		base = ""
	}

	lookup := dir
	if lookup == "" {
		lookup = "."
	}
	if !filepath.IsAbs(lookup) {
		lookup = filepath.Join(i.cwd, lookup)
	}

	entries, err := os.ReadDir(lookup)
	if err != nil {
		return nil
	}

	home, _ := os.UserHomeDir()

	var out []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), base) {
			continue
		}
		full := filepath.Join(dir, e.Name())
		display := full
		if strings.HasPrefix(text, "~") && home != "" && strings.HasPrefix(full, home) {
			display = "~" + full[len(home):]
		}
		if e.IsDir() {
			display += string(os.PathSeparator)
		}
		out = append(out, display)
	}
	return out
}
