package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

func (i *Interpreter) cmdPwd(ctx context.Context, args []string) string {
	return i.cwd
}

func (i *Interpreter) cmdCd(ctx context.Context, args []string) string {
	target := "~"
	if len(args) > 0 {
		target = args[0]
	}
	resolved := i.resolve(target)

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("cd: no such file or directory: %s", target)
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("cd: permission denied: %s", target)
		}
		return fmt.Sprintf("cd: %v", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("cd: not a directory: %s", target)
	}

	i.cwd = resolved
	return ""
}

func (i *Interpreter) cmdLs(ctx context.Context, args []string) string {
	long := false
	showAll := false
	path := "."
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "l") {
				long = true
			}
			if strings.Contains(a, "a") {
				showAll = true
			}
		} else {
			path = a
		}
	}
	resolved := i.resolve(path)

	info, err := os.Stat(resolved)
	if err != nil {
		// Error messages quote the operand as typed, not the resolved path.
		if os.IsNotExist(err) {
			return fmt.Sprintf("ls: cannot access '%s': No such file or directory", path)
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("ls: cannot open directory '%s': Permission denied", path)
		}
		return fmt.Sprintf("ls error: %v", err)
	}
	if !info.IsDir() {
		return filepath.Base(resolved)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("ls: cannot open directory '%s': Permission denied", path)
		}
		return fmt.Sprintf("ls error: %v", err)
	}

	var names []string
	for _, e := range entries {
		if !showAll && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if !long {
		return strings.Join(names, "  ")
	}

	var lines []string
	for _, name := range names {
		st, err := os.Stat(filepath.Join(resolved, name))
		if err != nil {
			continue
		}
		perms := fmt.Sprintf("%03o", st.Mode().Perm())
		mtime := st.ModTime().Format("2006-01-02 15:04")
		lines = append(lines, fmt.Sprintf("%s\t%7s\t%s\t%s", perms, humanSize(st.Size()), mtime, name))
	}
	return strings.Join(lines, "\n")
}

func (i *Interpreter) cmdMkdir(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "mkdir: missing operand"
	}
	for _, d := range args {
		target := i.resolve(d)
		if _, err := os.Stat(target); err == nil {
			return fmt.Sprintf("mkdir: cannot create directory '%s': File exists", d)
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			if os.IsPermission(err) {
				return fmt.Sprintf("mkdir: cannot create directory '%s': Permission denied", d)
			}
			return fmt.Sprintf("mkdir: %v", err)
		}
	}
	return ""
}

func (i *Interpreter) cmdRmdir(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "rmdir: missing operand"
	}
	for _, d := range args {
		target := i.resolve(d)
		if err := os.Remove(target); err != nil {
			if os.IsNotExist(err) {
				return fmt.Sprintf("rmdir: failed to remove '%s': No such file or directory", d)
			}
			return fmt.Sprintf("rmdir: failed to remove '%s': %v", d, err)
		}
	}
	return ""
}

func (i *Interpreter) cmdRm(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "rm: missing operand"
	}
	recursive := false
	force := false
	var targets []string
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			if strings.Contains(a, "r") {
				recursive = true
			}
			if strings.Contains(a, "f") {
				force = true
			}
		} else {
			targets = append(targets, a)
		}
	}

	for _, t := range targets {
		target := i.resolve(t)
		info, err := os.Lstat(target)
		if err != nil {
			if os.IsNotExist(err) && !force {
				return fmt.Sprintf("rm: cannot remove '%s': No such file or directory", t)
			}
			continue
		}

		if info.IsDir() {
			if !recursive {
				return fmt.Sprintf("rm: cannot remove '%s': Is a directory (use -r)", t)
			}
			if err := os.RemoveAll(target); err != nil {
				return fmt.Sprintf("rm: failed to remove directory '%s': %v", t, err)
			}
			continue
		}

		if err := os.Remove(target); err != nil {
			if os.IsPermission(err) {
				return fmt.Sprintf("rm: cannot remove '%s': Permission denied", t)
			}
			return fmt.Sprintf("rm: %v", err)
		}
	}
	return ""
}

func (i *Interpreter) cmdTouch(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "touch: missing file operand"
	}
	for _, f := range args {
		target := i.resolve(f)
		file, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Sprintf("touch: %v", err)
		}
		file.Close()
		now := time.Now()
		if err := os.Chtimes(target, now, now); err != nil {
			return fmt.Sprintf("touch: %v", err)
		}
	}
	return ""
}

func (i *Interpreter) cmdCat(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "cat: missing file operand"
	}
	var out strings.Builder
	for _, f := range args {
		target := i.resolve(f)
		info, err := os.Stat(target)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Sprintf("cat: %s: No such file or directory", f)
			}
			if os.IsPermission(err) {
				return fmt.Sprintf("cat: %s: Permission denied", f)
			}
			return fmt.Sprintf("cat: %v", err)
		}
		if info.IsDir() {
			return fmt.Sprintf("cat: %s: Is a directory", f)
		}
		data, err := os.ReadFile(target)
		if err != nil {
			return fmt.Sprintf("cat: %v", err)
		}
		out.Write(data)
	}
	return out.String()
}

var headTailFlag = regexp.MustCompile(`^-n(\d+)$`)

// parseLineCount handles the -nN flag shared by head and tail.
func parseLineCount(args []string) (int, []string) {
	lines := 10
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		if m := headTailFlag.FindStringSubmatch(args[0]); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				lines = n
			}
		}
		return lines, args[1:]
	}
	return lines, args
}

func (i *Interpreter) cmdHead(ctx context.Context, args []string) string {
	lines, files := parseLineCount(args)
	if len(files) == 0 {
		return "head: missing file operand"
	}

	var out []string
	for _, f := range files {
		file, err := os.Open(i.resolve(f))
		if err != nil {
			return fmt.Sprintf("head: %v", err)
		}
		scanner := bufio.NewScanner(file)
		for n := 0; n < lines && scanner.Scan(); n++ {
			out = append(out, scanner.Text())
		}
		file.Close()
	}
	return strings.Join(out, "\n")
}

func (i *Interpreter) cmdTail(ctx context.Context, args []string) string {
	lines, files := parseLineCount(args)
	if len(files) == 0 {
		return "tail: missing file operand"
	}

	var out []string
	for _, f := range files {
		file, err := os.Open(i.resolve(f))
		if err != nil {
			return fmt.Sprintf("tail: %v", err)
		}
		var all []string
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			all = append(all, scanner.Text())
		}
		file.Close()
		if len(all) > lines {
			all = all[len(all)-lines:]
		}
		out = append(out, all...)
	}
	return strings.Join(out, "\n")
}

func (i *Interpreter) cmdMv(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "mv: missing file operand"
	}
	srcs, dest := args[:len(args)-1], i.resolve(args[len(args)-1])

	destInfo, destErr := os.Stat(dest)
	destIsDir := destErr == nil && destInfo.IsDir()
	if len(srcs) > 1 && !destIsDir {
		return "mv: when moving multiple files, destination must be a directory"
	}

	for _, s := range srcs {
		src := i.resolve(s)
		target := dest
		if destIsDir {
			target = filepath.Join(dest, filepath.Base(src))
		}
		if err := os.Rename(src, target); err != nil {
			return fmt.Sprintf("mv: %v", err)
		}
	}
	return ""
}

func (i *Interpreter) cmdCp(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "cp: missing file operand"
	}
	srcs, dest := args[:len(args)-1], i.resolve(args[len(args)-1])

	destInfo, destErr := os.Stat(dest)
	destIsDir := destErr == nil && destInfo.IsDir()
	if len(srcs) > 1 && !destIsDir {
		return "cp: when copying multiple files, destination must be a directory"
	}

	for _, s := range srcs {
		src := i.resolve(s)
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Sprintf("cp: %v", err)
		}

		target := dest
		if destIsDir {
			target = filepath.Join(dest, filepath.Base(src))
		}

		if info.IsDir() {
			if err := copyTree(src, target); err != nil {
				return fmt.Sprintf("cp: %v", err)
			}
		} else if err := copyFile(src, target, info.Mode()); err != nil {
			return fmt.Sprintf("cp: %v", err)
		}
	}
	return ""
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func (i *Interpreter) cmdStat(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "stat: missing operand"
	}
	var out []string
	for _, f := range args {
		target := i.resolve(f)
		st, err := os.Stat(target)
		if err != nil {
			return fmt.Sprintf("stat: %v", err)
		}
		out = append(out,
			fmt.Sprintf("  File: %s", target),
			fmt.Sprintf("  Size: %d", st.Size()),
			fmt.Sprintf("  Mode: %v", st.Mode()),
			fmt.Sprintf("Modify: %s", st.ModTime().Format("2006-01-02 15:04:05")),
		)
	}
	return strings.Join(out, "\n")
}

func (i *Interpreter) cmdEcho(ctx context.Context, args []string) string {
	return strings.Join(args, " ")
}
