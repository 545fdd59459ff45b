// Package pty spawns session processes under a pseudo-terminal and
// manages their lifecycle.
package pty

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// StartOptions contains options for starting a PTY process.
type StartOptions struct {
	// Command is the binary to execute.
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// Env is the process environment. If nil, the current process
	// environment is inherited.
	Env []string

	// Dir is the working directory. If empty, the current directory is used.
	Dir string

	// InitialRows and InitialCols set the starting window size.
	InitialRows uint16
	InitialCols uint16
}

// Process is a running command attached to a PTY master.
type Process struct {
	ptmx *os.File
	cmd  *exec.Cmd
	pid  int
}

// Start launches the command under a new pseudo-terminal.
func Start(opts StartOptions) (*Process, error) {
	rows, cols := opts.InitialRows, opts.InitialCols
	if rows == 0 {
		rows = 24
	}
	if cols == 0 {
		cols = 80
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	return &Process{
		ptmx: ptmx,
		cmd:  cmd,
		pid:  cmd.Process.Pid,
	}, nil
}

// Read reads PTY output.
func (p *Process) Read(b []byte) (int, error) {
	return p.ptmx.Read(b)
}

// Write writes to the PTY input.
func (p *Process) Write(b []byte) (int, error) {
	return p.ptmx.Write(b)
}

// Resize changes the PTY window size.
func (p *Process) Resize(rows, cols uint16) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Wait waits for the process to exit and returns its exit code.
// Returns -1 if the process was killed by a signal.
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

// Kill terminates the process.
func (p *Process) Kill() error {
	if p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// Close closes the PTY master.
func (p *Process) Close() error {
	return p.ptmx.Close()
}

// PID returns the process ID.
func (p *Process) PID() int {
	return p.pid
}
