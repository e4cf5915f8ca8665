// Package runner executes external pipeline tools as child processes.
// It captures stdout and stderr, blocks until exit, and translates
// failures into typed errors the scheduler propagates unchanged.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// Command is a fully-materialized external invocation: a program name
// and an ordered argument list. Arguments are passed verbatim to the
// process -- no shell interpretation, no implicit quoting.
type Command struct {
	Program string
	Args    []string
	Dir     string // working directory; empty means inherit
}

// String renders the command the way a user would type it, for logs
// and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Program
	}
	return c.Program + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of one successful invocation.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// CommandError reports a child process that started but exited nonzero.
type CommandError struct {
	Command  Command
	ExitCode int
	Stderr   []byte
}

func (e *CommandError) Error() string {
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("command %q exited with code %d: %s",
			e.Command.String(), e.ExitCode, bytes.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("command %q exited with code %d", e.Command.String(), e.ExitCode)
}

// LaunchError reports a process that could not be started at all
// (binary not found, permission denied). The underlying error is
// preserved and never swallowed.
type LaunchError struct {
	Command Command
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %q: %v", e.Command.String(), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Invoker runs external commands. Stages depend on this interface so
// tests can substitute a fake without spawning processes.
type Invoker interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Exec is the production Invoker backed by os/exec.
type Exec struct {
	pm *ProcessManager
}

// NewExec creates an Exec. The ProcessManager may be nil, in which
// case subprocesses are not tracked for shutdown cleanup.
func NewExec(pm *ProcessManager) *Exec {
	return &Exec{pm: pm}
}

// Run executes the command and blocks until it exits.
// On exit code 0 the captured output is returned. A nonzero exit
// yields *CommandError; an unstartable process yields *LaunchError.
func (x *Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	c := newCommand(ctx, cmd)

	stdoutPipe, err := c.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := c.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := c.Start(); err != nil {
		return Result{}, &LaunchError{Command: cmd, Err: err}
	}

	if x.pm != nil {
		x.pm.Track(c)
		defer x.pm.Untrack(c)
	}

	// CommandContext only signals the direct child on cancellation.
	// Workers the tool forked keep the pipe write ends open, so the
	// drain below would block until they exit on their own. Kill the
	// whole group instead.
	waited := make(chan struct{})
	defer close(waited)
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(c)
		case <-waited:
		}
	}()

	// Drain both pipes concurrently before calling Wait. Waiting first
	// deadlocks once subprocess output exceeds the pipe buffer.
	var wg sync.WaitGroup
	var stdoutBuf, stderrBuf bytes.Buffer

	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := c.Wait()
	res := Result{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, &CommandError{
				Command:  cmd,
				ExitCode: exitErr.ExitCode(),
				Stderr:   res.Stderr,
			}
		}
		return res, fmt.Errorf("waiting for %q: %w", cmd.String(), waitErr)
	}

	return res, nil
}

// newCommand creates an exec.Cmd in its own process group so the whole
// subprocess tree can be terminated together.
func newCommand(ctx context.Context, cmd Command) *exec.Cmd {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir
	c.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	return c
}

// killProcessGroup kills the entire process group associated with the
// command, not just the immediate child.
func killProcessGroup(c *exec.Cmd) error {
	if c.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := syscall.Kill(-c.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing process group: %w", err)
	}
	return nil
}

// ProcessManager tracks running subprocesses so a shutdown signal can
// terminate them all instead of leaving orphans behind.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates an empty ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[int]*exec.Cmd)}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(c *exec.Cmd) {
	if c.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[c.Process.Pid] = c
}

// Untrack removes a subprocess after it has been waited on.
func (pm *ProcessManager) Untrack(c *exec.Cmd) {
	if c.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, c.Process.Pid)
}

// KillAll terminates every tracked subprocess group.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, c := range pm.procs {
		if err := killProcessGroup(c); err != nil {
			errs = append(errs, fmt.Errorf("killing process %d: %w", pid, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors killing processes: %v", errs)
	}
	return nil
}

// Count returns the number of currently tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
