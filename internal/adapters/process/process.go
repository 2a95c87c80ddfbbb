// Package process runs match invocations as operating system processes.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/okian/matchbench/internal/domain/model"
)

// ErrStart is returned when a process cannot be started.
var ErrStart = errors.New("process start failed")

// defaultWaitDelay bounds how long a finished process may hold its output
// pipes open through children it left behind.
const defaultWaitDelay = 2 * time.Second

// Launcher starts processes with os/exec. Each process leads its own
// process group so that Kill reaches everything it started.
type Launcher struct {
	env       []string
	waitDelay time.Duration
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithEnv appends environment variables (KEY=VALUE) to the inherited environment.
func WithEnv(env ...string) Option {
	return func(l *Launcher) {
		l.env = append(l.env, env...)
	}
}

// WithWaitDelay sets how long output pipes stay open after the process
// exits or is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.waitDelay = d
		}
	}
}

// NewLauncher creates a Launcher.
func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{waitDelay: defaultWaitDelay}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch starts inv and returns a handle to it. The process is not tied to
// ctx; callers stop it with Kill.
func (l *Launcher) Launch(ctx context.Context, inv model.Invocation) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(inv.Path, inv.Args...) //nolint:gosec // command lines come from local configuration
	cmd.Dir = inv.Dir
	cmd.WaitDelay = l.waitDelay
	setProcessGroup(cmd)
	if len(l.env) > 0 {
		cmd.Env = append(os.Environ(), l.env...)
	}

	h := &Handle{
		cmd:     cmd,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	cmd.Stdout = &h.stdout
	cmd.Stderr = &h.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStart, inv.Path, err)
	}

	go h.wait()
	return h, nil
}

// Handle is a running process.
type Handle struct {
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	done    chan struct{}
	started time.Time

	mu       sync.Mutex
	exitCode int
}

func (h *Handle) wait() {
	// Exit status is not inspected; the transcript decides the outcome.
	_ = h.cmd.Wait()

	h.mu.Lock()
	h.exitCode = h.cmd.ProcessState.ExitCode()
	h.mu.Unlock()

	close(h.done)
}

// Poll waits at most wait for the process to exit. It returns false while
// the process is still running. A non-positive wait never blocks.
func (h *Handle) Poll(wait time.Duration) (model.Output, bool) {
	if wait <= 0 {
		select {
		case <-h.done:
			return h.output(), true
		default:
			return model.Output{}, false
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-h.done:
		return h.output(), true
	case <-timer.C:
		return model.Output{}, false
	}
}

func (h *Handle) output() model.Output {
	h.mu.Lock()
	defer h.mu.Unlock()
	return model.Output{
		Stdout:   h.stdout.Bytes(),
		Stderr:   h.stderr.Bytes(),
		ExitCode: h.exitCode,
	}
}

// Kill stops the process and every process it started. Killing a process
// group that has already exited is a no-op.
func (h *Handle) Kill() error {
	if err := killGroup(h.cmd.Process); err != nil {
		return fmt.Errorf("kill pid %d: %w", h.cmd.Process.Pid, err)
	}
	return nil
}

// Started returns when the process was launched.
func (h *Handle) Started() time.Time { return h.started }

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }
