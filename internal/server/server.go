// Package server launches the built artifact and guarantees its teardown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/metalagman/anvil/internal/logging"
)

const (
	defaultKillWait = 5 * time.Second
	minReadyTimeout = time.Second
)

// ErrExited is returned by readiness checks when the server process is gone.
var ErrExited = errors.New("server process exited")

var execCommand = func(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// Launcher starts server processes from a fixed command line.
type Launcher struct {
	cmd      []string
	output   io.Writer
	killWait time.Duration
}

// NewLauncher creates a launcher for cmd. Process output goes to output, or is discarded when nil.
func NewLauncher(cmd []string, output io.Writer) (*Launcher, error) {
	if len(cmd) == 0 {
		return nil, errors.New("server command is empty")
	}
	if output == nil {
		output = io.Discard
	}
	return &Launcher{cmd: cmd, output: output, killWait: defaultKillWait}, nil
}

// Handle is a running server process. Terminate must be called on every exit path.
type Handle struct {
	cmd      *exec.Cmd
	done     chan struct{}
	waitErr  error
	once     sync.Once
	termErr  error
	killWait time.Duration
}

// Start spawns the server in dir within its own process group.
func (l *Launcher) Start(ctx context.Context, dir string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := execCommand(l.cmd[0], l.cmd[1:]...)
	cmd.Dir = dir
	cmd.Stdout = l.output
	cmd.Stderr = l.output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server %s: %w", l.cmd[0], err)
	}

	h := &Handle{cmd: cmd, done: make(chan struct{}), killWait: l.killWait}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	logger := logging.Component("server")
	logger.Info().Int("pid", cmd.Process.Pid).Str("dir", dir).Msg("server started")
	return h, nil
}

// PID returns the process id of the server.
func (h *Handle) PID() int {
	return h.cmd.Process.Pid
}

// Exited is closed once the server process has been reaped.
func (h *Handle) Exited() <-chan struct{} {
	return h.done
}

// Terminate force-kills the server process group and waits a bounded time for it to be reaped.
// Only the first call has an effect; later calls return the first result.
func (h *Handle) Terminate() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		logger := logging.Component("server")
		pid := h.cmd.Process.Pid
		if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			logger.Warn().Err(err).Int("pid", pid).Msg("kill process group failed, killing leader")
			_ = h.cmd.Process.Kill()
		}

		timer := time.NewTimer(h.killWait)
		defer timer.Stop()
		select {
		case <-h.done:
			logger.Info().Int("pid", pid).AnErr("exit", h.waitErr).Msg("server terminated")
		case <-timer.C:
			h.termErr = fmt.Errorf("server pid %d not reaped after %s", pid, h.killWait)
		}
	})
	return h.termErr
}

// WaitReady polls baseURL until the server answers, the process exits, or deadline passes.
func (h *Handle) WaitReady(ctx context.Context, baseURL string, interval, deadline time.Duration) error {
	return waitReady(ctx, baseURL, interval, deadline, h.done)
}

func waitReady(ctx context.Context, baseURL string, interval, deadline time.Duration, exited <-chan struct{}) error {
	client := &http.Client{Timeout: max(interval, minReadyTimeout)}
	attempt := 0

	op := func() (struct{}, error) {
		attempt++
		select {
		case <-exited:
			return struct{}{}, backoff.Permanent(ErrExited)
		default:
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(deadline),
	)
	if err != nil {
		return fmt.Errorf("server at %s not ready after %d attempts: %w", baseURL, attempt, err)
	}
	logger := logging.Component("server")
	logger.Debug().Str("url", baseURL).Int("attempts", attempt).Msg("server ready")
	return nil
}
