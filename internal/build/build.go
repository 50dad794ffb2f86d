// Package build runs the external build tool against a generated project.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/metalagman/anvil/internal/logging"
)

const maxCapture = 1024 * 1024

var execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

// Result is the outcome of a build invocation that managed to start.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner invokes the configured build and dependency update commands.
type Runner struct {
	cmd       []string
	updateCmd []string
	output    io.Writer
}

// NewRunner creates a runner. updateCmd may be empty when the toolchain has no update step.
func NewRunner(cmd, updateCmd []string) (*Runner, error) {
	if len(cmd) == 0 {
		return nil, errors.New("build command is empty")
	}
	return &Runner{cmd: cmd, updateCmd: updateCmd}, nil
}

// WithOutput mirrors the build tool's output to w in addition to capturing it.
func (r *Runner) WithOutput(w io.Writer) *Runner {
	r.output = w
	return r
}

// Run builds the project in dir. A non-zero exit is reported through Result; the returned error
// is reserved for failures to launch the build tool at all.
func (r *Runner) Run(ctx context.Context, dir string) (Result, error) {
	logger := logging.Component("build")
	logger.Debug().Str("dir", dir).Strs("cmd", r.cmd).Msg("running build")

	stdout := &limitedBuffer{max: maxCapture}
	stderr := &limitedBuffer{max: maxCapture}
	code, err := r.exec(ctx, dir, r.cmd, stdout, stderr)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Success:  code == 0,
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	logger.Debug().Int("exit_code", code).Bool("success", res.Success).Msg("build finished")
	return res, nil
}

// Update runs the dependency update command. Any failure, including a non-zero exit, is an error.
func (r *Runner) Update(ctx context.Context, dir string) error {
	if len(r.updateCmd) == 0 {
		return nil
	}
	logger := logging.Component("build")
	logger.Debug().Str("dir", dir).Strs("cmd", r.updateCmd).Msg("updating dependencies")

	stderr := &limitedBuffer{max: maxCapture}
	code, err := r.exec(ctx, dir, r.updateCmd, io.Discard, stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s exited with code %d", r.updateCmd[0], code)
		}
		return fmt.Errorf("%s exited with code %d: %s", r.updateCmd[0], code, msg)
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, dir string, argv []string, stdout, stderr io.Writer) (int, error) {
	cmd := execCommand(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if r.output != nil {
		// os/exec copies stdout and stderr on separate goroutines.
		out := &lockedWriter{w: r.output}
		stdout = io.MultiWriter(stdout, out)
		stderr = io.MultiWriter(stderr, out)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, fmt.Errorf("run %s: %w", argv[0], ctxErr)
	}
	return 0, fmt.Errorf("run %s: %w", argv[0], err)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// limitedBuffer keeps the tail of the written data up to max bytes.
type limitedBuffer struct {
	buf []byte
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		return len(p), nil
	}
	if over := len(b.buf) + len(p) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
