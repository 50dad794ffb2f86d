// Package agent drives generated code through generation, build and live validation.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/anvil/internal/build"
	"github.com/metalagman/anvil/internal/codegen"
	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/model"
	"github.com/metalagman/anvil/internal/server"
	"github.com/metalagman/anvil/internal/ui"
)

var (
	// ErrTooManyBugs is returned when the build keeps failing past the retry limit.
	ErrTooManyBugs = errors.New("too many build failures")
	// ErrDependencyUpdate is returned when updating dependencies after a failed build fails.
	ErrDependencyUpdate = errors.New("dependency update failed")
	// ErrSafetyDeclined is returned when the operator refuses to run generated code.
	ErrSafetyDeclined = errors.New("execution of generated code declined")
)

// ValidationIssue describes an endpoint that did not answer 200 during live validation.
// Issues are reported, never returned as the loop's error.
type ValidationIssue struct {
	Route      string
	StatusCode int
	Err        error
}

func (i ValidationIssue) Error() string {
	if i.Err != nil {
		return fmt.Sprintf("%s: %v", i.Route, i.Err)
	}
	return fmt.Sprintf("%s: status %d", i.Route, i.StatusCode)
}

func (i ValidationIssue) Unwrap() error {
	return i.Err
}

// Generator is the code generation oracle.
type Generator interface {
	Generate(ctx context.Context, mode codegen.Mode, input string) (string, error)
}

// Builder runs the project's build and dependency update commands.
type Builder interface {
	Run(ctx context.Context, dir string) (build.Result, error)
	Update(ctx context.Context, dir string) error
}

// Process is a running server.
type Process interface {
	WaitReady(ctx context.Context, baseURL string, interval, deadline time.Duration) error
	Terminate() error
}

// Launcher starts the built server.
type Launcher interface {
	Start(ctx context.Context, dir string) (Process, error)
}

// Prober checks a single endpoint.
type Prober interface {
	Check(ctx context.Context, baseURL, route string) (int, error)
}

// Workspace persists generated artifacts.
type Workspace interface {
	ProjectDir() string
	ReadTemplate() (string, error)
	WriteSource(source string) error
	ReadSource() (string, error)
	WriteSchema(routes []model.RouteDescriptor) error
}

// Confirmer gates execution of generated code.
type Confirmer interface {
	Confirm(ctx context.Context, source string) (bool, error)
}

// Recorder stores the run journal.
type Recorder interface {
	RecordTransition(ctx context.Context, runID, from, to string, bugCount int) error
	RecordEvent(ctx context.Context, runID string, ev db.Event) error
	RecordProbe(ctx context.Context, runID string, p db.ProbeRecord) error
}

// Notifier shows agent messages to the operator.
type Notifier interface {
	Print(cat ui.Category, position, msg string)
}

// ServerLauncher adapts a server.Launcher to Launcher.
func ServerLauncher(l *server.Launcher) Launcher {
	return serverLauncher{l: l}
}

type serverLauncher struct {
	l *server.Launcher
}

func (s serverLauncher) Start(ctx context.Context, dir string) (Process, error) {
	h, err := s.l.Start(ctx, dir)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Report summarizes a completed run.
type Report struct {
	RunID         string
	Routes        []model.RouteDescriptor
	Probed        []model.RouteDescriptor
	Issues        []ValidationIssue
	BuildAttempts int
}

// Passed reports whether every probed route answered 200.
func (r Report) Passed() bool {
	return len(r.Issues) == 0
}
