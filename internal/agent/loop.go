package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/anvil/internal/build"
	"github.com/metalagman/anvil/internal/codegen"
	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/logging"
	"github.com/metalagman/anvil/internal/model"
	"github.com/metalagman/anvil/internal/progress"
	"github.com/metalagman/anvil/internal/ui"
	"github.com/rs/zerolog"
)

const position = "Backend Developer"

// Deps are the collaborators of a Loop. Recorder, Notifier and Indicator are optional.
type Deps struct {
	Generator Generator
	Builder   Builder
	Launcher  Launcher
	Prober    Prober
	Workspace Workspace
	Confirmer Confirmer
	Recorder  Recorder
	Notifier  Notifier
	Indicator *progress.Indicator
}

// DefaultRetryLimit is the number of consecutive build failures retried when Options leaves it unset.
const DefaultRetryLimit = 2

// Options tune retry and validation behaviour. A nil RetryLimit means DefaultRetryLimit;
// zero fails the run on the first build failure.
type Options struct {
	RunID        string
	RetryLimit   *int
	BaseURL      string
	Warmup       time.Duration
	PollInterval time.Duration
}

// Loop is the build-validate state machine. A Loop owns its project record and runs once.
type Loop struct {
	deps       Deps
	opts       Options
	retryLimit int
	logger     zerolog.Logger

	record model.ProjectRecord
	bugs   model.BugRecord
	state  model.AgentState
	report Report
}

// New creates a loop for record in the Discovering state.
func New(record model.ProjectRecord, deps Deps, opts Options) (*Loop, error) {
	switch {
	case deps.Generator == nil:
		return nil, errors.New("agent: generator is required")
	case deps.Builder == nil:
		return nil, errors.New("agent: builder is required")
	case deps.Launcher == nil:
		return nil, errors.New("agent: launcher is required")
	case deps.Prober == nil:
		return nil, errors.New("agent: prober is required")
	case deps.Workspace == nil:
		return nil, errors.New("agent: workspace is required")
	case deps.Confirmer == nil:
		return nil, errors.New("agent: confirmer is required")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	retryLimit := DefaultRetryLimit
	if opts.RetryLimit != nil {
		retryLimit = max(*opts.RetryLimit, 0)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}
	if opts.Warmup <= 0 {
		opts.Warmup = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}

	return &Loop{
		deps:       deps,
		opts:       opts,
		retryLimit: retryLimit,
		logger:     logging.Component("agent").With().Str("run_id", opts.RunID).Logger(),
		record:     record,
		state:      model.Discovering,
		report:     Report{RunID: opts.RunID},
	}, nil
}

// RunID identifies this loop in logs and run history.
func (l *Loop) RunID() string { return l.opts.RunID }

// State returns the current state.
func (l *Loop) State() model.AgentState { return l.state }

// Record returns a copy of the project record.
func (l *Loop) Record() model.ProjectRecord { return l.record }

// Bugs returns a copy of the bug record.
func (l *Loop) Bugs() model.BugRecord { return l.bugs }

// Run drives the machine until Finished or a fatal error. The report is filled as far as the
// run got, also when an error is returned.
func (l *Loop) Run(ctx context.Context) (Report, error) {
	for l.state != model.Finished {
		from := l.state
		var (
			next model.AgentState
			err  error
		)
		switch l.state {
		case model.Discovering:
			next, err = l.discover(ctx)
		case model.Refining:
			next, err = l.refine(ctx)
		case model.Validating:
			next, err = l.validate(ctx)
		default:
			err = fmt.Errorf("unexpected state %s", l.state)
		}
		if err != nil {
			l.logger.Error().Err(err).Str("state", from.String()).Msg("run failed")
			return l.report, err
		}
		l.state = next
		l.logger.Info().Str("from", from.String()).Str("to", next.String()).Int("bug_count", l.bugs.Count).Msg("transition")
		l.recordTransition(ctx, from, next)
	}
	return l.report, nil
}

func (l *Loop) discover(ctx context.Context) (model.AgentState, error) {
	l.notify(ui.AICall, "Writing backend code from template...")
	template, err := l.deps.Workspace.ReadTemplate()
	if err != nil {
		return l.state, err
	}
	if err := l.generateSource(ctx, codegen.ModeInitial, initialInput(l.record, template), "Writing backend code"); err != nil {
		return l.state, err
	}
	return model.Refining, nil
}

func (l *Loop) refine(ctx context.Context) (model.AgentState, error) {
	if l.bugs.Count == 0 {
		l.notify(ui.AICall, "Improving backend code...")
		if err := l.generateSource(ctx, codegen.ModeImprove, improveInput(l.record), "Improving backend code"); err != nil {
			return l.state, err
		}
		return model.Validating, nil
	}

	l.notify(ui.AICall, "Fixing backend code bugs...")
	lastErr := ""
	if l.bugs.LastError != nil {
		lastErr = *l.bugs.LastError
	}
	if err := l.generateSource(ctx, codegen.ModeFix, fixInput(l.record.Source(), lastErr), "Fixing backend code"); err != nil {
		return l.state, err
	}
	return model.Validating, nil
}

func (l *Loop) validate(ctx context.Context) (model.AgentState, error) {
	ok, err := l.deps.Confirmer.Confirm(ctx, l.record.Source())
	if err != nil {
		return l.state, fmt.Errorf("confirm execution: %w", err)
	}
	if !ok {
		return l.state, ErrSafetyDeclined
	}

	next, built, err := l.build(ctx)
	if err != nil || !built {
		return next, err
	}

	routes, err := l.extractSchema(ctx)
	if err != nil {
		return l.state, err
	}
	probeable := model.FilterProbeable(routes)
	l.report.Probed = probeable
	l.logger.Info().Int("routes", len(routes)).Int("probeable", len(probeable)).Msg("endpoint schema extracted")

	if err := l.probeLive(ctx, probeable); err != nil {
		return l.state, err
	}
	return model.Finished, nil
}

// build returns built=false with the next state when the loop has to go back to Refining.
func (l *Loop) build(ctx context.Context) (model.AgentState, bool, error) {
	dir := l.deps.Workspace.ProjectDir()
	l.notify(ui.UnitTest, "Building backend code...")
	l.report.BuildAttempts++

	res, err := progress.Run(ctx, l.deps.Indicator, "Building project", func(ctx context.Context) (build.Result, error) {
		return l.deps.Builder.Run(ctx, dir)
	})
	if err != nil {
		return l.state, false, fmt.Errorf("build: %w", err)
	}
	if res.Success {
		l.bugs.Reset()
		l.notify(ui.UnitTest, "Build successful...")
		l.event(ctx, db.Event{Type: "build_succeeded", Message: "build succeeded", Data: map[string]any{"attempt": l.report.BuildAttempts}})
		return l.state, true, nil
	}

	l.bugs.Fail(res.Stderr)
	l.logger.Warn().Int("attempt", l.report.BuildAttempts).Int("exit_code", res.ExitCode).Int("bug_count", l.bugs.Count).Msg("build failed")
	l.notify(ui.Issue, "Build failed, updating dependencies and retrying...")
	l.event(ctx, db.Event{
		Type:    "build_failed",
		Message: firstLine(res.Stderr),
		Data:    map[string]any{"attempt": l.report.BuildAttempts, "exit_code": res.ExitCode, "bug_count": l.bugs.Count},
	})

	if err := l.deps.Builder.Update(ctx, dir); err != nil {
		return l.state, false, fmt.Errorf("%w: %w", ErrDependencyUpdate, err)
	}
	if l.bugs.Exceeded(l.retryLimit) {
		return l.state, false, fmt.Errorf("%w: %d consecutive failures, last: %s", ErrTooManyBugs, l.bugs.Count, firstLine(res.Stderr))
	}
	return model.Refining, false, nil
}

func (l *Loop) extractSchema(ctx context.Context) ([]model.RouteDescriptor, error) {
	l.notify(ui.UnitTest, "Extracting API endpoint schema...")
	source, err := l.deps.Workspace.ReadSource()
	if err != nil {
		return nil, err
	}
	text, err := l.generate(ctx, codegen.ModeExtractSchema, schemaInput(source), "Extracting endpoints")
	if err != nil {
		return nil, err
	}
	routes, err := model.DecodeRoutes([]byte(codegen.StripFences(text)))
	if err != nil {
		return nil, err
	}
	l.record.EndpointSchema = routes
	l.report.Routes = routes
	if err := l.deps.Workspace.WriteSchema(routes); err != nil {
		return nil, err
	}
	return routes, nil
}

func (l *Loop) probeLive(ctx context.Context, routes []model.RouteDescriptor) error {
	l.notify(ui.UnitTest, "Starting web server...")
	proc, err := l.deps.Launcher.Start(ctx, l.deps.Workspace.ProjectDir())
	if err != nil {
		return fmt.Errorf("launch server: %w", err)
	}
	defer func() {
		if err := proc.Terminate(); err != nil {
			l.logger.Warn().Err(err).Msg("terminate server")
		}
	}()

	l.notify(ui.UnitTest, "Launching tests on server...")
	err = progress.Do(ctx, l.deps.Indicator, "Waiting for server", func(ctx context.Context) error {
		return proc.WaitReady(ctx, l.opts.BaseURL, l.opts.PollInterval, l.opts.Warmup)
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("wait for server: %w", ctxErr)
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("server not ready, probing anyway")
	}

	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("validate endpoints: %w", err)
		}
		l.notify(ui.UnitTest, "Testing endpoint "+route.Path)
		code, err := l.deps.Prober.Check(ctx, l.opts.BaseURL, route.Path)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("validate endpoint %s: %w", route.Path, ctxErr)
		}
		l.recordProbe(ctx, route.Path, code, err)

		switch {
		case err != nil:
			l.issue(ValidationIssue{Route: route.Path, Err: err})
		case code != http.StatusOK:
			l.issue(ValidationIssue{Route: route.Path, StatusCode: code})
		default:
			l.logger.Debug().Str("route", route.Path).Int("status", code).Msg("probe passed")
		}
	}

	l.notify(ui.UnitTest, "Backend testing complete...")
	return nil
}

func (l *Loop) issue(vi ValidationIssue) {
	l.report.Issues = append(l.report.Issues, vi)
	l.logger.Warn().Str("route", vi.Route).Int("status", vi.StatusCode).AnErr("probe_err", vi.Err).Msg("validation issue")
	l.notify(ui.Issue, "Testing failed for "+vi.Error())
}

func (l *Loop) generateSource(ctx context.Context, mode codegen.Mode, input, label string) error {
	text, err := l.generate(ctx, mode, input, label)
	if err != nil {
		return err
	}
	source := codegen.StripFences(text)
	l.record.SetSource(source)
	return l.deps.Workspace.WriteSource(source)
}

func (l *Loop) generate(ctx context.Context, mode codegen.Mode, input, label string) (string, error) {
	text, err := progress.Run(ctx, l.deps.Indicator, label, func(ctx context.Context) (string, error) {
		return l.deps.Generator.Generate(ctx, mode, input)
	})
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", mode, err)
	}
	l.event(ctx, db.Event{Type: "generated", Message: string(mode), Data: map[string]any{"bytes": len(text)}})
	return text, nil
}

func (l *Loop) notify(cat ui.Category, msg string) {
	if l.deps.Notifier != nil {
		l.deps.Notifier.Print(cat, position, msg)
	}
}

func (l *Loop) recordTransition(ctx context.Context, from, to model.AgentState) {
	if l.deps.Recorder == nil {
		return
	}
	if err := l.deps.Recorder.RecordTransition(ctx, l.opts.RunID, from.String(), to.String(), l.bugs.Count); err != nil {
		l.logger.Warn().Err(err).Msg("record transition")
	}
}

func (l *Loop) event(ctx context.Context, ev db.Event) {
	if l.deps.Recorder == nil {
		return
	}
	if err := l.deps.Recorder.RecordEvent(ctx, l.opts.RunID, ev); err != nil {
		l.logger.Warn().Err(err).Str("event", ev.Type).Msg("record event")
	}
}

func (l *Loop) recordProbe(ctx context.Context, route string, code int, probeErr error) {
	if l.deps.Recorder == nil {
		return
	}
	rec := db.ProbeRecord{Route: route, StatusCode: code}
	if probeErr != nil {
		rec.Error = probeErr.Error()
	}
	if err := l.deps.Recorder.RecordProbe(ctx, l.opts.RunID, rec); err != nil {
		l.logger.Warn().Err(err).Str("route", route).Msg("record probe")
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
