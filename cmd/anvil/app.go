package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metalagman/anvil/internal/agent"
	"github.com/metalagman/anvil/internal/build"
	"github.com/metalagman/anvil/internal/codegen"
	"github.com/metalagman/anvil/internal/config"
	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/model"
	"github.com/metalagman/anvil/internal/probe"
	"github.com/metalagman/anvil/internal/progress"
	"github.com/metalagman/anvil/internal/server"
	"github.com/metalagman/anvil/internal/ui"
	"github.com/metalagman/anvil/internal/workspace"
	"go.uber.org/fx"
)

// runParams are the inputs of a single run assembled by the command line.
type runParams struct {
	RepoRoot string
	RunID    string
	Config   config.Config
	Record   model.ProjectRecord
	Yes      bool
	Review   bool
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
}

// runDir holds the artifacts of one run: .anvil/runs/<run_id>.
type runDir string

// runLog collects build, server and exec generator output of a run.
type runLog struct {
	io.Writer
}

type loopIn struct {
	fx.In

	Params    runParams
	Generator agent.Generator
	Builder   agent.Builder
	Launcher  agent.Launcher
	Prober    agent.Prober
	Workspace agent.Workspace
	Confirmer agent.Confirmer
	Recorder  agent.Recorder
	Notifier  agent.Notifier
	Indicator *progress.Indicator
}

func appOptions(p runParams, extra ...fx.Option) []fx.Option {
	opts := []fx.Option{
		fx.NopLogger,
		fx.Supply(p, p.Config),
		fx.Provide(
			provideRunDir,
			provideRunLog,
			provideStore,
			provideRecorder,
			provideGenerator,
			provideBuilder,
			provideLauncher,
			provideProber,
			provideWorkspace,
			provideConfirmer,
			provideNotifier,
			provideIndicator,
			provideLoop,
		),
	}
	return append(opts, extra...)
}

func provideRunDir(p runParams) (runDir, error) {
	dir := filepath.Join(runsDir(p.RepoRoot), p.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return runDir(dir), nil
}

func provideRunLog(lc fx.Lifecycle, dir runDir) (runLog, error) {
	f, err := os.OpenFile(filepath.Join(string(dir), "output.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return runLog{}, fmt.Errorf("open run log: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return f.Close() }})
	return runLog{Writer: f}, nil
}

func provideStore(lc fx.Lifecycle, p runParams) (*db.Store, error) {
	store, closeFn, err := openStore(p.RepoRoot)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		closeFn()
		return nil
	}})
	return store, nil
}

func provideRecorder(store *db.Store) agent.Recorder {
	return store
}

func provideGenerator(cfg config.Config, dir runDir, out runLog) (agent.Generator, error) {
	return codegen.New(context.Background(), cfg.Generator, cfg.Language, string(dir), out)
}

func provideBuilder(cfg config.Config, out runLog) (agent.Builder, error) {
	runner, err := build.NewRunner(cfg.Build.Cmd, cfg.Build.UpdateCmd)
	if err != nil {
		return nil, err
	}
	return runner.WithOutput(out), nil
}

func provideLauncher(cfg config.Config, out runLog) (agent.Launcher, error) {
	l, err := server.NewLauncher(cfg.Server.Cmd, out)
	if err != nil {
		return nil, err
	}
	return agent.ServerLauncher(l), nil
}

func provideProber(cfg config.Config) agent.Prober {
	return probe.New(cfg.Validate.ProbeTimeout)
}

func provideWorkspace(p runParams) agent.Workspace {
	return workspace.New(p.RepoRoot, p.Config.Project)
}

func provideConfirmer(p runParams) agent.Confirmer {
	if p.Yes {
		return ui.AutoConfirmer{}
	}
	return &ui.TerminalConfirmer{In: p.In, Out: p.Out, Language: p.Config.Language, Review: p.Review}
}

func provideNotifier(p runParams) agent.Notifier {
	return ui.NewPrinter(p.Out)
}

func provideIndicator(p runParams) *progress.Indicator {
	return progress.New(p.Err,
		progress.WithInterval(p.Config.Progress.Interval),
		progress.WithStyle(p.Config.Progress.Style),
	)
}

func provideLoop(in loopIn) (*agent.Loop, error) {
	cfg := in.Params.Config
	return agent.New(in.Params.Record, agent.Deps{
		Generator: in.Generator,
		Builder:   in.Builder,
		Launcher:  in.Launcher,
		Prober:    in.Prober,
		Workspace: in.Workspace,
		Confirmer: in.Confirmer,
		Recorder:  in.Recorder,
		Notifier:  in.Notifier,
		Indicator: in.Indicator,
	}, agent.Options{
		RunID:        in.Params.RunID,
		RetryLimit:   cfg.Build.RetryLimit,
		BaseURL:      cfg.Server.BaseURL(),
		Warmup:       cfg.Validate.Warmup,
		PollInterval: cfg.Validate.PollInterval,
	})
}
