package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/metalagman/anvil/internal/agent"
	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/model"
	"github.com/metalagman/anvil/internal/reconcile"
	"github.com/metalagman/anvil/internal/ui"
	"github.com/metalagman/anvil/internal/workspace"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

func runCmd() *cobra.Command {
	var (
		yes          bool
		review       bool
		crud         bool
		auth         bool
		externalURLs []string
		language     string
	)
	cmd := &cobra.Command{
		Use:   "run [description]",
		Short: "Generate a web server, build it and validate its endpoints",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("language") {
				viper.Set("language", language)
			}
			cfg, err := loadConfig(repoRoot)
			if err != nil {
				return err
			}

			description := strings.TrimSpace(strings.Join(args, " "))
			if description == "" {
				description, err = ui.AskDescription(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
				if err != nil {
					return err
				}
			}

			lock, err := workspace.TryLock(stateDir(repoRoot))
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()
			if err := reconcileRuns(cmd.Context(), repoRoot); err != nil {
				log.Warn().Err(err).Msg("reconcile run history")
			}

			p := runParams{
				RepoRoot: repoRoot,
				RunID:    uuid.NewString(),
				Config:   cfg,
				Record: model.ProjectRecord{
					Description:  description,
					Scope:        model.ScopeFlags{CRUD: crud, Auth: auth, ExternalURLs: len(externalURLs) > 0},
					ExternalURLs: externalURLs,
				},
				Yes:    yes,
				Review: review,
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Err:    cmd.ErrOrStderr(),
			}
			report, err := executeRun(cmd.Context(), p)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run generated code without asking for confirmation")
	cmd.Flags().BoolVar(&review, "review", false, "show generated source before asking for confirmation")
	cmd.Flags().BoolVar(&crud, "crud", false, "the server must provide CRUD operations")
	cmd.Flags().BoolVar(&auth, "auth", false, "the server must provide user login and logout")
	cmd.Flags().StringSliceVar(&externalURLs, "external-url", nil, "external API the server should call (repeatable)")
	cmd.Flags().StringVar(&language, "language", "", "override the configured language preset")
	return cmd
}

// executeRun assembles the run graph, drives the loop and journals the outcome.
func executeRun(ctx context.Context, p runParams) (agent.Report, error) {
	var (
		loop  *agent.Loop
		store *db.Store
	)
	app := fx.New(appOptions(p, fx.Populate(&loop, &store))...)
	if err := app.Err(); err != nil {
		return agent.Report{RunID: p.RunID}, fmt.Errorf("assemble run: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return agent.Report{RunID: p.RunID}, fmt.Errorf("start run: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("stop run")
		}
	}()

	if err := store.CreateRun(ctx, p.RunID, p.Record.Description, p.Config.Language, loop.State().String()); err != nil {
		return agent.Report{RunID: p.RunID}, err
	}
	log.Info().Str("run_id", p.RunID).Str("language", p.Config.Language).Msg("run started")

	report, runErr := loop.Run(ctx)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := store.FinishRun(context.WithoutCancel(ctx), p.RunID, len(report.Issues), errMsg); err != nil {
		log.Warn().Err(err).Str("run_id", p.RunID).Msg("finish run")
	}
	return report, runErr
}

func reconcileRuns(ctx context.Context, repoRoot string) error {
	store, closeFn, err := openStore(repoRoot)
	if err != nil {
		return err
	}
	defer closeFn()
	res, err := reconcile.Run(ctx, store, runsDir(repoRoot))
	if err != nil {
		return err
	}
	if len(res.Interrupted) > 0 {
		log.Info().Strs("runs", res.Interrupted).Msg("marked interrupted runs as failed")
	}
	return nil
}

func printReport(w io.Writer, r agent.Report) {
	if r.RunID == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "Run %s: %d build attempt(s), %d route(s) extracted, %d probed\n",
		r.RunID, r.BuildAttempts, len(r.Routes), len(r.Probed))
	for _, issue := range r.Issues {
		_, _ = fmt.Fprintf(w, "  FAIL %s\n", issue.Error())
	}
	switch {
	case len(r.Probed) == 0:
	case r.Passed():
		_, _ = fmt.Fprintln(w, "All probed endpoints answered 200.")
	default:
		_, _ = fmt.Fprintf(w, "%d of %d probed endpoint(s) failed validation.\n", len(r.Issues), len(r.Probed))
	}
}
