package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/web"
	"github.com/metalagman/anvil/internal/workspace"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List and manage anvil runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			writeRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most N runs (0 for all)")
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsPruneCmd())
	cmd.AddCommand(runsServeCmd())
	return cmd
}

func runsServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a web view of the run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			view, err := web.NewServer(store)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: view.Routes(), ReadHeaderTimeout: 5 * time.Second}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			log.Info().Str("addr", addr).Msg("serving run history")

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7070", "listen address")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show probe results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			status, err := store.GetRunStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if status == "" {
				return fmt.Errorf("run %s not found", args[0])
			}
			probes, err := store.Probes(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Run %s: %s\n", args[0], status)
			writeProbes(cmd.OutOrStdout(), probes)
			return nil
		},
	}
}

func runsPruneCmd() *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune old runs from disk and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, repoRoot, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := loadConfig(repoRoot)
			if err != nil {
				return err
			}

			policy := db.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = db.RetentionPolicy{
					KeepLast: cfg.Retention.KeepLast,
					KeepDays: cfg.Retention.KeepDays,
				}
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep-last or --keep-days (or configure retention in %s)", filepath.ToSlash(viperConfigPath()))
			}

			lock, err := workspace.AcquireLock(stateDir(repoRoot))
			if err != nil {
				return err
			}
			defer func() { _ = lock.Release() }()

			res, err := store.PruneRuns(cmd.Context(), runsDir(repoRoot), policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			log.Info().Msgf("%s %d runs (kept %d, skipped %d)", mode, res.Deleted, res.Kept, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}

func writeRuns(w io.Writer, runs []db.RunSummary) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "no runs")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "CREATED", "LANG", "STATUS", "STATE", "BUGS", "ISSUES", "DESCRIPTION")
	for _, r := range runs {
		t.Row(r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Language, r.Status, r.State,
			strconv.Itoa(r.BugCount), strconv.Itoa(r.IssueCount), truncate(r.Description, 48))
	}
	_, _ = fmt.Fprintln(w, t.String())
}

func writeProbes(w io.Writer, probes []db.ProbeRecord) {
	if len(probes) == 0 {
		_, _ = fmt.Fprintln(w, "no endpoints probed")
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ROUTE", "STATUS", "ERROR")
	for _, p := range probes {
		status := "-"
		if p.StatusCode != 0 {
			status = strconv.Itoa(p.StatusCode)
		}
		t.Row(p.Route, status, truncate(p.Error, 60))
	}
	_, _ = fmt.Fprintln(w, t.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
