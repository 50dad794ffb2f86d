// Package reconcile repairs run history left inconsistent by interrupted runs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/metalagman/anvil/internal/db"
	"github.com/metalagman/anvil/internal/logging"
)

// InterruptedReason is stored as the error of runs found still running.
const InterruptedReason = "interrupted before completion"

// Result summarizes a reconciliation pass.
type Result struct {
	Interrupted []string
	Orphaned    []string
}

// Run marks runs still in the running state as failed and reports run directories under
// runsDir that have no record. It must only be called while the run lock is held.
func Run(ctx context.Context, store *db.Store, runsDir string) (Result, error) {
	logger := logging.Component("reconcile")
	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return Result{}, err
	}

	var res Result
	known := make(map[string]struct{}, len(runs))
	for _, r := range runs {
		known[r.ID] = struct{}{}
		if r.Status != db.StatusRunning {
			continue
		}
		if err := store.FinishRun(ctx, r.ID, r.IssueCount, InterruptedReason); err != nil {
			return res, fmt.Errorf("reconcile run %s: %w", r.ID, err)
		}
		logger.Info().Str("run_id", r.ID).Str("state", r.State).Msg("marked interrupted run as failed")
		res.Interrupted = append(res.Interrupted, r.ID)
	}

	entries, err := os.ReadDir(runsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("read runs dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := known[e.Name()]; !ok {
			logger.Debug().Str("run_id", e.Name()).Msg("run dir has no record")
			res.Orphaned = append(res.Orphaned, e.Name())
		}
	}
	return res, nil
}
