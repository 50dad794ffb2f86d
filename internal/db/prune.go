package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RetentionPolicy controls run cleanup.
type RetentionPolicy struct {
	KeepLast int
	KeepDays int
}

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	Skipped    int
}

// PruneRuns deletes old run records together with their artifact directories under runsDir.
// Running runs are always kept.
func (s *Store) PruneRuns(ctx context.Context, runsDir string, policy RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(runs)}
	for idx, run := range runs {
		keep := run.Status == StatusRunning
		if !keep && policy.KeepLast > 0 && idx < policy.KeepLast {
			keep = true
		}
		if !keep && policy.KeepDays > 0 && (run.CreatedAt.IsZero() || run.CreatedAt.After(cutoff)) {
			keep = true
		}
		if keep {
			res.Kept++
			continue
		}
		if dryRun {
			res.Deleted++
			continue
		}
		if runsDir != "" {
			if err := os.RemoveAll(filepath.Join(runsDir, run.ID)); err != nil && !os.IsNotExist(err) {
				res.Skipped++
				continue
			}
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, run.ID); err != nil {
			return res, fmt.Errorf("delete run %s: %w", run.ID, err)
		}
		res.Deleted++
	}
	return res, nil
}
