package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dbpkg "github.com/metalagman/anvil/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, stateDir string) *dbpkg.Store {
	t.Helper()
	conn, err := dbpkg.Open(filepath.Join(stateDir, dbpkg.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return dbpkg.NewStore(conn)
}

func TestRunMarksInterruptedRuns(t *testing.T) {
	ctx := context.Background()
	stateDir := filepath.Join(t.TempDir(), ".anvil")
	runsDir := filepath.Join(stateDir, "runs")
	store := openStore(t, stateDir)

	require.NoError(t, store.CreateRun(ctx, "stale", "todo api", "rust", "discovering"))
	require.NoError(t, store.RecordTransition(ctx, "stale", "discovering", "refining", 0))
	require.NoError(t, store.CreateRun(ctx, "done", "todo api", "rust", "discovering"))
	require.NoError(t, store.FinishRun(ctx, "done", 0, ""))

	res, err := Run(ctx, store, runsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, res.Interrupted)

	status, err := store.GetRunStatus(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, dbpkg.StatusFailed, status)
	status, err = store.GetRunStatus(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, dbpkg.StatusFinished, status)

	// A second pass finds nothing left to repair.
	res, err = Run(ctx, store, runsDir)
	require.NoError(t, err)
	assert.Empty(t, res.Interrupted)
}

func TestRunReportsOrphanedRunDirs(t *testing.T) {
	ctx := context.Background()
	stateDir := filepath.Join(t.TempDir(), ".anvil")
	runsDir := filepath.Join(stateDir, "runs")
	require.NoError(t, os.MkdirAll(filepath.Join(runsDir, "missing-run"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(runsDir, "known"), 0o755))
	store := openStore(t, stateDir)
	require.NoError(t, store.CreateRun(ctx, "known", "todo api", "rust", "discovering"))
	require.NoError(t, store.FinishRun(ctx, "known", 0, ""))

	res, err := Run(ctx, store, runsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing-run"}, res.Orphaned)
	assert.Empty(t, res.Interrupted)
}
