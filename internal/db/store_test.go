package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "state", FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn)
}

func TestStore_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-1", "todo api", "rust", "Discovering"))
	status, err := s.GetRunStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	require.NoError(t, s.RecordTransition(ctx, "run-1", "Discovering", "Refining", 0))
	require.NoError(t, s.RecordEvent(ctx, "run-1", Event{Type: "build", Message: "build failed", Data: map[string]any{"attempt": 1}}))
	require.NoError(t, s.RecordProbe(ctx, "run-1", ProbeRecord{Route: "/health", StatusCode: 503}))
	require.NoError(t, s.RecordProbe(ctx, "run-1", ProbeRecord{Route: "/status", Error: "connection refused"}))
	require.NoError(t, s.FinishRun(ctx, "run-1", 2, ""))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFinished, runs[0].Status)
	assert.Equal(t, "Refining", runs[0].State)
	assert.Equal(t, 2, runs[0].IssueCount)
	assert.NotNil(t, runs[0].EndedAt)

	probes, err := s.Probes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, probes, 2)
	assert.Equal(t, 503, probes[0].StatusCode)
	assert.Equal(t, "connection refused", probes[1].Error)
	assert.Equal(t, 0, probes[1].StatusCode)

	var events int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM events WHERE run_id=?`, "run-1").Scan(&events))
	assert.Equal(t, 4, events)

	var maxSeq int
	require.NoError(t, s.DB().QueryRow(`SELECT MAX(seq) FROM events WHERE run_id=?`, "run-1").Scan(&maxSeq))
	assert.Equal(t, 4, maxSeq)
}

func TestStore_FinishRunWithError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateRun(ctx, "run-err", "api", "rust", "Discovering"))
	require.NoError(t, s.FinishRun(ctx, "run-err", 0, "too many bugs"))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, "too many bugs", runs[0].Error)
}

func TestStore_GetRunStatusMissing(t *testing.T) {
	status, err := openTestStore(t).GetRunStatus(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestStore_PruneRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	runsDir := t.TempDir()

	old := time.Now().UTC().Add(-72 * time.Hour).Format(time.RFC3339)
	for _, id := range []string{"old-1", "old-2", "active"} {
		require.NoError(t, s.CreateRun(ctx, id, "api", "rust", "Discovering"))
		require.NoError(t, os.MkdirAll(filepath.Join(runsDir, id), 0o755))
		_, err := s.DB().Exec(`UPDATE runs SET created_at=? WHERE run_id=?`, old, id)
		require.NoError(t, err)
	}
	require.NoError(t, s.FinishRun(ctx, "old-1", 0, ""))
	require.NoError(t, s.FinishRun(ctx, "old-2", 0, "boom"))
	require.NoError(t, s.CreateRun(ctx, "fresh", "api", "rust", "Discovering"))
	require.NoError(t, s.FinishRun(ctx, "fresh", 0, ""))

	dry, err := s.PruneRuns(ctx, runsDir, RetentionPolicy{KeepDays: 1}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Deleted)
	assert.DirExists(t, filepath.Join(runsDir, "old-1"))

	res, err := s.PruneRuns(ctx, runsDir, RetentionPolicy{KeepDays: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, PruneResult{Considered: 4, Kept: 2, Deleted: 2}, res)
	assert.NoDirExists(t, filepath.Join(runsDir, "old-1"))
	assert.DirExists(t, filepath.Join(runsDir, "active"))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"fresh", "active"}, ids)
}

func TestStore_PruneRunsNoPolicy(t *testing.T) {
	res, err := openTestStore(t).PruneRuns(context.Background(), "", RetentionPolicy{}, false)
	require.NoError(t, err)
	assert.Equal(t, PruneResult{}, res)
}
