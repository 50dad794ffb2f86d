package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metalagman/anvil/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	runs   []db.RunSummary
	probes map[string][]db.ProbeRecord
	err    error
	limit  int
}

func (f *fakeStore) ListRuns(_ context.Context, limit int) ([]db.RunSummary, error) {
	f.limit = limit
	return f.runs, f.err
}

func (f *fakeStore) GetRunStatus(_ context.Context, runID string) (string, error) {
	for _, r := range f.runs {
		if r.ID == runID {
			return r.Status, nil
		}
	}
	return "", f.err
}

func (f *fakeStore) Probes(_ context.Context, runID string) ([]db.ProbeRecord, error) {
	return f.probes[runID], nil
}

func newTestServer(t *testing.T, store RunStore) http.Handler {
	t.Helper()
	s, err := NewServer(store)
	require.NoError(t, err)
	return s.Routes()
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func sampleStore() *fakeStore {
	return &fakeStore{
		runs: []db.RunSummary{{
			ID:          "run-1",
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Description: "todo api",
			Language:    "rust",
			Status:      db.StatusFinished,
			State:       "finished",
			IssueCount:  1,
		}},
		probes: map[string][]db.ProbeRecord{
			"run-1": {{Route: "/health", StatusCode: 503}, {Route: "/status", StatusCode: 200}},
		},
	}
}

func TestIndexListsRuns(t *testing.T) {
	h := newTestServer(t, sampleStore())

	rec := get(h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/runs/run-1"`)
	assert.Contains(t, rec.Body.String(), "todo api")
	assert.Contains(t, rec.Body.String(), "2026-01-02 03:04:05")
}

func TestIndexEmpty(t *testing.T) {
	h := newTestServer(t, &fakeStore{})

	rec := get(h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No runs yet.")
}

func TestRunPageShowsProbes(t *testing.T) {
	h := newTestServer(t, sampleStore())

	rec := get(h, "/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/health")
	assert.Contains(t, rec.Body.String(), "503")

	assert.Equal(t, http.StatusNotFound, get(h, "/runs/nope").Code)
}

func TestAPIRuns(t *testing.T) {
	store := sampleStore()
	h := newTestServer(t, store)

	rec := get(h, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, store.limit)
	var runs []db.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(h, "/api/runs?limit=x").Code)

	empty := get(newTestServer(t, &fakeStore{}), "/api/runs")
	assert.JSONEq(t, "[]", empty.Body.String())
}

func TestAPIProbes(t *testing.T) {
	h := newTestServer(t, sampleStore())

	rec := get(h, "/api/runs/run-1/probes")
	require.Equal(t, http.StatusOK, rec.Code)
	var probes []db.ProbeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &probes))
	require.Len(t, probes, 2)
	assert.Equal(t, 503, probes[0].StatusCode)

	assert.Equal(t, http.StatusNotFound, get(h, "/api/runs/nope/probes").Code)
}

func TestStoreErrorIs500(t *testing.T) {
	h := newTestServer(t, &fakeStore{err: errors.New("disk gone")})

	rec := get(h, "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk gone")
}
