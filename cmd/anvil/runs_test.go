package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/metalagman/anvil/internal/db"
	"github.com/stretchr/testify/assert"
)

func TestWriteRuns(t *testing.T) {
	var buf bytes.Buffer
	writeRuns(&buf, nil)
	assert.Equal(t, "no runs\n", buf.String())

	buf.Reset()
	writeRuns(&buf, []db.RunSummary{{
		ID:          "run-1",
		CreatedAt:   time.Now(),
		Description: "todo api",
		Language:    "rust",
		Status:      db.StatusFinished,
		State:       "finished",
		IssueCount:  2,
	}})
	out := buf.String()
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "todo api")
	assert.Contains(t, out, db.StatusFinished)
}

func TestWriteProbes(t *testing.T) {
	var buf bytes.Buffer
	writeProbes(&buf, nil)
	assert.Equal(t, "no endpoints probed\n", buf.String())

	buf.Reset()
	writeProbes(&buf, []db.ProbeRecord{
		{Route: "/health", StatusCode: 503},
		{Route: "/status", Error: "connection refused"},
	})
	out := buf.String()
	assert.Contains(t, out, "/health")
	assert.Contains(t, out, "503")
	assert.Contains(t, out, "connection refused")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
