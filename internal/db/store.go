package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Store records runs, their events and probe results.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Event is one entry of a run's journal.
type Event struct {
	Type    string
	Message string
	Data    any
}

// RunSummary is a row of the run history.
type RunSummary struct {
	ID          string
	CreatedAt   time.Time
	EndedAt     *time.Time
	Description string
	Language    string
	Status      string
	State       string
	BugCount    int
	IssueCount  int
	Error       string
}

// ProbeRecord is the stored outcome of probing one route.
type ProbeRecord struct {
	Route      string
	StatusCode int
	Error      string
	At         time.Time
}

// CreateRun inserts the run record and a run_started event.
func (s *Store) CreateRun(ctx context.Context, runID, description, language, state string) error {
	createdAt := now()
	return s.inTx(ctx, "create run", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, description, language, status, state)
			VALUES(?, ?, ?, ?, ?, ?)`,
			runID, createdAt, description, language, StatusRunning, state); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return insertEvent(ctx, tx, runID, Event{Type: "run_started", Message: "run started"})
	})
}

// RecordTransition stores a state change together with the current bug count.
func (s *Store) RecordTransition(ctx context.Context, runID, from, to string, bugCount int) error {
	return s.inTx(ctx, "record transition", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET state=?, bug_count=? WHERE run_id=?`, to, bugCount, runID); err != nil {
			return fmt.Errorf("update run state: %w", err)
		}
		return insertEvent(ctx, tx, runID, Event{
			Type:    "transition",
			Message: from + " -> " + to,
			Data:    map[string]any{"from": from, "to": to, "bug_count": bugCount},
		})
	})
}

// RecordEvent appends an event to the run journal.
func (s *Store) RecordEvent(ctx context.Context, runID string, ev Event) error {
	return s.inTx(ctx, "record event", func(tx *sql.Tx) error {
		return insertEvent(ctx, tx, runID, ev)
	})
}

// RecordProbe stores a probe result. A zero status code means the request failed.
func (s *Store) RecordProbe(ctx context.Context, runID string, p ProbeRecord) error {
	if _, err := s.db.ExecContext(ctx, `INSERT INTO probes(run_id, route, status_code, error, ts) VALUES(?, ?, ?, ?, ?)`,
		runID, p.Route, nullableInt(p.StatusCode), nullableString(p.Error), now()); err != nil {
		return fmt.Errorf("insert probe: %w", err)
	}
	return nil
}

// FinishRun marks the run as ended. A non-empty errMsg marks it failed.
func (s *Store) FinishRun(ctx context.Context, runID string, issueCount int, errMsg string) error {
	status := StatusFinished
	evType := "run_finished"
	if errMsg != "" {
		status = StatusFailed
		evType = "run_failed"
	}
	return s.inTx(ctx, "finish run", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, ended_at=?, issue_count=?, error=? WHERE run_id=?`,
			status, now(), issueCount, nullableString(errMsg), runID); err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		msg := "run finished"
		if errMsg != "" {
			msg = errMsg
		}
		return insertEvent(ctx, tx, runID, Event{Type: evType, Message: msg, Data: map[string]any{"issues": issueCount}})
	})
}

// ListRuns returns up to limit runs, newest first. A non-positive limit returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT run_id, created_at, ended_at, description, language, status, state, bug_count, issue_count, error
		FROM runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var (
			r         RunSummary
			createdAt string
			endedAt   sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(&r.ID, &createdAt, &endedAt, &r.Description, &r.Language, &r.Status, &r.State,
			&r.BugCount, &r.IssueCount, &errMsg); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if endedAt.Valid {
			if t, err := time.Parse(time.RFC3339, endedAt.String); err == nil {
				r.EndedAt = &t
			}
		}
		r.Error = errMsg.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Probes returns the probe results of a run in insertion order.
func (s *Store) Probes(ctx context.Context, runID string) ([]ProbeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT route, status_code, error, ts FROM probes WHERE run_id=? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list probes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProbeRecord
	for rows.Next() {
		var (
			p      ProbeRecord
			code   sql.NullInt64
			errMsg sql.NullString
			ts     string
		)
		if err := rows.Scan(&p.Route, &code, &errMsg, &ts); err != nil {
			return nil, fmt.Errorf("scan probe: %w", err)
		}
		p.StatusCode = int(code.Int64)
		p.Error = errMsg.String
		p.At, _ = time.Parse(time.RFC3339, ts)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate probes: %w", err)
	}
	return out, nil
}

// GetRunStatus returns the status for a run id, or empty if missing.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id=?`, runID)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read run status: %w", err)
	}
	return status, nil
}

func (s *Store) inTx(ctx context.Context, what string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin %s: %w", what, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", what, err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, runID string, ev Event) error {
	seq, err := nextSeq(ctx, tx, runID)
	if err != nil {
		return err
	}
	dataJSON := ""
	if ev.Data != nil {
		raw, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		dataJSON = string(raw)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, seq, now(), ev.Type, ev.Message, nullableString(dataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, runID string) (int, error) {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	return seq + 1, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}
