// Package journal keeps a local record of every processed task in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/meshmgr/internal/storage"
)

const (
	timeLayout   = time.RFC3339Nano
	defaultLimit = 50
	maxLimit     = 1000

	columns = `id, agent_id, task_id, origin_task_id, success, inference_latency, error, submitted, submit_error, started_at, completed_at`
)

// ErrNotFound is returned when a task has no journal entry.
var ErrNotFound = errors.New("not found")

// Entry is one processed task.
type Entry struct {
	ID               string    `json:"id"`
	AgentID          string    `json:"agent_id"`
	TaskID           string    `json:"task_id"`
	OriginTaskID     string    `json:"origin_task_id,omitempty"`
	Success          bool      `json:"success"`
	InferenceLatency float64   `json:"inference_latency"`
	Error            string    `json:"error,omitempty"`
	Submitted        bool      `json:"submitted"`
	SubmitError      string    `json:"submit_error,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Journal reads and writes the task_log table.
type Journal struct {
	db *sql.DB
}

// Open opens the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// New wraps an already bootstrapped database.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts e, assigning an id when it has none.
func (j *Journal) Record(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.CompletedAt
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO task_log(id, agent_id, task_id, origin_task_id, success, inference_latency, error, submitted, submit_error, started_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID,
		e.AgentID,
		e.TaskID,
		nullString(e.OriginTaskID),
		boolInt(e.Success),
		e.InferenceLatency,
		nullString(e.Error),
		boolInt(e.Submitted),
		nullString(e.SubmitError),
		e.StartedAt.UTC().Format(timeLayout),
		e.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert task_log: %w", err)
	}
	return e.ID, nil
}

// Recent returns the newest entries first. An empty agentID matches every
// agent. limit is clamped to (0, 1000]; zero means 50.
func (j *Journal) Recent(ctx context.Context, agentID string, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}

	query := `SELECT ` + columns + ` FROM task_log`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY completed_at DESC, rowid DESC LIMIT ?;`
	args = append(args, limit)

	return j.query(ctx, query, args...)
}

// Lineage returns every entry that shares an origin with taskID, oldest
// first. A task without an origin is its own origin. ErrNotFound is
// returned when taskID was never recorded.
func (j *Journal) Lineage(ctx context.Context, taskID string) ([]Entry, error) {
	var origin sql.NullString
	err := j.db.QueryRowContext(ctx,
		`SELECT origin_task_id FROM task_log WHERE task_id = ? ORDER BY rowid LIMIT 1;`, taskID).Scan(&origin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup task %q: %w", taskID, err)
	}

	root := taskID
	if origin.Valid && origin.String != "" {
		root = origin.String
	}
	return j.query(ctx, `SELECT `+columns+` FROM task_log
WHERE task_id = ? OR origin_task_id = ?
ORDER BY started_at ASC, rowid ASC;`, root, root)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                         Entry
			origin, errMsg, submitErr sql.NullString
			success, submitted        int
			startedAt, completedAt    string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.TaskID, &origin, &success, &e.InferenceLatency,
			&errMsg, &submitted, &submitErr, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task_log: %w", err)
		}
		e.OriginTaskID = origin.String
		e.Error = errMsg.String
		e.SubmitError = submitErr.String
		e.Success = success != 0
		e.Submitted = submitted != 0
		if e.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if e.CompletedAt, err = time.Parse(timeLayout, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task_log: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
