package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bdobrica/Kanri/internal/kanri/tasks"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) listTasks(ctx context.Context, q querier, userID string) ([]tasks.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, status, blocked_reason, updated_at
		FROM tasks
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []tasks.Task
	for rows.Next() {
		var (
			t      tasks.Task
			status string
			reason sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Title, &status, &reason, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Index = len(out) + 1
		t.Status = tasks.Status(status)
		t.BlockedReason = reason.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// ListTasks returns the user's tasks in list order.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]tasks.Task, error) {
	ts, err := s.listTasks(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return ts, nil
}

// CreateTask appends a pending task to the user's list.
func (s *Store) CreateTask(ctx context.Context, userID, title string) (tasks.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return tasks.Task{}, fmt.Errorf("store: create task: empty title")
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("store: create task: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (user_id, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, title, tasks.StatusPending, now, now)
	if err != nil {
		return tasks.Task{}, fmt.Errorf("store: create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return tasks.Task{}, fmt.Errorf("store: create task: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return tasks.Task{}, fmt.Errorf("store: create task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return tasks.Task{}, fmt.Errorf("store: create task: %w", err)
	}
	return tasks.Task{Index: count, ID: id, Title: title, Status: tasks.StatusPending, UpdatedAt: now}, nil
}

// MarkDone sets every listed task to done. Either all indices exist and all
// are updated, or nothing changes.
func (s *Store) MarkDone(ctx context.Context, userID string, indices []int) ([]tasks.Task, error) {
	out, err := s.setStatus(ctx, userID, indices, tasks.StatusDone, "")
	if err != nil {
		return nil, fmt.Errorf("store: mark done: %w", err)
	}
	return out, nil
}

// MarkInProgress is MarkDone for the in-progress status.
func (s *Store) MarkInProgress(ctx context.Context, userID string, indices []int) ([]tasks.Task, error) {
	out, err := s.setStatus(ctx, userID, indices, tasks.StatusInProgress, "")
	if err != nil {
		return nil, fmt.Errorf("store: mark in progress: %w", err)
	}
	return out, nil
}

// MarkBlocked blocks one task and records why.
func (s *Store) MarkBlocked(ctx context.Context, userID string, index int, reason string) (tasks.Task, error) {
	out, err := s.setStatus(ctx, userID, []int{index}, tasks.StatusBlocked, strings.TrimSpace(reason))
	if err != nil {
		return tasks.Task{}, fmt.Errorf("store: mark blocked: %w", err)
	}
	return out[0], nil
}

func (s *Store) setStatus(ctx context.Context, userID string, indices []int, status tasks.Status, reason string) ([]tasks.Task, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("no task indices")
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	list, err := s.listTasks(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	for _, i := range indices {
		if i < 1 || i > len(list) {
			return nil, &tasks.NotFoundError{Index: i}
		}
	}

	var blocked sql.NullString
	if status == tasks.StatusBlocked {
		blocked = sql.NullString{String: reason, Valid: true}
	}
	out := make([]tasks.Task, 0, len(indices))
	for _, i := range indices {
		t := list[i-1]
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, blocked_reason = ?, updated_at = ? WHERE id = ?
		`, status, blocked, now, t.ID); err != nil {
			return nil, fmt.Errorf("update task %d: %w", i, err)
		}
		t.Status, t.BlockedReason, t.UpdatedAt = status, blocked.String, now
		out = append(out, t)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProgress counts the user's tasks by status.
func (s *Store) GetProgress(ctx context.Context, userID string) (tasks.Progress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM tasks WHERE user_id = ? GROUP BY status
	`, userID)
	if err != nil {
		return tasks.Progress{}, fmt.Errorf("store: get progress: %w", err)
	}
	defer rows.Close()

	var p tasks.Progress
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return tasks.Progress{}, fmt.Errorf("store: get progress: %w", err)
		}
		p.Total += n
		switch tasks.Status(status) {
		case tasks.StatusDone:
			p.Done = n
		case tasks.StatusInProgress:
			p.InProgress = n
		case tasks.StatusBlocked:
			p.Blocked = n
		}
	}
	if err := rows.Err(); err != nil {
		return tasks.Progress{}, fmt.Errorf("store: get progress: %w", err)
	}
	return p, nil
}

// Stats is a whole-ledger summary for the status endpoint.
type Stats struct {
	Users int `json:"users"`
	Tasks int `json:"tasks"`
	Done  int `json:"done"`
}

// Stats summarizes every user's tasks.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id), COUNT(*), COALESCE(SUM(status = 'done'), 0) FROM tasks
	`).Scan(&st.Users, &st.Tasks, &st.Done)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}
