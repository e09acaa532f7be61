// Package tasks holds the value types shared by the task ledger and its
// callers.
package tasks

import (
	"errors"
	"fmt"
	"time"
)

// ErrTaskNotFound is matched with errors.Is when a 1-based index does not
// name a task in the user's list.
var ErrTaskNotFound = errors.New("task not found")

// NotFoundError carries the offending index.
type NotFoundError struct {
	Index int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.Index)
}

// Is makes errors.Is(err, ErrTaskNotFound) hold.
func (e *NotFoundError) Is(target error) bool { return target == ErrTaskNotFound }

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Icon returns the glyph shown next to a task in a list.
func (s Status) Icon() string {
	switch s {
	case StatusInProgress:
		return "🔄"
	case StatusDone:
		return "✅"
	case StatusBlocked:
		return "⛔"
	default:
		return "⬜"
	}
}

// Label is the Portuguese status name used in replies.
func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "em andamento"
	case StatusDone:
		return "feita"
	case StatusBlocked:
		return "bloqueada"
	default:
		return "pendente"
	}
}

// Task is one entry of a user's list. Index is its 1-based position.
type Task struct {
	Index         int
	ID            int64
	Title         string
	Status        Status
	BlockedReason string
	UpdatedAt     time.Time
}

// Progress summarizes a user's list.
type Progress struct {
	Total      int
	Done       int
	InProgress int
	Blocked    int
}

// Percent is Done/Total rounded down, 0 for an empty list.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Done * 100 / p.Total
}
