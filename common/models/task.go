package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of an asynchronous task
type TaskState string

const (
	TaskNotStarted TaskState = "NOT_STARTED"
	TaskInProgress TaskState = "IN_PROGRESS"
	TaskComplete   TaskState = "COMPLETE"
	TaskFailed     TaskState = "FAILED"
)

// Terminal reports whether a task in this state can never change again
func (s TaskState) Terminal() bool {
	return s == TaskComplete || s == TaskFailed
}

// Task tracks one unit of asynchronous work. It is the single source
// of truth for whether that work has run, is running, or is done; the
// queued message itself is never trusted as state.
// Maps to: tasks table
type Task struct {
	ID uuid.UUID `db:"id" json:"id"`

	// Publish this task belongs to, if any
	PublishID *uuid.UUID `db:"publish_id" json:"publish_id,omitempty"`

	State TaskState `db:"state" json:"state"`

	Updated time.Time `db:"updated" json:"updated"`

	// Deadline after which the task must be abandoned rather than
	// completed. Checked at claim time only.
	Deadline *time.Time `db:"deadline" json:"deadline,omitempty"`
}
