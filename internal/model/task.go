package model

import (
	"time"
)

// TaskState represents the lifecycle state reported for a task
type TaskState string

const (
	TaskStateStarted  TaskState = "STARTED"
	TaskStateFailed   TaskState = "FAILED"
	TaskStateDisabled TaskState = "DISABLED"
	TaskStateDone     TaskState = "DONE"
)

// Task is the orchestrator's view of a unit of scheduled work.
// The bridge only reads it.
type Task struct {
	Family     string            `json:"family"`
	Params     map[string]string `json:"params,omitempty"`
	RetryCount int               `json:"retry_count"`

	// Timing fields
	StartedAt *time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Elapsed returns the time between the task start and its last update.
// ok is false when either timestamp is missing.
func (t *Task) Elapsed() (elapsed time.Duration, ok bool) {
	if t.StartedAt == nil || t.UpdatedAt.IsZero() {
		return 0, false
	}
	return t.UpdatedAt.Sub(*t.StartedAt), true
}

// DisableContext carries the scheduler's disable policy, in seconds
type DisableContext struct {
	DisableWindow  int `json:"disable_window"`
	DisablePersist int `json:"disable_persist"`
}
