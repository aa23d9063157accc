package model

import (
	"fmt"
	"time"
)

// TaskKind is the kind of remote operation a task tracks.
type TaskKind string

const (
	TaskKindScan       TaskKind = "scan"
	TaskKindCleanup    TaskKind = "cleanup"
	TaskKindValidation TaskKind = "validation"
)

// Validate checks the task kind is known.
func (k TaskKind) Validate() error {
	switch k {
	case TaskKindScan, TaskKindCleanup, TaskKindValidation:
		return nil
	}
	return fmt.Errorf("unknown task kind %q: %w", k, ErrNotValid)
}

// Pollable returns true when the kind reports its progress through the job status endpoint.
func (k TaskKind) Pollable() bool {
	return k == TaskKindCleanup || k == TaskKindValidation
}

// TaskState represents the client observed state of a task.
//
// There is no stored idle state, an absent task is idle.
type TaskState string

const (
	TaskStateIdle    TaskState = "idle"
	TaskStateRunning TaskState = "running"
	TaskStateSuccess TaskState = "success"
	TaskStateError   TaskState = "error"
)

// Terminal returns true if the state can't move anymore for the same attempt.
func (s TaskState) Terminal() bool {
	return s == TaskStateSuccess || s == TaskStateError
}

// Task is a tracked asynchronous server operation.
type Task struct {
	ID          string      `json:"id"`
	Kind        TaskKind    `json:"kind"`
	State       TaskState   `json:"state"`
	Progress    int         `json:"progress"`
	Message     string      `json:"message,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Running returns true if the task is in flight.
func (t Task) Running() bool { return t.State == TaskStateRunning }

// TaskResult is the operation specific payload of a successful task.
type TaskResult struct {
	// AnomaliesFound is set by scans.
	AnomaliesFound int `json:"anomalies_found"`
	// Details holds the rest of the payload returned by the server.
	Details map[string]any `json:"details,omitempty"`
}
