package lib

import (
	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/preference"
)

type (
	// Task is a tracked back office operation.
	Task = model.Task
	// TaskKind is the kind of operation a task tracks.
	TaskKind = model.TaskKind
	// TaskState is the observed state of a task.
	//
	// The lifecycle of an attempt is:
	//
	//	idle -> running -> success|error
	TaskState = model.TaskState
	// TaskResult is the payload of a successful task.
	TaskResult = model.TaskResult
	// ScanResult is what a scan invocation returns.
	ScanResult = model.ScanResult
	// ScanHistoryEntry is the accumulated scan history of a subject.
	ScanHistoryEntry = model.ScanHistoryEntry
	// Notification is a short lived user facing message.
	Notification = model.Notification
	// Severity is the severity of a notification.
	Severity = model.Severity
	// Statistics is the back office anomaly statistics snapshot.
	Statistics = model.Statistics
	// StatsView is a statistics snapshot with its freshness information.
	StatsView = stats.View
	// View is a status view of the CLI.
	View = preference.View
)

const (
	TaskKindScan       = model.TaskKindScan
	TaskKindCleanup    = model.TaskKindCleanup
	TaskKindValidation = model.TaskKindValidation

	TaskStateIdle    = model.TaskStateIdle
	TaskStateRunning = model.TaskStateRunning
	TaskStateSuccess = model.TaskStateSuccess
	TaskStateError   = model.TaskStateError

	SeverityInfo    = model.SeverityInfo
	SeveritySuccess = model.SeveritySuccess
	SeverityWarning = model.SeverityWarning
	SeverityError   = model.SeverityError

	ViewTasks   = preference.ViewTasks
	ViewHistory = preference.ViewHistory
	ViewStats   = preference.ViewStats
)

// CleanupOpts are the options of a cleanup job.
type CleanupOpts struct {
	// SubjectID limits the cleanup to a single subject, all of them when empty.
	SubjectID string
	// DryRun reports what would be cleaned without changing anything.
	DryRun bool
}

// ValidationOpts are the options of a validation job.
type ValidationOpts struct {
	// SubjectID limits the validation to a single subject, all of them when empty.
	SubjectID string
}
