package model

import "fmt"

// JobStatusValue is the status reported by the back office for a long running job.
type JobStatusValue string

const (
	JobStatusPending    JobStatusValue = "pending"
	JobStatusProcessing JobStatusValue = "processing"
	JobStatusComplete   JobStatusValue = "complete"
	JobStatusFailed     JobStatusValue = "failed"
	JobStatusError      JobStatusValue = "error"
)

// JobStatus is a job status report.
type JobStatus struct {
	Status   JobStatusValue `json:"status"`
	Progress int            `json:"progress"`
	StepName string         `json:"step_name"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Validate checks the reported status is known.
func (j JobStatus) Validate() error {
	switch j.Status {
	case JobStatusPending, JobStatusProcessing, JobStatusComplete, JobStatusFailed, JobStatusError:
		return nil
	}
	return fmt.Errorf("unknown job status %q: %w", j.Status, ErrNotValid)
}

// Finished returns true when the job won't report more progress.
func (j JobStatus) Finished() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusFailed || j.Status == JobStatusError
}

// JobRequest are the options to start a cleanup or validation job.
type JobRequest struct {
	SubjectID string `json:"subject_id,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// ScanResult is the result returned by the scan trigger endpoint.
type ScanResult struct {
	AnomaliesFound int            `json:"anomalies_found"`
	Details        map[string]any `json:"-"`
}
