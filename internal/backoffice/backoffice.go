package backoffice

import (
	"context"

	"github.com/slok/opwatch/internal/model"
)

// Client knows how to talk with the billing back office API.
//
// Implementations must classify failures using model.ErrUnauthorized for rejected credentials and
// model.ErrUnavailable for transient failures (no response or server errors).
type Client interface {
	// TriggerScan runs an anomaly scan on the subject and waits for its result.
	TriggerScan(ctx context.Context, subjectID string) (*model.ScanResult, error)
	// StartJob starts a long running job of the kind and returns its server id.
	StartJob(ctx context.Context, kind model.TaskKind, req model.JobRequest) (jobID string, err error)
	// JobStatus returns the current status of a job.
	JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error)
	// Statistics returns the aggregated anomaly statistics.
	Statistics(ctx context.Context) (*model.Statistics, error)
}

//go:generate mockery --case underscore --output backofficemock --outpkg backofficemock --name Client
