package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/slok/opwatch/internal/backoffice"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
)

// FailPrefix makes any scan or job on a subject with this prefix fail.
const FailPrefix = "fail_"

var defaultSteps = []string{"queued", "collecting", "analyzing", "applying", "done"}

// BackOfficeConfig is the configuration for the fake back office.
type BackOfficeConfig struct {
	// Steps are the job steps, a job advances one step per status poll.
	Steps  []string
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *BackOfficeConfig) defaults() error {
	if len(c.Steps) == 0 {
		c.Steps = defaultSteps
	}
	if len(c.Steps) < 2 {
		return fmt.Errorf("at least 2 steps are required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "backoffice.Fake"})
	return nil
}

type job struct {
	kind   model.TaskKind
	req    model.JobRequest
	step   int
	result map[string]any
}

// BackOffice is an in memory simulation of the back office API.
//
// Scans return a deterministic anomaly count per subject and jobs advance one step every time
// their status is requested.
type BackOffice struct {
	steps     []string
	jobs      map[string]*job
	anomalies map[string]int
	open      map[string]int
	clock     clockwork.Clock
	logger    log.Logger
	mu        sync.Mutex
}

var _ backoffice.Client = &BackOffice{}

// NewBackOffice returns a new fake back office.
func NewBackOffice(cfg BackOfficeConfig) (*BackOffice, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &BackOffice{
		steps:     cfg.Steps,
		jobs:      map[string]*job{},
		anomalies: map[string]int{},
		open:      map[string]int{},
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}, nil
}

// AnomaliesFor is the deterministic number of anomalies a scan of subjectID finds.
func AnomaliesFor(subjectID string) int {
	sum := 0
	for _, b := range []byte(subjectID) {
		sum += int(b)
	}
	return sum % 7
}

func (b *BackOffice) TriggerScan(ctx context.Context, subjectID string) (*model.ScanResult, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required: %w", model.ErrNotValid)
	}
	if strings.HasPrefix(subjectID, FailPrefix) {
		return nil, fmt.Errorf("%w: simulated scan failure on %s", model.ErrUnavailable, subjectID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := AnomaliesFor(subjectID)
	b.anomalies[subjectID] += n
	b.open[subjectID] += n
	b.logger.Infof("Fake scan of %s found %d anomalies", subjectID, n)

	return &model.ScanResult{
		AnomaliesFound: n,
		Details:        map[string]any{"subject_id": subjectID},
	}, nil
}

func (b *BackOffice) StartJob(ctx context.Context, kind model.TaskKind, req model.JobRequest) (string, error) {
	if !kind.Pollable() {
		return "", fmt.Errorf("%q is not a job kind: %w", kind, model.ErrNotValid)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(b.clock.Now()), rand.Reader).String()
	b.jobs[id] = &job{kind: kind, req: req}
	b.logger.Infof("Started fake %s job %s", kind, id)

	return id, nil
}

func (b *BackOffice) JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}

	last := len(b.steps) - 1
	st := &model.JobStatus{
		Status:   model.JobStatusProcessing,
		Progress: j.step * 100 / last,
		StepName: b.steps[j.step],
	}

	switch {
	case j.step == 0:
		st.Status = model.JobStatusPending
	case strings.HasPrefix(j.req.SubjectID, FailPrefix) && j.step >= last/2:
		st.Status = model.JobStatusFailed
		st.Error = fmt.Sprintf("simulated %s failure on %s", j.kind, j.req.SubjectID)
		return st, nil
	case j.step == last:
		st.Status = model.JobStatusComplete
		st.Result = b.complete(j)
		return st, nil
	}

	j.step++
	return st, nil
}

// complete computes the job result once, the status of a finished job is stable.
func (b *BackOffice) complete(j *job) map[string]any {
	if j.result != nil {
		return j.result
	}

	switch j.kind {
	case model.TaskKindCleanup:
		subjects := slices.Collect(maps.Keys(b.open))
		if j.req.SubjectID != "" {
			subjects = []string{j.req.SubjectID}
		}
		removed := 0
		for _, s := range subjects {
			removed += b.open[s]
		}
		if j.req.DryRun {
			j.result = map[string]any{"would_remove": removed, "dry_run": true}
			break
		}
		for _, s := range subjects {
			delete(b.open, s)
		}
		j.result = map[string]any{"removed": removed}
	default:
		j.result = map[string]any{"validated_models": len(b.anomalies)}
	}

	return j.result
}

func (b *BackOffice) Statistics(ctx context.Context) (*model.Statistics, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	total, open := 0, 0
	for _, v := range b.open {
		open += v
	}
	byModel := make(map[string]int, len(b.anomalies))
	for k, v := range b.anomalies {
		total += v
		byModel[k] = v
	}

	return &model.Statistics{
		TotalAnomalies:   total,
		OpenAnomalies:    open,
		ScannedModels:    len(b.anomalies),
		AnomaliesByModel: byModel,
		GeneratedAt:      b.clock.Now().UTC(),
	}, nil
}
