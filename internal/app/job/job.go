package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/backoffice"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/poll"
	"github.com/slok/opwatch/internal/task"
)

// DefaultPollInterval is the status poll interval of every job.
const DefaultPollInterval = 2 * time.Second

// Notifier shows notifications to the user.
type Notifier interface {
	Push(message string, severity model.Severity) model.Notification
}

// StatsRefresher refreshes the statistics affected by the jobs.
type StatsRefresher interface {
	Refresh(ctx context.Context) (stats.View, error)
	EnsurePolling() bool
}

// ServiceConfig is the configuration for the job service.
type ServiceConfig struct {
	Client   backoffice.Client
	Registry *task.Registry
	Watcher  *poll.Watcher
	Notifier Notifier
	// Stats is optional, without it statistics are not refreshed after a job.
	Stats        StatsRefresher
	PollInterval time.Duration
	// OnUpdate is called with the task after every status poll that changed it.
	OnUpdate func(t model.Task)
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("back office client is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("task registry is required")
	}
	if c.Watcher == nil {
		return fmt.Errorf("watcher is required")
	}
	if c.Notifier == nil {
		return fmt.Errorf("notifier is required")
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.OnUpdate == nil {
		c.OnUpdate = func(model.Task) {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "job.Service"})
	return nil
}

// Service starts long running back office jobs (cleanups and validations) and follows them
// polling their status until they finish.
type Service struct {
	client   backoffice.Client
	registry *task.Registry
	watcher  *poll.Watcher
	notifier Notifier
	stats    StatsRefresher
	interval time.Duration
	onUpdate func(t model.Task)
	logger   log.Logger

	mu      sync.Mutex
	watches map[string]<-chan struct{}
}

// NewService creates a new job service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		client:   cfg.Client,
		registry: cfg.Registry,
		watcher:  cfg.Watcher,
		notifier: cfg.Notifier,
		stats:    cfg.Stats,
		interval: cfg.PollInterval,
		onUpdate: cfg.OnUpdate,
		logger:   cfg.Logger,
		watches:  map[string]<-chan struct{}{},
	}, nil
}

// Request represents the job start parameters.
type Request struct {
	Kind      model.TaskKind
	SubjectID string
	DryRun    bool
}

// Start starts a job on the back office and begins tracking it, the task id is the job id.
func (s *Service) Start(ctx context.Context, req Request) (model.Task, error) {
	if !req.Kind.Pollable() {
		return model.Task{}, fmt.Errorf("%q is not a job kind: %w", req.Kind, model.ErrNotValid)
	}

	jobID, err := s.client.StartJob(ctx, req.Kind, model.JobRequest{SubjectID: req.SubjectID, DryRun: req.DryRun})
	if err != nil {
		return model.Task{}, fmt.Errorf("could not start %s job: %w", req.Kind, err)
	}

	t, err := s.registry.StartIfIdle(ctx, jobID, req.Kind)
	if err != nil {
		return t, fmt.Errorf("could not track %s job: %w", req.Kind, err)
	}
	s.logger.Infof("%s job %s started", req.Kind, jobID)

	if err := s.watch(jobID); err != nil {
		return t, err
	}
	if s.stats != nil {
		s.stats.EnsurePolling()
	}

	return t, nil
}

// Resume re-arms the polling of the running jobs known by the registry that are not being
// watched, it returns the resumed tasks.
func (s *Service) Resume(ctx context.Context) ([]model.Task, error) {
	var resumed []model.Task
	for _, t := range s.registry.Running(model.TaskKindCleanup, model.TaskKindValidation) {
		if s.watcher.Watching(t.ID) {
			continue
		}
		if err := s.watch(t.ID); err != nil {
			return resumed, err
		}
		resumed = append(resumed, t)
		s.logger.Infof("Resumed watching %s job %s", t.Kind, t.ID)
	}

	if len(resumed) > 0 && s.stats != nil {
		s.stats.EnsurePolling()
	}

	return resumed, nil
}

// Wait blocks until the job stops being watched and returns its task.
func (s *Service) Wait(ctx context.Context, jobID string) (model.Task, error) {
	s.mu.Lock()
	done, ok := s.watches[jobID]
	s.mu.Unlock()

	if ok {
		select {
		case <-ctx.Done():
			return model.Task{}, ctx.Err()
		case <-done:
		}
	}

	t, found := s.registry.Get(jobID)
	if !found {
		return model.Task{}, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}
	if !ok && t.Running() {
		return t, fmt.Errorf("job %s is not being watched: %w", jobID, model.ErrNotValid)
	}

	return t, nil
}

func (s *Service) watch(jobID string) error {
	done, err := s.watcher.Watch(jobID, s.interval, func(ctx context.Context) bool {
		return s.poll(ctx, jobID)
	})
	if err != nil {
		return fmt.Errorf("could not watch job %s: %w", jobID, err)
	}

	s.mu.Lock()
	s.watches[jobID] = done
	s.mu.Unlock()

	return nil
}

// poll fetches the job status and applies it, returns true when the job doesn't need more polling.
func (s *Service) poll(ctx context.Context, jobID string) bool {
	current, ok := s.registry.Get(jobID)
	if !ok || !current.Running() {
		s.logger.Debugf("Job %s is no longer running, stop watching", jobID)
		return true
	}

	st, err := s.client.JobStatus(ctx, jobID)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return true
		case errors.Is(err, model.ErrUnauthorized):
			s.logger.Warningf("Stop watching job %s: %s", jobID, err)
			s.notifier.Push(fmt.Sprintf("Lost access while following %s job %s", current.Kind, jobID), model.SeverityWarning)
			return true
		case errors.Is(err, model.ErrNotFound):
			s.finish(ctx, current, func() (model.Task, bool) {
				return s.registry.Fail(ctx, jobID, "job not found on the back office")
			})
			return true
		default:
			s.logger.Warningf("Could not poll job %s, will retry: %s", jobID, err)
			return false
		}
	}

	switch st.Status {
	case model.JobStatusComplete:
		s.finish(ctx, current, func() (model.Task, bool) {
			return s.registry.Complete(ctx, jobID, model.TaskResult{Details: st.Result})
		})
		return true
	case model.JobStatusFailed, model.JobStatusError:
		msg := st.Error
		if msg == "" {
			msg = fmt.Sprintf("job reported %s status", st.Status)
		}
		s.finish(ctx, current, func() (model.Task, bool) {
			return s.registry.Fail(ctx, jobID, msg)
		})
		return true
	default:
		if !s.registry.Update(ctx, jobID, st.Progress, st.StepName) {
			return true
		}
		if t, ok := s.registry.Get(jobID); ok {
			s.onUpdate(t)
		}
		return false
	}
}

func (s *Service) finish(ctx context.Context, current model.Task, transition func() (model.Task, bool)) {
	t, ok := transition()
	if !ok {
		s.logger.Debugf("Job %s already finished, ignoring status", current.ID)
		return
	}
	s.onUpdate(t)

	if t.State == model.TaskStateError {
		s.logger.Errorf("%s job %s failed: %s", t.Kind, t.ID, t.Error)
		s.notifier.Push(fmt.Sprintf("%s job %s failed: %s", kindTitle(t.Kind), t.ID, t.Error), model.SeverityError)
		return
	}

	s.logger.Infof("%s job %s completed", t.Kind, t.ID)
	s.notifier.Push(fmt.Sprintf("%s job %s completed", kindTitle(t.Kind), t.ID), model.SeveritySuccess)
	if s.stats != nil {
		if _, err := s.stats.Refresh(ctx); err != nil {
			s.logger.Warningf("Could not refresh statistics after job: %s", err)
		}
	}
}

func kindTitle(k model.TaskKind) string {
	switch k {
	case model.TaskKindCleanup:
		return "Cleanup"
	case model.TaskKindValidation:
		return "Validation"
	}
	return string(k)
}
