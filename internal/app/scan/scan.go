package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/backoffice"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/task"
)

// Notifier shows notifications to the user.
type Notifier interface {
	Push(message string, severity model.Severity) model.Notification
}

// StatsRefresher refreshes the statistics that depend on the scan results.
type StatsRefresher interface {
	Refresh(ctx context.Context) (stats.View, error)
	EnsurePolling() bool
}

// ServiceConfig is the configuration for the scan service.
type ServiceConfig struct {
	Client   backoffice.Client
	Registry *task.Registry
	History  *task.History
	Notifier Notifier
	// Stats is optional, without it statistics are not refreshed after a scan.
	Stats  StatsRefresher
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Registry == nil {
		return fmt.Errorf("task registry is required")
	}
	if c.History == nil {
		return fmt.Errorf("history is required")
	}
	if c.Notifier == nil {
		return fmt.Errorf("notifier is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scan.Service"})
	return nil
}

// InvokeFunc runs the remote operation tracked by a trigger.
type InvokeFunc func(ctx context.Context) (*model.ScanResult, error)

// Service triggers scans and keeps the task, history, notifications and statistics in sync
// with their outcome.
type Service struct {
	client   backoffice.Client
	registry *task.Registry
	history  *task.History
	notifier Notifier
	stats    StatsRefresher
	logger   log.Logger
}

// NewService creates a new scan service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		client:   cfg.Client,
		registry: cfg.Registry,
		history:  cfg.History,
		notifier: cfg.Notifier,
		stats:    cfg.Stats,
		logger:   cfg.Logger,
	}, nil
}

// Trigger tracks invoke as the scan of id and waits for it.
//
// A trigger of an id that is already running is rejected with model.ErrAlreadyRunning. Failures
// of invoke are not returned, they end up in the returned task and in an error notification.
func (s *Service) Trigger(ctx context.Context, id string, invoke InvokeFunc) (model.Task, error) {
	if invoke == nil {
		return model.Task{}, fmt.Errorf("invoke function is required: %w", model.ErrNotValid)
	}

	t, err := s.registry.StartIfIdle(ctx, id, model.TaskKindScan)
	if err != nil {
		return t, fmt.Errorf("could not start scan: %w", err)
	}
	s.logger.Infof("Scan of %s started", id)

	if s.stats != nil {
		s.stats.EnsurePolling()
	}

	res, err := invoke(ctx)
	if err == nil && res == nil {
		err = fmt.Errorf("empty scan result")
	}
	if err != nil {
		return s.fail(ctx, id, err), nil
	}

	return s.complete(ctx, id, *res), nil
}

// Request represents the scan request parameters.
type Request struct {
	SubjectID string
}

// Run scans a subject on the back office.
func (s *Service) Run(ctx context.Context, req Request) (model.Task, error) {
	if s.client == nil {
		return model.Task{}, fmt.Errorf("back office client is not configured")
	}

	return s.Trigger(ctx, req.SubjectID, func(ctx context.Context) (*model.ScanResult, error) {
		return s.client.TriggerScan(ctx, req.SubjectID)
	})
}

func (s *Service) complete(ctx context.Context, id string, res model.ScanResult) model.Task {
	t, ok := s.registry.Complete(ctx, id, model.TaskResult{
		AnomaliesFound: res.AnomaliesFound,
		Details:        res.Details,
	})
	if !ok {
		s.logger.Warningf("Scan of %s finished but it was no longer running, ignoring result", id)
		return t
	}

	s.history.RecordSuccess(ctx, id, res.AnomaliesFound)
	s.notifier.Push(fmt.Sprintf("Scan of %s completed: %d anomalies found", id, res.AnomaliesFound), model.SeveritySuccess)
	s.logger.Infof("Scan of %s completed with %d anomalies", id, res.AnomaliesFound)

	if s.stats != nil {
		if _, err := s.stats.Refresh(ctx); err != nil {
			s.logger.Warningf("Could not refresh statistics after scan: %s", err)
		}
	}

	return t
}

func (s *Service) fail(ctx context.Context, id string, err error) model.Task {
	// Scans can't be resumed, a cancelled wait would leave the subject locked forever. The task
	// ends in error but the remote scan didn't fail, so the history is not touched.
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		t, ok := s.registry.Fail(ctx, id, fmt.Sprintf("stopped waiting for the scan result: %s", err))
		if ok {
			s.notifier.Push(fmt.Sprintf("Stopped waiting for the scan of %s, it may still finish on the back office", id), model.SeverityWarning)
			s.logger.Warningf("Scan of %s cancelled while waiting for the result: %s", id, err)
		}
		return t
	}

	t, ok := s.registry.Fail(ctx, id, err.Error())
	if !ok {
		s.logger.Warningf("Scan of %s failed but it was no longer running: %s", id, err)
		return t
	}

	s.history.RecordFailure(ctx, id)
	s.notifier.Push(fmt.Sprintf("Scan of %s failed: %s", id, err), model.SeverityError)
	s.logger.Errorf("Scan of %s failed: %s", id, err)

	return t
}
