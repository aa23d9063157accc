package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/slok/opwatch/internal/backoffice"
	"github.com/slok/opwatch/internal/cache"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/poll"
)

// DefaultPollInterval is the statistics refresh interval while there is work in flight.
const DefaultPollInterval = 5 * time.Second

// ServiceConfig is the configuration for the statistics service.
type ServiceConfig struct {
	Client backoffice.Client
	Cache  *cache.Manager[model.Statistics]
	// Scheduler refreshes the statistics periodically while ActiveWork reports work in flight.
	// Optional, without it only explicit refreshes happen.
	Scheduler    *poll.Scheduler
	ActiveWork   func() bool
	PollInterval time.Duration
	Logger       log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("back office client is required")
	}
	if c.Cache == nil {
		return fmt.Errorf("cache is required")
	}
	if c.Scheduler != nil && c.ActiveWork == nil {
		return fmt.Errorf("active work check is required when using a scheduler")
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "stats.Service"})
	return nil
}

// View is the statistics snapshot ready to be rendered.
type View struct {
	// Data is nil when there is nothing to show.
	Data      *model.Statistics
	FetchedAt time.Time
	// Fresh is true when the data is younger than the cache freshness window.
	Fresh bool
	// Degraded is true when a refresh failed and the cached data is shown instead.
	Degraded bool
	// Err is the refresh error of a degraded view.
	Err error
}

// Service serves the back office statistics through the cache.
type Service struct {
	client     backoffice.Client
	cache      *cache.Manager[model.Statistics]
	scheduler  *poll.Scheduler
	activeWork func() bool
	interval   time.Duration
	group      singleflight.Group
	logger     log.Logger
}

// NewService returns a new statistics service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		client:     cfg.Client,
		cache:      cfg.Cache,
		scheduler:  cfg.Scheduler,
		activeWork: cfg.ActiveWork,
		interval:   cfg.PollInterval,
		logger:     cfg.Logger,
	}, nil
}

// Load returns the cached statistics without hitting the back office.
func (s *Service) Load(ctx context.Context) View {
	entry := s.cache.Load(ctx)
	if entry == nil {
		return View{}
	}

	data := entry.Data
	return View{
		Data:      &data,
		FetchedAt: entry.Timestamp,
		Fresh:     s.cache.IsFresh(*entry),
	}
}

// Refresh fetches the statistics and updates the cache.
//
// Concurrent calls share a single fetch. Transient failures degrade to the cached data, if there
// is none model.ErrNoData is returned. Unauthorized errors are always returned, along with the
// cached data if any.
func (s *Service) Refresh(ctx context.Context) (View, error) {
	v, err, shared := s.group.Do("statistics", func() (any, error) {
		return s.refresh(ctx)
	})
	if shared {
		s.logger.Debugf("Joined in flight statistics refresh")
	}

	return v.(View), err
}

func (s *Service) refresh(ctx context.Context) (View, error) {
	stats, err := s.client.Statistics(ctx)
	if err == nil {
		entry := s.cache.Save(ctx, *stats)
		return View{Data: stats, FetchedAt: entry.Timestamp, Fresh: true}, nil
	}

	cached := s.Load(ctx)
	cached.Degraded = cached.Data != nil
	cached.Err = err

	if errors.Is(err, model.ErrUnauthorized) {
		return cached, fmt.Errorf("could not refresh statistics: %w", err)
	}

	if cached.Data == nil {
		return cached, fmt.Errorf("%w: %w", model.ErrNoData, err)
	}

	s.logger.Warningf("Statistics refresh failed, using cached data from %s: %s", cached.FetchedAt.Format(time.RFC3339), err)
	return cached, nil
}

// EnsurePolling arms the periodic refresh if there is work in flight, returns true when the
// periodic refresh is armed.
func (s *Service) EnsurePolling() bool {
	if s.scheduler == nil {
		return false
	}

	return s.scheduler.EnsureRunning(s.activeWork, func(ctx context.Context) {
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.Warningf("Scheduled statistics refresh failed: %s", err)
		}
	}, s.interval)
}

// Polling returns true if the periodic refresh is armed.
func (s *Service) Polling() bool {
	return s.scheduler != nil && s.scheduler.Running()
}
