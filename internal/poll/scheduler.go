package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slok/opwatch/internal/log"
)

// SchedulerConfig is the configuration for the scheduler.
type SchedulerConfig struct {
	// Name identifies the logical poller in the logs.
	Name   string
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *SchedulerConfig) defaults() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "poll.Scheduler", "poller": c.Name})
	return nil
}

// Scheduler runs a periodic tick only while there is active work.
//
// On every interval it checks hasActiveWork: if there is work onTick is called, if not the
// scheduler stops its own ticker and goes idle until EnsureRunning is called again. At most one
// ticker per scheduler is alive. hasActiveWork is called with the scheduler lock held so it must
// not call back into the scheduler.
type Scheduler struct {
	clock  clockwork.Clock
	logger log.Logger

	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
	hasActiveWork func() bool
	onTick        func(ctx context.Context)
	interval      time.Duration
	ticker        clockwork.Ticker
	loopCancel    context.CancelFunc
	loopDone      chan struct{}
	generation    uint64
}

// NewScheduler returns a new idle scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  cfg.Clock,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// EnsureRunning arms the scheduler if there is active work and returns true if it's running.
//
// Calling it on a running scheduler replaces the callbacks and the interval of the current ticker
// instead of stacking a new one.
func (s *Scheduler) EnsureRunning(hasActiveWork func() bool, onTick func(ctx context.Context), interval time.Duration) bool {
	if interval <= 0 {
		s.logger.Errorf("Ignoring invalid poll interval %s", interval)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}

	s.hasActiveWork = hasActiveWork
	s.onTick = onTick

	if s.loopDone != nil {
		if interval != s.interval {
			s.interval = interval
			s.ticker.Reset(interval)
		}
		return true
	}

	if !hasActiveWork() {
		return false
	}

	s.interval = interval
	s.ticker = s.clock.NewTicker(interval)
	s.generation++
	ctx, cancel := context.WithCancel(s.ctx)
	s.loopCancel = cancel
	s.loopDone = make(chan struct{})
	go s.loop(ctx, s.generation, s.ticker, s.loopDone)

	s.logger.Debugf("Poller armed every %s", interval)
	return true
}

// Running returns true if the scheduler has a live ticker.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loopDone != nil
}

// Stop tears the scheduler down and waits for the running tick to end. The scheduler can't be
// armed again. It must not be called from onTick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	done := s.loopDone
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, generation uint64, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.disarm(generation)
			s.mu.Unlock()
			return
		case <-ticker.Chan():
		}

		// Deciding to go idle and disarming must be atomic so a concurrent EnsureRunning never
		// sees a loop that is about to exit.
		s.mu.Lock()
		if !s.hasActiveWork() {
			s.disarm(generation)
			s.mu.Unlock()
			s.logger.Debugf("No active work, poller going idle")
			return
		}
		onTick := s.onTick
		s.mu.Unlock()

		onTick(ctx)
	}
}

// disarm must be called with the lock held.
func (s *Scheduler) disarm(generation uint64) {
	if s.generation != generation || s.loopCancel == nil {
		return
	}
	s.loopCancel()
	s.loopCancel = nil
	s.loopDone = nil
	s.ticker = nil
}
