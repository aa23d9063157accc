package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slok/opwatch/internal/app/job"
	"github.com/slok/opwatch/internal/app/scan"
	"github.com/slok/opwatch/internal/app/stats"
	"github.com/slok/opwatch/internal/backoffice"
	"github.com/slok/opwatch/internal/backoffice/fake"
	"github.com/slok/opwatch/internal/backoffice/httpclient"
	"github.com/slok/opwatch/internal/cache"
	"github.com/slok/opwatch/internal/conventions"
	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/notify"
	"github.com/slok/opwatch/internal/poll"
	"github.com/slok/opwatch/internal/preference"
	"github.com/slok/opwatch/internal/storage"
	"github.com/slok/opwatch/internal/storage/memory"
	"github.com/slok/opwatch/internal/storage/sqlite"
	"github.com/slok/opwatch/internal/task"
)

// Config configures the SDK client.
//
// Only the back office location is required, either APIURL or FakeAPI.
type Config struct {
	// DBPath is the SQLite database path where the state is persisted.
	// Default: ~/.opwatch/opwatch.db.
	DBPath string

	// InMemory keeps the state in memory instead of SQLite, nothing survives the client.
	InMemory bool

	// APIURL is the back office API root URL.
	APIURL string

	// APIToken is sent as bearer token to the back office.
	APIToken string

	// FakeAPI uses an in-memory simulated back office instead of APIURL.
	FakeAPI bool

	// StatsPollInterval is the statistics refresh interval while there is work in flight.
	// Default: 5s.
	StatsPollInterval time.Duration

	// JobPollInterval is the status poll interval of cleanup and validation jobs.
	// Default: 2s.
	JobPollInterval time.Duration

	// FreshnessWindow is the age under which cached statistics are fresh.
	// Default: 5m.
	FreshnessWindow time.Duration

	// NotificationTTL is how long a notification stays live. Default: 6s.
	NotificationTTL time.Duration

	// MaxNotifications is the number of live notifications retained. Default: 5.
	MaxNotifications int

	// OnNotification is called for every new notification.
	OnNotification func(n Notification)

	// OnTaskUpdate is called every time a job status poll changes its task.
	OnTaskUpdate func(t Task)

	// Clock is the time source. Default: the real clock.
	Clock clockwork.Clock

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if !c.InMemory && c.DBPath == "" {
		c.DBPath = conventions.DBPath()
		if c.DBPath == "" {
			return fmt.Errorf("could not get user home dir")
		}
	}

	if !c.FakeAPI && c.APIURL == "" {
		return fmt.Errorf("back office API URL is required")
	}

	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point to trigger and follow back office operations.
//
// It owns every component of the engine: the persisted state, the task registry, the scan
// history, the statistics cache, the notifications and the pollers. Create it with [New] and
// release it with [Client.Close]. A Client is safe for concurrent use.
type Client struct {
	registry    *task.Registry
	history     *task.History
	queue       *notify.Queue
	watcher     *poll.Watcher
	scheduler   *poll.Scheduler
	scans       *scan.Service
	jobs        *job.Service
	stats       *stats.Service
	activeViews *preference.ActiveViewRepository
	logger      log.Logger
	closeFns    []func() error
}

// New creates a new SDK client, rehydrating the state persisted by previous clients.
//
// The caller must call [Client.Close] when done:
//
//	client, err := lib.New(ctx, lib.Config{APIURL: "https://backoffice.example.com"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (c *Client, err error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c = &Client{logger: cfg.Logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	var store storage.StateStore
	if cfg.InMemory {
		store, err = memory.NewStateStore(memory.StateStoreConfig{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create memory state store: %w", err)
		}
	} else {
		sqliteStore, err := sqlite.NewStateStore(ctx, sqlite.StateStoreConfig{DBPath: cfg.DBPath, Clock: cfg.Clock, Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create sqlite state store: %w", err)
		}
		c.closeFns = append(c.closeFns, sqliteStore.Close)
		store = sqliteStore
	}

	state, err := storage.NewJSONState(store, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("could not create state: %w", err)
	}

	c.registry, err = task.NewRegistry(ctx, task.RegistryConfig{State: state, Clock: cfg.Clock, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create task registry: %w", err)
	}

	c.history, err = task.NewHistory(ctx, task.HistoryConfig{State: state, Clock: cfg.Clock, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create scan history: %w", err)
	}

	statsCache, err := cache.NewManager[model.Statistics](cache.ManagerConfig{
		State:           state,
		Key:             storage.KeyStatsCache,
		FreshnessWindow: cfg.FreshnessWindow,
		Clock:           cfg.Clock,
		Logger:          cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create statistics cache: %w", err)
	}

	c.queue, err = notify.NewQueue(notify.QueueConfig{
		TTL:     cfg.NotificationTTL,
		MaxLive: cfg.MaxNotifications,
		OnPush:  cfg.OnNotification,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create notification queue: %w", err)
	}
	c.closeFns = append(c.closeFns, func() error { c.queue.Close(); return nil })

	c.watcher, err = poll.NewWatcher(poll.WatcherConfig{Clock: cfg.Clock, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create job watcher: %w", err)
	}
	c.closeFns = append(c.closeFns, func() error { c.watcher.Stop(); return nil })

	c.scheduler, err = poll.NewScheduler(poll.SchedulerConfig{Name: "statistics", Clock: cfg.Clock, Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create statistics scheduler: %w", err)
	}
	c.closeFns = append(c.closeFns, func() error { c.scheduler.Stop(); return nil })

	client, err := newBackOffice(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create back office client: %w", err)
	}

	c.stats, err = stats.NewService(stats.ServiceConfig{
		Client:       client,
		Cache:        statsCache,
		Scheduler:    c.scheduler,
		ActiveWork:   c.registry.HasRunning,
		PollInterval: cfg.StatsPollInterval,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create statistics service: %w", err)
	}

	c.scans, err = scan.NewService(scan.ServiceConfig{
		Client:   client,
		Registry: c.registry,
		History:  c.history,
		Notifier: c.queue,
		Stats:    c.stats,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create scan service: %w", err)
	}

	c.jobs, err = job.NewService(job.ServiceConfig{
		Client:       client,
		Registry:     c.registry,
		Watcher:      c.watcher,
		Notifier:     c.queue,
		Stats:        c.stats,
		PollInterval: cfg.JobPollInterval,
		OnUpdate:     cfg.OnTaskUpdate,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create job service: %w", err)
	}

	c.activeViews, err = preference.NewActiveViewRepository(state, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("could not create view preferences: %w", err)
	}

	return c, nil
}

func newBackOffice(cfg Config) (backoffice.Client, error) {
	if cfg.FakeAPI {
		return fake.NewBackOffice(fake.BackOfficeConfig{Clock: cfg.Clock, Logger: cfg.Logger})
	}

	return httpclient.NewClient(httpclient.ClientConfig{
		BaseURL: cfg.APIURL,
		Token:   cfg.APIToken,
		Logger:  cfg.Logger,
	})
}

// Close stops the pollers and releases the resources held by the client, including the
// database connection. Remote operations are not affected. After Close returns, the client
// must not be used.
func (c *Client) Close() error {
	var errs []error
	// Reverse order, pollers stop before the store closes.
	for i := len(c.closeFns) - 1; i >= 0; i-- {
		if err := c.closeFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closeFns = nil

	return errors.Join(errs...)
}

// Scan runs a scan of a subject on the back office and waits for it.
//
// A scan failure is not returned as error, it's reported on the returned task. [ErrAlreadyRunning]
// is returned if the subject is already being scanned.
func (c *Client) Scan(ctx context.Context, subjectID string) (Task, error) {
	return c.scans.Run(ctx, scan.Request{SubjectID: subjectID})
}

// TriggerScan tracks a custom scan invocation as the scan of id, with the same bookkeeping
// as [Client.Scan].
func (c *Client) TriggerScan(ctx context.Context, id string, invoke func(ctx context.Context) (*ScanResult, error)) (Task, error) {
	return c.scans.Trigger(ctx, id, invoke)
}

// StartCleanup starts a cleanup job and follows it in the background.
func (c *Client) StartCleanup(ctx context.Context, opts CleanupOpts) (Task, error) {
	return c.jobs.Start(ctx, job.Request{Kind: model.TaskKindCleanup, SubjectID: opts.SubjectID, DryRun: opts.DryRun})
}

// StartValidation starts a validation job and follows it in the background.
func (c *Client) StartValidation(ctx context.Context, opts ValidationOpts) (Task, error) {
	return c.jobs.Start(ctx, job.Request{Kind: model.TaskKindValidation, SubjectID: opts.SubjectID})
}

// WaitJob blocks until the job is not followed anymore and returns its task.
func (c *Client) WaitJob(ctx context.Context, jobID string) (Task, error) {
	return c.jobs.Wait(ctx, jobID)
}

// ResumeJobs follows again the jobs that were running when a previous client was closed.
func (c *Client) ResumeJobs(ctx context.Context) ([]Task, error) {
	return c.jobs.Resume(ctx)
}

// FollowedJobs returns the number of jobs being followed.
func (c *Client) FollowedJobs() int {
	return c.watcher.Active()
}

// Tasks returns all the tracked tasks, most recent first.
func (c *Client) Tasks() []Task {
	return c.registry.List()
}

// GetTask returns a tracked task.
func (c *Client) GetTask(id string) (Task, error) {
	t, ok := c.registry.Get(id)
	if !ok {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// HasRunningTasks returns true if any task is in flight.
func (c *Client) HasRunningTasks() bool {
	return c.registry.HasRunning()
}

// ForgetTask stops tracking a task, it doesn't affect the remote operation.
func (c *Client) ForgetTask(ctx context.Context, id string) error {
	return c.registry.Forget(ctx, id)
}

// ScanHistory returns the scan history of all the subjects.
func (c *Client) ScanHistory() []ScanHistoryEntry {
	return c.history.List()
}

// Statistics returns the cached statistics without calling the back office.
func (c *Client) Statistics(ctx context.Context) StatsView {
	return c.stats.Load(ctx)
}

// RefreshStatistics fetches the statistics, degrading to the cached ones on transient failures.
func (c *Client) RefreshStatistics(ctx context.Context) (StatsView, error) {
	return c.stats.Refresh(ctx)
}

// EnsureStatsPolling refreshes the statistics periodically while there are tasks in flight.
func (c *Client) EnsureStatsPolling() bool {
	return c.stats.EnsurePolling()
}

// Notifications returns the live notifications, oldest first.
func (c *Client) Notifications() []Notification {
	return c.queue.List()
}

// DismissNotification removes a live notification.
func (c *Client) DismissNotification(id uint64) bool {
	return c.queue.Dismiss(id)
}

// ActiveView returns the last selected status view.
func (c *Client) ActiveView(ctx context.Context) View {
	return c.activeViews.Get(ctx)
}

// SetActiveView remembers the selected status view.
func (c *Client) SetActiveView(ctx context.Context, v View) error {
	return c.activeViews.Set(ctx, v)
}
