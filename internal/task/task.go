package task

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/storage"
)

// RegistryConfig is the configuration for the task registry.
type RegistryConfig struct {
	State  *storage.JSONState
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.State == nil {
		return fmt.Errorf("state is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.Registry"})
	return nil
}

// Registry tracks the remote operations observed by the client.
//
// The state machine per id is idle -> running -> success|error. A new attempt starts from scratch
// with Start. Every mutation persists the whole task map.
type Registry struct {
	tasks  map[string]model.Task
	state  *storage.JSONState
	clock  clockwork.Clock
	logger log.Logger
	mu     sync.RWMutex
}

// NewRegistry creates a registry rehydrated from the persisted state.
func NewRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tasks := storage.Load(ctx, cfg.State, storage.KeyTasks, map[string]model.Task{})
	if tasks == nil {
		tasks = map[string]model.Task{}
	}

	running := 0
	for id, t := range tasks {
		if t.ID != id || t.Kind.Validate() != nil {
			cfg.Logger.Warningf("Dropping invalid persisted task %q", id)
			delete(tasks, id)
			continue
		}
		if t.Running() {
			running++
		}
	}
	cfg.Logger.Debugf("Registry rehydrated with %d tasks (%d running)", len(tasks), running)

	return &Registry{
		tasks:  tasks,
		state:  cfg.State,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Start creates or overwrites the task of id as running, clearing any previous outcome.
func (r *Registry) Start(ctx context.Context, id string, kind model.TaskKind) (model.Task, error) {
	return r.start(ctx, id, kind, false)
}

// StartIfIdle is like Start but returns model.ErrAlreadyRunning, leaving the task untouched,
// if id is already running. The check and the start are atomic.
func (r *Registry) StartIfIdle(ctx context.Context, id string, kind model.TaskKind) (model.Task, error) {
	return r.start(ctx, id, kind, true)
}

func (r *Registry) start(ctx context.Context, id string, kind model.TaskKind, onlyIdle bool) (model.Task, error) {
	if strings.TrimSpace(id) == "" {
		return model.Task{}, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if err := kind.Validate(); err != nil {
		return model.Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.tasks[id]; ok && onlyIdle && current.Running() {
		return current, fmt.Errorf("task %s: %w", id, model.ErrAlreadyRunning)
	}

	t := model.Task{
		ID:        id,
		Kind:      kind,
		State:     model.TaskStateRunning,
		Progress:  0,
		StartedAt: r.clock.Now().UTC(),
	}
	r.tasks[id] = t
	r.persist(ctx)

	r.logger.Debugf("Task %s (%s) started", id, kind)
	return t, nil
}

// Update sets the progress and message of a running task.
//
// It's a no-op returning false when the task is not running, late poll responses that arrive after
// a terminal transition must not overwrite it. Progress never goes backwards and is clamped to 0-100.
func (r *Registry) Update(ctx context.Context, id string, progress int, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || !t.Running() {
		r.logger.Debugf("Ignoring update for task %s, not running", id)
		return false
	}

	progress = min(max(progress, 0), 100)
	if progress > t.Progress {
		t.Progress = progress
	}
	t.Message = message
	r.tasks[id] = t
	r.persist(ctx)

	return true
}

// Complete moves a running task to success.
func (r *Registry) Complete(ctx context.Context, id string, result model.TaskResult) (model.Task, bool) {
	return r.finish(ctx, id, func(t *model.Task) {
		t.State = model.TaskStateSuccess
		t.Progress = 100
		t.Result = &result
	})
}

// Fail moves a running task to error.
func (r *Registry) Fail(ctx context.Context, id string, errMsg string) (model.Task, bool) {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	return r.finish(ctx, id, func(t *model.Task) {
		t.State = model.TaskStateError
		t.Error = errMsg
	})
}

func (r *Registry) finish(ctx context.Context, id string, f func(t *model.Task)) (model.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || !t.Running() {
		r.logger.Debugf("Ignoring terminal transition for task %s, not running", id)
		return t, false
	}

	now := r.clock.Now().UTC()
	t.CompletedAt = &now
	t.Result = nil
	t.Error = ""
	f(&t)
	r.tasks[id] = t
	r.persist(ctx)

	r.logger.Debugf("Task %s finished with state %s", id, t.State)
	return t, true
}

// Get returns the task of id.
func (r *Registry) Get(id string) (model.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	return t, ok
}

// State returns the state of id, idle if the registry doesn't know it.
func (r *Registry) State(id string) model.TaskState {
	t, ok := r.Get(id)
	if !ok {
		return model.TaskStateIdle
	}
	return t.State
}

// List returns all the tasks, most recently started first.
func (r *Registry) List() []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortTasks(slices.Collect(maps.Values(r.tasks)))
}

// Running returns the running tasks, optionally filtered by kind.
func (r *Registry) Running(kinds ...model.TaskKind) []model.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tasks []model.Task
	for _, t := range r.tasks {
		if !t.Running() {
			continue
		}
		if len(kinds) > 0 && !slices.Contains(kinds, t.Kind) {
			continue
		}
		tasks = append(tasks, t)
	}

	return sortTasks(tasks)
}

// HasRunning returns true if any task is in flight.
func (r *Registry) HasRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		if t.Running() {
			return true
		}
	}
	return false
}

// Forget removes a task whatever its state is.
func (r *Registry) Forget(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	delete(r.tasks, id)
	r.persist(ctx)

	r.logger.Infof("Task %s forgotten", id)
	return nil
}

// persist must be called with the lock held so writes keep the mutation order.
func (r *Registry) persist(ctx context.Context) {
	r.state.Save(ctx, storage.KeyTasks, r.tasks)
}

func sortTasks(tasks []model.Task) []model.Task {
	slices.SortFunc(tasks, func(a, b model.Task) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return tasks
}
