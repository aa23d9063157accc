package task_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/storage"
	"github.com/slok/opwatch/internal/storage/memory"
	"github.com/slok/opwatch/internal/storage/sqlite"
	"github.com/slok/opwatch/internal/task"
)

var t0 = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func newTestState(t *testing.T, store storage.StateStore) *storage.JSONState {
	t.Helper()

	if store == nil {
		s, err := memory.NewStateStore(memory.StateStoreConfig{})
		require.NoError(t, err)
		store = s
	}
	state, err := storage.NewJSONState(store, log.Noop)
	require.NoError(t, err)

	return state
}

func newTestRegistry(t *testing.T, clock clockwork.Clock) *task.Registry {
	t.Helper()

	r, err := task.NewRegistry(context.Background(), task.RegistryConfig{
		State: newTestState(t, nil),
		Clock: clock,
	})
	require.NoError(t, err)

	return r
}

func TestRegistryStateMachine(t *testing.T) {
	tests := map[string]struct {
		exec     func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry)
		expTask  model.Task
		expState model.TaskState
	}{
		"Starting a task should set it running from zero.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindCleanup)
			},
			expTask: model.Task{ID: "job-1", Kind: model.TaskKindCleanup, State: model.TaskStateRunning, StartedAt: t0},
		},
		"Updating a running task should set progress and message.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindCleanup)
				r.Update(ctx, "job-1", 40, "deleting duplicates")
			},
			expTask: model.Task{ID: "job-1", Kind: model.TaskKindCleanup, State: model.TaskStateRunning, StartedAt: t0, Progress: 40, Message: "deleting duplicates"},
		},
		"Progress should never go backwards.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindCleanup)
				r.Update(ctx, "job-1", 40, "step 2")
				r.Update(ctx, "job-1", 20, "step 3")
			},
			expTask: model.Task{ID: "job-1", Kind: model.TaskKindCleanup, State: model.TaskStateRunning, StartedAt: t0, Progress: 40, Message: "step 3"},
		},
		"Progress should be clamped to 100.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindCleanup)
				r.Update(ctx, "job-1", 180, "almost")
			},
			expTask: model.Task{ID: "job-1", Kind: model.TaskKindCleanup, State: model.TaskStateRunning, StartedAt: t0, Progress: 100, Message: "almost"},
		},
		"Completing a running task should set the result.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "journal_ventes", model.TaskKindScan)
				clock.Advance(time.Minute)
				r.Complete(ctx, "journal_ventes", model.TaskResult{AnomaliesFound: 4})
			},
			expTask: model.Task{
				ID: "journal_ventes", Kind: model.TaskKindScan, State: model.TaskStateSuccess, StartedAt: t0, Progress: 100,
				CompletedAt: ptrTime(t0.Add(time.Minute)), Result: &model.TaskResult{AnomaliesFound: 4},
			},
		},
		"Failing a running task should keep the progress and set the error.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindValidation)
				r.Update(ctx, "job-1", 60, "checking totals")
				clock.Advance(time.Minute)
				r.Fail(ctx, "job-1", "totals mismatch")
			},
			expTask: model.Task{
				ID: "job-1", Kind: model.TaskKindValidation, State: model.TaskStateError, StartedAt: t0,
				Progress: 60, Message: "checking totals", CompletedAt: ptrTime(t0.Add(time.Minute)), Error: "totals mismatch",
			},
		},
		"Updating after completion should be a no-op.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "journal_ventes", model.TaskKindScan)
				r.Complete(ctx, "journal_ventes", model.TaskResult{AnomaliesFound: 4})
				r.Update(ctx, "journal_ventes", 50, "late poll")
			},
			expTask: model.Task{
				ID: "journal_ventes", Kind: model.TaskKindScan, State: model.TaskStateSuccess, StartedAt: t0, Progress: 100,
				CompletedAt: ptrTime(t0), Result: &model.TaskResult{AnomaliesFound: 4},
			},
		},
		"Updating after failure should be a no-op.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindCleanup)
				r.Fail(ctx, "job-1", "boom")
				r.Update(ctx, "job-1", 90, "late poll")
			},
			expTask: model.Task{
				ID: "job-1", Kind: model.TaskKindCleanup, State: model.TaskStateError, StartedAt: t0,
				CompletedAt: ptrTime(t0), Error: "boom",
			},
		},
		"Failing after completion should be a no-op.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "job-1", model.TaskKindCleanup)
				r.Complete(ctx, "job-1", model.TaskResult{})
				r.Fail(ctx, "job-1", "late failure")
			},
			expTask: model.Task{
				ID: "job-1", Kind: model.TaskKindCleanup, State: model.TaskStateSuccess, StartedAt: t0, Progress: 100,
				CompletedAt: ptrTime(t0), Result: &model.TaskResult{},
			},
		},
		"Restarting a finished task should clear the previous outcome.": {
			exec: func(ctx context.Context, clock *clockwork.FakeClock, r *task.Registry) {
				_, _ = r.Start(ctx, "journal_ventes", model.TaskKindScan)
				r.Fail(ctx, "journal_ventes", "timeout")
				clock.Advance(time.Hour)
				_, _ = r.Start(ctx, "journal_ventes", model.TaskKindScan)
			},
			expTask: model.Task{ID: "journal_ventes", Kind: model.TaskKindScan, State: model.TaskStateRunning, StartedAt: t0.Add(time.Hour)},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			clock := clockwork.NewFakeClockAt(t0)
			r := newTestRegistry(t, clock)

			test.exec(context.Background(), clock, r)

			got, ok := r.Get(test.expTask.ID)
			require.True(ok)
			assert.Equal(test.expTask, got)
			assert.Equal(test.expTask.State, r.State(test.expTask.ID))
		})
	}
}

func TestRegistryStartValidation(t *testing.T) {
	tests := map[string]struct {
		id     string
		kind   model.TaskKind
		expErr error
	}{
		"An empty id should fail.":      {id: " ", kind: model.TaskKindScan, expErr: model.ErrNotValid},
		"An unknown kind should fail.":  {id: "x", kind: "export", expErr: model.ErrNotValid},
		"A valid task should be added.": {id: "x", kind: model.TaskKindScan},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			r := newTestRegistry(t, clockwork.NewFakeClockAt(t0))

			_, err := r.Start(context.Background(), test.id, test.kind)
			if test.expErr != nil {
				assert.True(t, errors.Is(err, test.expErr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistryStartIfIdle(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	clock := clockwork.NewFakeClockAt(t0)
	r := newTestRegistry(t, clock)

	first, err := r.StartIfIdle(ctx, "journal_ventes", model.TaskKindScan)
	require.NoError(err)
	require.True(r.Update(ctx, "journal_ventes", 30, "scanning"))

	// A duplicate while running is rejected and doesn't reset the attempt.
	clock.Advance(time.Minute)
	_, err = r.StartIfIdle(ctx, "journal_ventes", model.TaskKindScan)
	assert.ErrorIs(err, model.ErrAlreadyRunning)

	got, ok := r.Get("journal_ventes")
	require.True(ok)
	assert.Equal(first.StartedAt, got.StartedAt)
	assert.Equal(30, got.Progress)

	// Once terminal a new attempt starts from scratch.
	r.Fail(ctx, "journal_ventes", "boom")
	second, err := r.StartIfIdle(ctx, "journal_ventes", model.TaskKindScan)
	require.NoError(err)
	assert.Equal(t0.Add(time.Minute), second.StartedAt)
	assert.Equal(0, second.Progress)
	assert.Empty(second.Error)
}

func TestRegistryIdleAndQueries(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	clock := clockwork.NewFakeClockAt(t0)
	r := newTestRegistry(t, clock)

	assert.Equal(model.TaskStateIdle, r.State("unknown"))
	assert.False(r.HasRunning())
	assert.False(r.Update(ctx, "unknown", 10, "nope"))

	_, err := r.Start(ctx, "journal_ventes", model.TaskKindScan)
	require.NoError(err)
	clock.Advance(time.Second)
	_, err = r.Start(ctx, "job-1", model.TaskKindCleanup)
	require.NoError(err)
	clock.Advance(time.Second)
	_, err = r.Start(ctx, "job-2", model.TaskKindValidation)
	require.NoError(err)
	r.Complete(ctx, "job-2", model.TaskResult{})

	assert.True(r.HasRunning())

	ids := func(tasks []model.Task) []string {
		var ids []string
		for _, t := range tasks {
			ids = append(ids, t.ID)
		}
		return ids
	}
	assert.Equal([]string{"job-2", "job-1", "journal_ventes"}, ids(r.List()))
	assert.Equal([]string{"job-1", "journal_ventes"}, ids(r.Running()))
	assert.Equal([]string{"job-1"}, ids(r.Running(model.TaskKindCleanup, model.TaskKindValidation)))

	require.NoError(r.Forget(ctx, "job-1"))
	require.NoError(r.Forget(ctx, "journal_ventes"))
	assert.False(r.HasRunning())
	assert.True(errors.Is(r.Forget(ctx, "job-1"), model.ErrNotFound))
}

func TestRegistryReloadPersistence(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	clock := clockwork.NewFakeClockAt(t0)

	// First process.
	store1, err := sqlite.NewStateStore(ctx, sqlite.StateStoreConfig{DBPath: dbPath})
	require.NoError(err)
	r1, err := task.NewRegistry(ctx, task.RegistryConfig{State: newTestState(t, store1), Clock: clock})
	require.NoError(err)
	_, err = r1.Start(ctx, "job-1", model.TaskKindCleanup)
	require.NoError(err)
	r1.Update(ctx, "job-1", 35, "archiving")
	require.NoError(store1.Close())

	// Second process.
	clock.Advance(time.Hour)
	store2, err := sqlite.NewStateStore(ctx, sqlite.StateStoreConfig{DBPath: dbPath})
	require.NoError(err)
	defer store2.Close()
	r2, err := task.NewRegistry(ctx, task.RegistryConfig{State: newTestState(t, store2), Clock: clock})
	require.NoError(err)

	got, ok := r2.Get("job-1")
	require.True(ok)
	assert.Equal(model.TaskStateRunning, got.State)
	assert.Equal(35, got.Progress)
	assert.Equal("archiving", got.Message)
	assert.True(t0.Equal(got.StartedAt))
	assert.True(r2.HasRunning())
}

func TestRegistryRehydrateDropsInvalidTasks(t *testing.T) {
	store, err := memory.NewStateStore(memory.StateStoreConfig{Seed: map[string][]byte{
		storage.KeyTasks: []byte(`{
			"ok": {"id": "ok", "kind": "scan", "state": "running", "started_at": "2026-10-15T10:00:00Z"},
			"bad-kind": {"id": "bad-kind", "kind": "export", "state": "running"},
			"bad-id": {"id": "other", "kind": "scan", "state": "running"}
		}`),
	}})
	require.NoError(t, err)

	r, err := task.NewRegistry(context.Background(), task.RegistryConfig{State: newTestState(t, store)})
	require.NoError(t, err)

	tasks := r.List()
	require.Len(t, tasks, 1)
	assert.Equal(t, "ok", tasks[0].ID)
}

func TestRegistryRehydrateCorruptState(t *testing.T) {
	store, err := memory.NewStateStore(memory.StateStoreConfig{Seed: map[string][]byte{
		storage.KeyTasks: []byte(`{"ok": {`),
	}})
	require.NoError(t, err)

	r, err := task.NewRegistry(context.Background(), task.RegistryConfig{State: newTestState(t, store)})
	require.NoError(t, err)
	assert.Empty(t, r.List())
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestStateSurvivesCancelledContext(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	dbPath := filepath.Join(t.TempDir(), "state.db")
	clock := clockwork.NewFakeClockAt(t0)

	// First process, interrupted while the scan was in flight.
	store1, err := sqlite.NewStateStore(context.Background(), sqlite.StateStoreConfig{DBPath: dbPath})
	require.NoError(err)
	state1 := newTestState(t, store1)
	r1, err := task.NewRegistry(context.Background(), task.RegistryConfig{State: state1, Clock: clock})
	require.NoError(err)
	h1, err := task.NewHistory(context.Background(), task.HistoryConfig{State: state1, Clock: clock})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = r1.StartIfIdle(ctx, "journal_ventes", model.TaskKindScan)
	require.NoError(err)
	cancel()

	_, ok := r1.Fail(ctx, "journal_ventes", context.Canceled.Error())
	require.True(ok)
	h1.RecordFailure(ctx, "journal_ventes")
	require.NoError(store1.Close())

	// Second process.
	store2, err := sqlite.NewStateStore(context.Background(), sqlite.StateStoreConfig{DBPath: dbPath})
	require.NoError(err)
	defer store2.Close()
	state2 := newTestState(t, store2)
	r2, err := task.NewRegistry(context.Background(), task.RegistryConfig{State: state2, Clock: clock})
	require.NoError(err)
	h2, err := task.NewHistory(context.Background(), task.HistoryConfig{State: state2, Clock: clock})
	require.NoError(err)

	got, ok := r2.Get("journal_ventes")
	require.True(ok)
	assert.Equal(model.TaskStateError, got.State)
	assert.False(r2.HasRunning())

	entry, ok := h2.Get("journal_ventes")
	require.True(ok)
	assert.Equal(1, entry.FailedScans)

	// The subject is not locked.
	_, err = r2.StartIfIdle(context.Background(), "journal_ventes", model.TaskKindScan)
	assert.NoError(err)
}
