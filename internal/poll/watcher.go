package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slok/opwatch/internal/log"
)

// TickFunc polls a single tracked operation, it returns true once the operation doesn't need
// more polling.
type TickFunc func(ctx context.Context) (done bool)

// WatcherConfig is the configuration for the watcher.
type WatcherConfig struct {
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *WatcherConfig) defaults() error {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "poll.Watcher"})
	return nil
}

type watch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Watcher polls individual operations unconditionally at a fixed interval, each one with its own
// dedicated ticker, until their tick reports they are done.
type Watcher struct {
	clock   clockwork.Clock
	logger  log.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	watches map[string]*watch
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewWatcher returns a new watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		watches: map[string]*watch{},
	}, nil
}

// Watch starts polling id every interval. An existing watch for the same id is replaced. The
// returned channel is closed when the watch ends, either because the tick reported done, the
// watch was replaced or removed, or the watcher was stopped.
func (w *Watcher) Watch(id string, interval time.Duration, tick TickFunc) (<-chan struct{}, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid poll interval %s", interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return nil, fmt.Errorf("watcher is stopped")
	}

	if old, ok := w.watches[id]; ok {
		old.cancel()
		w.logger.Debugf("Replacing watch of %s", id)
	}

	ctx, cancel := context.WithCancel(w.ctx)
	wt := &watch{cancel: cancel, done: make(chan struct{})}
	w.watches[id] = wt
	ticker := w.clock.NewTicker(interval)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer close(wt.done)
		defer ticker.Stop()
		defer w.release(id, wt)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			}

			if tick(ctx) {
				w.logger.Debugf("Watch of %s finished", id)
				return
			}
		}
	}()

	w.logger.Debugf("Watching %s every %s", id, interval)
	return wt.done, nil
}

// Unwatch stops polling id.
func (w *Watcher) Unwatch(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if wt, ok := w.watches[id]; ok {
		wt.cancel()
		delete(w.watches, id)
	}
}

// Watching returns true if id has a live watch.
func (w *Watcher) Watching(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.watches[id]
	return ok
}

// Active returns the number of live watches.
func (w *Watcher) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.watches)
}

// Stop stops all the watches and waits for them to end.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) release(id string, wt *watch) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wt.cancel()
	if w.watches[id] == wt {
		delete(w.watches, id)
	}
}
