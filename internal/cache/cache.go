package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/storage"
)

// DefaultFreshnessWindow is the age under which a cached statistics snapshot is as good as a live fetch.
const DefaultFreshnessWindow = 5 * time.Minute

// ManagerConfig is the configuration for the cache manager.
type ManagerConfig struct {
	State           *storage.JSONState
	Key             string
	FreshnessWindow time.Duration
	Clock           clockwork.Clock
	Logger          log.Logger
}

func (c *ManagerConfig) defaults() error {
	if c.State == nil {
		return fmt.Errorf("state is required")
	}
	if c.Key == "" {
		c.Key = storage.KeyStatsCache
	}
	if c.FreshnessWindow == 0 {
		c.FreshnessWindow = DefaultFreshnessWindow
	}
	if c.FreshnessWindow < 0 {
		return fmt.Errorf("freshness window must be positive")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "cache.Manager", "key": c.Key})
	return nil
}

// Manager keeps the last successful snapshot of T on the state store.
//
// Stale entries are still returned, callers decide what to do with them using IsFresh.
type Manager[T any] struct {
	state  *storage.JSONState
	key    string
	window time.Duration
	clock  clockwork.Clock
	logger log.Logger
}

// NewManager returns a new cache manager.
func NewManager[T any](cfg ManagerConfig) (*Manager[T], error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager[T]{
		state:  cfg.State,
		key:    cfg.Key,
		window: cfg.FreshnessWindow,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Load returns the persisted entry regardless of its age, nil if there is none or it can't be decoded.
func (m *Manager[T]) Load(ctx context.Context) *model.CacheEntry[T] {
	entry := storage.Load[*model.CacheEntry[T]](ctx, m.state, m.key, nil)
	if entry == nil {
		return nil
	}

	if entry.Timestamp.IsZero() {
		m.logger.Warningf("Ignoring cache entry without timestamp")
		return nil
	}

	return entry
}

// IsFresh returns true if the entry is younger than the freshness window.
func (m *Manager[T]) IsFresh(entry model.CacheEntry[T]) bool {
	return entry.Fresh(m.clock.Now(), m.window)
}

// Save replaces the cached entry with data stamped with the current time.
func (m *Manager[T]) Save(ctx context.Context, data T) model.CacheEntry[T] {
	entry := model.CacheEntry[T]{
		Data:      data,
		Timestamp: m.clock.Now().UTC(),
	}
	m.state.Save(ctx, m.key, entry)
	m.logger.Debugf("Cache entry saved")

	return entry
}

// FreshnessWindow returns the configured freshness window.
func (m *Manager[T]) FreshnessWindow() time.Duration { return m.window }
