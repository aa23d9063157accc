package notify

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
)

const (
	// DefaultTTL is how long a notification stays live.
	DefaultTTL = 6 * time.Second
	// DefaultMaxLive is the number of live notifications retained.
	DefaultMaxLive = 5
)

// QueueConfig is the configuration for the notification queue.
type QueueConfig struct {
	TTL     time.Duration
	MaxLive int
	// OnPush is called (outside the queue lock) for every pushed notification.
	OnPush func(n model.Notification)
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *QueueConfig) defaults() error {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if c.MaxLive == 0 {
		c.MaxLive = DefaultMaxLive
	}
	if c.MaxLive < 0 {
		return fmt.Errorf("max live must be positive")
	}
	if c.OnPush == nil {
		c.OnPush = func(model.Notification) {}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Queue"})
	return nil
}

// Queue is a bounded list of self expiring notifications.
type Queue struct {
	live    []model.Notification
	timers  map[uint64]clockwork.Timer
	lastID  uint64
	ttl     time.Duration
	maxLive int
	onPush  func(n model.Notification)
	clock   clockwork.Clock
	logger  log.Logger
	mu      sync.Mutex
}

// NewQueue returns a new notification queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Queue{
		timers:  map[uint64]clockwork.Timer{},
		ttl:     cfg.TTL,
		maxLive: cfg.MaxLive,
		onPush:  cfg.OnPush,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// Push appends a notification, dropping the oldest ones above the live limit, and schedules its
// own removal after the TTL.
func (q *Queue) Push(message string, severity model.Severity) model.Notification {
	if severity.Validate() != nil {
		severity = model.SeverityInfo
	}

	q.mu.Lock()
	q.lastID++
	n := model.Notification{
		ID:        q.lastID,
		Message:   message,
		Severity:  severity,
		CreatedAt: q.clock.Now().UTC(),
	}
	q.live = append(q.live, n)

	if overflow := len(q.live) - q.maxLive; overflow > 0 {
		for _, dropped := range q.live[:overflow] {
			q.stopTimer(dropped.ID)
		}
		q.live = slices.Clone(q.live[overflow:])
	}

	id := n.ID
	q.timers[id] = q.clock.AfterFunc(q.ttl, func() { q.expire(id) })
	q.mu.Unlock()

	q.logger.Debugf("Notification %d pushed (%s): %s", n.ID, n.Severity, n.Message)
	q.onPush(n)

	return n
}

// Dismiss removes a notification now, returns false if it was not live.
func (q *Queue) Dismiss(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopTimer(id)
	return q.remove(id)
}

// List returns the live notifications in arrival order.
func (q *Queue) List() []model.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.live)
}

// Close stops all the pending expiry timers and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id := range q.timers {
		q.stopTimer(id)
	}
	q.live = nil
}

func (q *Queue) expire(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.timers, id)
	if q.remove(id) {
		q.logger.Debugf("Notification %d expired", id)
	}
}

func (q *Queue) remove(id uint64) bool {
	i := slices.IndexFunc(q.live, func(n model.Notification) bool { return n.ID == id })
	if i < 0 {
		return false
	}
	q.live = slices.Delete(q.live, i, i+1)
	return true
}

func (q *Queue) stopTimer(id uint64) {
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}
