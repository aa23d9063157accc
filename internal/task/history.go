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

// HistoryConfig is the configuration for the scan history.
type HistoryConfig struct {
	State  *storage.JSONState
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *HistoryConfig) defaults() error {
	if c.State == nil {
		return fmt.Errorf("state is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "task.History"})
	return nil
}

// History keeps the per subject scan aggregates. Entries are created on the first recorded attempt
// and are never deleted.
type History struct {
	entries map[string]model.ScanHistoryEntry
	state   *storage.JSONState
	clock   clockwork.Clock
	logger  log.Logger
	mu      sync.RWMutex
}

// NewHistory creates a history rehydrated from the persisted state.
func NewHistory(ctx context.Context, cfg HistoryConfig) (*History, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	entries := storage.Load(ctx, cfg.State, storage.KeyHistory, map[string]model.ScanHistoryEntry{})
	if entries == nil {
		entries = map[string]model.ScanHistoryEntry{}
	}
	for id, e := range entries {
		e.SubjectID = id
		entries[id] = e
	}

	return &History{
		entries: entries,
		state:   cfg.State,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// RecordSuccess accounts a successful scan of a subject.
func (h *History) RecordSuccess(ctx context.Context, subjectID string, anomaliesFound int) model.ScanHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entries[subjectID]
	e.SubjectID = subjectID
	e.LastScan = h.clock.Now().UTC()
	e.TotalScans++
	e.TotalAnomalies += anomaliesFound
	e.AnomaliesFound = anomaliesFound
	h.entries[subjectID] = e
	h.state.Save(ctx, storage.KeyHistory, h.entries)

	h.logger.Debugf("Recorded scan of %s: %d anomalies (%d scans)", subjectID, anomaliesFound, e.TotalScans)
	return e
}

// RecordFailure accounts a failed scan of a subject, success counters are not touched.
func (h *History) RecordFailure(ctx context.Context, subjectID string) model.ScanHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now().UTC()
	e := h.entries[subjectID]
	e.SubjectID = subjectID
	e.FailedScans++
	e.LastFailure = &now
	h.entries[subjectID] = e
	h.state.Save(ctx, storage.KeyHistory, h.entries)

	return e
}

// Get returns the history of a subject.
func (h *History) Get(subjectID string) (model.ScanHistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.entries[subjectID]
	return e, ok
}

// List returns all the entries sorted by subject.
func (h *History) List() []model.ScanHistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	entries := slices.Collect(maps.Values(h.entries))
	slices.SortFunc(entries, func(a, b model.ScanHistoryEntry) int {
		return strings.Compare(a.SubjectID, b.SubjectID)
	})
	return entries
}
