package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
)

// Keys of the persisted state, each component owns one.
const (
	KeyTasks      = "scan_status"
	KeyHistory    = "scan_history"
	KeyActiveView = "active_view"
	KeyStatsCache = "stats_cache"
)

// StateStore is a key value store that outlives the process.
//
// Get returns model.ErrNotFound when the key is missing.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// JSONState stores JSON encoded values on a StateStore.
//
// Reads never fail, missing or corrupt values fall back to the caller default. Writes are best
// effort, failures are logged and never returned to the caller.
type JSONState struct {
	store  StateStore
	logger log.Logger
}

// NewJSONState returns a new JSONState.
func NewJSONState(store StateStore, logger log.Logger) (*JSONState, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &JSONState{
		store:  store,
		logger: logger.WithValues(log.Kv{"svc": "storage.JSONState"}),
	}, nil
}

// Load decodes the value of key, def is returned if the key is missing or can't be decoded.
func Load[T any](ctx context.Context, s *JSONState, key string, def T) T {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warningf("could not read %q state, using defaults: %s", key, err)
		}
		return def
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.logger.Warningf("corrupt %q state, using defaults: %s", key, err)
		return def
	}

	return v
}

// Save encodes and stores v under key.
//
// The write ignores the cancellation of ctx, the in memory state has already changed and the
// store must not diverge from it.
func (s *JSONState) Save(ctx context.Context, key string, v any) {
	ctx = context.WithoutCancel(ctx)

	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Errorf("could not encode %q state: %s", key, err)
		return
	}

	if err := s.store.Set(ctx, key, data); err != nil {
		s.logger.Errorf("could not persist %q state: %s", key, err)
		return
	}
}

// Remove deletes the value of key, like Save it ignores the cancellation of ctx.
func (s *JSONState) Remove(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.Remove(ctx, key)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		s.logger.Errorf("could not remove %q state: %s", key, err)
	}
}
