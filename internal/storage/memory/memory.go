package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
)

// StateStoreConfig is the configuration for the memory state store.
type StateStoreConfig struct {
	// Seed is the initial content of the store, it's copied.
	Seed   map[string][]byte
	Logger log.Logger
}

func (c *StateStoreConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// StateStore is an in-memory implementation of storage.StateStore.
type StateStore struct {
	values map[string][]byte
	mu     sync.RWMutex
	logger log.Logger
}

// NewStateStore creates a new memory state store.
func NewStateStore(cfg StateStoreConfig) (*StateStore, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	values := make(map[string][]byte, len(cfg.Seed))
	for k, v := range cfg.Seed {
		values[k] = copyBytes(v)
	}

	return &StateStore{
		values: values,
		logger: cfg.Logger,
	}, nil
}

// Get returns the value of a key.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("key %s: %w", key, model.ErrNotFound)
	}

	return copyBytes(v), nil
}

// Set replaces the value of a key.
func (s *StateStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = copyBytes(value)
	s.logger.Debugf("Stored key %s (%d bytes)", key, len(value))

	return nil
}

// Remove deletes a key, missing keys are ignored.
func (s *StateStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Dump returns a copy of the whole store, used to simulate a reload on a new process.
func (s *StateStore) Dump() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dump := maps.Clone(s.values)
	for k, v := range dump {
		dump[k] = copyBytes(v)
	}
	return dump
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
