package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/storage/sqlite/migrations"
)

// StateStoreConfig is the configuration for the SQLite state store.
type StateStoreConfig struct {
	DBPath string
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *StateStoreConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// StateStore is a SQLite implementation of storage.StateStore.
type StateStore struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger log.Logger
}

// NewStateStore opens (creating it if required) the SQLite state database.
func NewStateStore(ctx context.Context, cfg StateStoreConfig) (*StateStore, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite state store initialized at %s", cfg.DBPath)

	return &StateStore{db: db, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (s *StateStore) Close() error { return s.db.Close() }

// Get returns the value of a key.
func (s *StateStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("key %s: %w", key, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query state: %w", err)
	}

	return value, nil
}

// Set replaces the value of a key.
func (s *StateStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, key, value, s.clock.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("could not upsert state: %w", err)
	}

	s.logger.Debugf("Stored key %s (%d bytes)", key, len(value))
	return nil
}

// Remove deletes a key, missing keys are ignored.
func (s *StateStore) Remove(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("could not delete state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}

	s.logger.Debugf("Removed key %s (%d rows)", key, rows)
	return nil
}
