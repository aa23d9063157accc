package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/opwatch/internal/log"
	"github.com/slok/opwatch/internal/model"
	"github.com/slok/opwatch/internal/storage/sqlite"
)

func newTestStore(t *testing.T, dbPath string) *sqlite.StateStore {
	t.Helper()

	s, err := sqlite.NewStateStore(context.Background(), sqlite.StateStoreConfig{
		DBPath: dbPath,
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestNewStateStore(t *testing.T) {
	tests := map[string]struct {
		cfg    sqlite.StateStoreConfig
		expErr bool
	}{
		"Missing db path should fail.": {
			cfg:    sqlite.StateStoreConfig{},
			expErr: true,
		},
		"A db path in a missing directory should be created.": {
			cfg: sqlite.StateStoreConfig{
				DBPath: filepath.Join(t.TempDir(), "nested", "dir", "state.db"),
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := sqlite.NewStateStore(context.Background(), test.cfg)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, s.Close())
		})
	}
}

func TestStateStoreCRUD(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	s := newTestStore(t, filepath.Join(t.TempDir(), "state.db"))

	_, err := s.Get(ctx, "scan_status")
	assert.True(errors.Is(err, model.ErrNotFound))

	require.NoError(s.Set(ctx, "scan_status", []byte(`{"a":1}`)))
	got, err := s.Get(ctx, "scan_status")
	require.NoError(err)
	assert.Equal([]byte(`{"a":1}`), got)

	require.NoError(s.Set(ctx, "scan_status", []byte(`{"a":2}`)))
	got, err = s.Get(ctx, "scan_status")
	require.NoError(err)
	assert.Equal([]byte(`{"a":2}`), got)

	require.NoError(s.Remove(ctx, "scan_status"))
	_, err = s.Get(ctx, "scan_status")
	assert.True(errors.Is(err, model.ErrNotFound))

	// Removing missing keys is not an error.
	assert.NoError(s.Remove(ctx, "scan_status"))
}

func TestStateStoreSurvivesReopen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "state.db")

	s1, err := sqlite.NewStateStore(ctx, sqlite.StateStoreConfig{DBPath: dbPath})
	require.NoError(err)
	require.NoError(s1.Set(ctx, "active_view", []byte(`"history"`)))
	require.NoError(s1.Close())

	s2 := newTestStore(t, dbPath)
	got, err := s2.Get(ctx, "active_view")
	require.NoError(err)
	assert.Equal(t, []byte(`"history"`), got)
}
