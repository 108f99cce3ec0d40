package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tc.db"))
	require.NoError(t, err)
	return s
}

// TestSQLiteStoreSuite runs the full backend test suite against Store.
func TestSQLiteStoreSuite(t *testing.T) {
	suite := &storage.BackendTestSuite{
		NewBackend: func(t *testing.T) storage.Backend {
			return openTestStore(t)
		},
	}

	suite.RunAllTests(t)
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tc.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, storage.CollectionChatHistory, &storage.Record{
		Key:      "1700000000000-abcdefghi",
		Type:     "user",
		Content:  "hola",
		Metadata: map[string]any{"agent": "orquestador"},
	}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)

	got, err := s.Get(ctx, storage.CollectionChatHistory, "1700000000000-abcdefghi")
	require.NoError(t, err)
	assert.Equal(t, "orquestador", got.Metadata["agent"])
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
