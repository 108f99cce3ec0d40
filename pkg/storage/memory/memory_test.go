package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

// TestMemoryStorageSuite runs the full backend test suite against MemoryStorage.
func TestMemoryStorageSuite(t *testing.T) {
	suite := &storage.BackendTestSuite{
		NewBackend: func(t *testing.T) storage.Backend {
			return NewMemoryStorage()
		},
	}

	suite.RunAllTests(t)
}

func TestMemoryStorage_DeepCopy(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	rec := &storage.Record{
		Key:      "k",
		Type:     storage.TypeChunk,
		Metadata: map[string]any{"source": "a.md", "tags": []any{"x"}},
	}
	require.NoError(t, s.Save(ctx, storage.CollectionProjectContext, rec))

	rec.Metadata["source"] = "mutated"
	rec.Metadata["tags"].([]any)[0] = "y"

	got, err := s.Get(ctx, storage.CollectionProjectContext, "k")
	require.NoError(t, err)
	assert.Equal(t, "a.md", got.Metadata["source"])
	assert.Equal(t, []any{"x"}, got.Metadata["tags"])

	got.Metadata["source"] = "changed again"
	again, err := s.Get(ctx, storage.CollectionProjectContext, "k")
	require.NoError(t, err)
	assert.Equal(t, "a.md", again.Metadata["source"])
}

func TestMemoryStorage_SaveAfterClose(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.Close())

	err := s.Save(context.Background(), storage.CollectionState, &storage.Record{Key: "k"})
	var unavailable *storage.StorageUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestMemoryStorage_Len(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	assert.Equal(t, 0, s.Len(storage.CollectionChatHistory))
	require.NoError(t, s.Save(ctx, storage.CollectionChatHistory, &storage.Record{Key: "1"}))
	require.NoError(t, s.Save(ctx, storage.CollectionChatHistory, &storage.Record{Key: "2"}))
	assert.Equal(t, 2, s.Len(storage.CollectionChatHistory))
}
