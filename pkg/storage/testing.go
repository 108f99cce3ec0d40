package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendTestSuite defines a test suite that can be run against any Backend implementation.
type BackendTestSuite struct {
	NewBackend func(t *testing.T) Backend
}

// RunAllTests runs all backend tests against the provided implementation.
func (s *BackendTestSuite) RunAllTests(t *testing.T) {
	t.Run("SaveAndGet", s.TestSaveAndGet)
	t.Run("SaveReplaces", s.TestSaveReplaces)
	t.Run("GetAllByType", s.TestGetAllByType)
	t.Run("GetAllByMetadata", s.TestGetAllByMetadata)
	t.Run("CollectionsIsolated", s.TestCollectionsIsolated)
	t.Run("Delete", s.TestDelete)
	t.Run("Clear", s.TestClear)
	t.Run("NotFound", s.TestNotFound)
	t.Run("InvalidRecord", s.TestInvalidRecord)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
}

func sampleChunk(key string) *Record {
	return &Record{
		Key:     key,
		Type:    TypeChunk,
		Content: "El sistema usa una arquitectura de microservicios.",
		Metadata: map[string]any{
			"source":      "notes.md",
			"chunkIndex":  0,
			"totalChunks": 1,
		},
		UpdatedAt: time.Now().UTC(),
	}
}

func keysOf(recs []*Record) []string {
	keys := make([]string, 0, len(recs))
	for _, r := range recs {
		keys = append(keys, r.Key)
	}
	sort.Strings(keys)
	return keys
}

// TestSaveAndGet tests a basic round trip.
func (s *BackendTestSuite) TestSaveAndGet(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	rec := sampleChunk("notes.md-1-0")
	require.NoError(t, b.Save(ctx, CollectionProjectContext, rec))

	got, err := b.Get(ctx, CollectionProjectContext, "notes.md-1-0")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, TypeChunk, got.Type)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, "notes.md", got.Metadata["source"])
}

// TestSaveReplaces tests last-write-wins semantics.
func (s *BackendTestSuite) TestSaveReplaces(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, CollectionProjectContext, sampleChunk("k")))
	updated := sampleChunk("k")
	updated.Content = "replaced"
	updated.Type = TypeMemory
	require.NoError(t, b.Save(ctx, CollectionProjectContext, updated))

	got, err := b.Get(ctx, CollectionProjectContext, "k")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.Content)

	chunks, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeChunk))
	require.NoError(t, err)
	assert.Empty(t, chunks, "type index must follow the latest write")

	memories, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeMemory))
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keysOf(memories))
}

// TestGetAllByType tests filtering on the type index.
func (s *BackendTestSuite) TestGetAllByType(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Save(ctx, CollectionProjectContext, sampleChunk(fmt.Sprintf("chunk-%d", i))))
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Save(ctx, CollectionProjectContext, &Record{
			Key:      fmt.Sprintf("mem-%d", i),
			Type:     TypeMemory,
			Content:  "usaremos PostgreSQL",
			Metadata: map[string]any{"importance": 0.7},
		}))
	}

	chunks, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeChunk))
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-0", "chunk-1", "chunk-2"}, keysOf(chunks))

	memories, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeMemory))
	require.NoError(t, err)
	assert.Equal(t, []string{"mem-0", "mem-1"}, keysOf(memories))
	assert.InDelta(t, 0.7, memories[0].Metadata["importance"], 1e-9)

	all, err := b.GetAll(ctx, CollectionProjectContext, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

// TestGetAllByMetadata tests filtering on a metadata field.
func (s *BackendTestSuite) TestGetAllByMetadata(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	for i, agent := range []string{"orquestador", "implementador", "orquestador"} {
		require.NoError(t, b.Save(ctx, CollectionChatHistory, &Record{
			Key:      fmt.Sprintf("msg-%d", i),
			Type:     "agent",
			Content:  "hola",
			Metadata: map[string]any{"agent": agent},
		}))
	}

	got, err := b.GetAll(ctx, CollectionChatHistory, &Query{Index: "agent", Value: "orquestador"})
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-0", "msg-2"}, keysOf(got))
}

// TestCollectionsIsolated tests that collections do not share keys.
func (s *BackendTestSuite) TestCollectionsIsolated(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, CollectionProjectContext, sampleChunk("shared")))
	require.NoError(t, b.Save(ctx, CollectionState, &Record{Key: "shared", Content: "{}"}))

	require.NoError(t, b.Clear(ctx, CollectionState))

	got, err := b.Get(ctx, CollectionProjectContext, "shared")
	require.NoError(t, err)
	assert.Equal(t, TypeChunk, got.Type)

	_, err = b.Get(ctx, CollectionState, "shared")
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

// TestDelete tests record removal.
func (s *BackendTestSuite) TestDelete(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, CollectionProjectContext, sampleChunk("a")))
	require.NoError(t, b.Save(ctx, CollectionProjectContext, sampleChunk("b")))
	require.NoError(t, b.Delete(ctx, CollectionProjectContext, "a"))
	require.NoError(t, b.Delete(ctx, CollectionProjectContext, "missing"))

	chunks, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeChunk))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keysOf(chunks))
}

// TestClear tests collection truncation.
func (s *BackendTestSuite) TestClear(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Save(ctx, CollectionProjectContext, sampleChunk(fmt.Sprintf("c-%d", i))))
	}
	require.NoError(t, b.Clear(ctx, CollectionProjectContext))

	all, err := b.GetAll(ctx, CollectionProjectContext, nil)
	require.NoError(t, err)
	assert.Empty(t, all)

	byType, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeChunk))
	require.NoError(t, err)
	assert.Empty(t, byType)
}

// TestNotFound tests the typed not-found error.
func (s *BackendTestSuite) TestNotFound(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()

	_, err := b.Get(context.Background(), CollectionProjectContext, "nope")
	require.Error(t, err)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %T", err)
	assert.Equal(t, "nope", nf.Key)
}

// TestInvalidRecord tests argument validation.
func (s *BackendTestSuite) TestInvalidRecord(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	var invalid *InvalidRecordError
	assert.True(t, errors.As(b.Save(ctx, CollectionProjectContext, nil), &invalid))
	assert.True(t, errors.As(b.Save(ctx, CollectionProjectContext, &Record{}), &invalid))
	assert.True(t, errors.As(b.Save(ctx, "", sampleChunk("x")), &invalid))
}

// TestConcurrentAccess tests parallel writers.
func (s *BackendTestSuite) TestConcurrentAccess(t *testing.T) {
	b := s.NewBackend(t)
	defer b.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := b.Save(ctx, CollectionProjectContext, sampleChunk(fmt.Sprintf("p-%02d", i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := b.GetAll(ctx, CollectionProjectContext, ByType(TypeChunk))
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
