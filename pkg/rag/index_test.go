package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuFFyGTLP/TC/pkg/storage"
	"github.com/RuFFyGTLP/TC/pkg/storage/memory"
)

type failingBackend struct {
	storage.Backend
	saves int
}

func (f *failingBackend) Save(ctx context.Context, collection string, rec *storage.Record) error {
	f.saves++
	return &storage.StorageUnavailableError{Cause: errors.New("disk full")}
}

func (f *failingBackend) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	return nil, &storage.StorageUnavailableError{Cause: errors.New("disk full")}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {}
func (l *recordingLogger) Info(msg string, args ...any)  {}
func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(msg string, args ...any) {}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

const sampleDoc = s1 + " " + s2 + " " + s3

func TestIndex_IndexDocument(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	backend := memory.NewMemoryStorage()
	idx := NewIndex(backend, WithClock(fixedClock(now)), WithChunking(60, DefaultChunkOverlap))
	ctx := context.Background()

	chunks := idx.IndexDocument(ctx, sampleDoc, map[string]any{"source": "arch.md"})
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, fmt.Sprintf("arch.md-1700000000000-%d", i), c.ID)
		assert.Equal(t, i, c.Metadata["chunkIndex"])
		assert.Equal(t, 3, c.Metadata["totalChunks"])
		assert.Equal(t, "arch.md", c.Metadata["source"])
		assert.Equal(t, Embed(c.Content), c.Embedding)
	}
	assert.Equal(t, 3, idx.Len())

	persisted, err := backend.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeChunk))
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	assert.Equal(t, chunks[0].Content, persisted[0].Content)
	assert.Equal(t, "arch.md", persisted[0].Metadata["source"])
}

func TestIndex_IDsStayUniqueOnSameMillisecond(t *testing.T) {
	idx := NewIndex(nil, WithClock(fixedClock(time.UnixMilli(1000))))
	ctx := context.Background()

	a := idx.IndexDocument(ctx, "Primer documento de pruebas.", nil)
	b := idx.IndexDocument(ctx, "Segundo documento de pruebas.", nil)

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, "doc-1000-0", a[0].ID)
	assert.Equal(t, "doc-1001-0", b[0].ID)
}

func TestIndex_IndexDocument_DoesNotMutateMetadata(t *testing.T) {
	idx := NewIndex(nil)
	meta := map[string]any{"source": "a.md"}

	idx.IndexDocument(context.Background(), "Contenido suficiente para indexar.", meta)
	assert.Equal(t, map[string]any{"source": "a.md"}, meta)
}

func TestIndex_IndexDocument_Empty(t *testing.T) {
	var changes []Change
	idx := NewIndex(nil, WithChangeListener(func(c Change) { changes = append(changes, c) }))

	assert.Empty(t, idx.IndexDocument(context.Background(), "", nil))
	assert.Zero(t, idx.Len())
	assert.Empty(t, changes)
}

func TestIndex_PersistenceFailureIsLogged(t *testing.T) {
	backend := &failingBackend{}
	log := &recordingLogger{}
	idx := NewIndex(backend, WithLogger(log), WithChunking(60, 0))

	chunks := idx.IndexDocument(context.Background(), sampleDoc, nil)
	require.Len(t, chunks, 3)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 3, backend.saves)
	assert.Len(t, log.warns, 3)
}

func TestIndex_Search(t *testing.T) {
	idx := NewIndex(nil, WithChunking(60, DefaultChunkOverlap))
	ctx := context.Background()
	chunks := idx.IndexDocument(ctx, sampleDoc, map[string]any{"source": "arch.md"})

	results := idx.Search(ctx, "arquitectura", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, chunks[0].ID, results[0].Chunk.ID)
	assert.Greater(t, results[0].Similarity, MinSimilarity)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
}

func TestIndex_Search_TopKBeforeThreshold(t *testing.T) {
	idx := NewIndex(nil)
	ctx := context.Background()

	idx.IndexDocument(ctx, "postgres postgres postgres", nil)
	idx.IndexDocument(ctx, "postgres replica", nil)
	idx.IndexDocument(ctx, "gatos perros", nil)

	results := idx.Search(ctx, "postgres", 1)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-9)

	all := idx.Search(ctx, "postgres", 10)
	assert.Len(t, all, 2, "unrelated chunk must be filtered")
}

func TestIndex_Search_StableTies(t *testing.T) {
	idx := NewIndex(nil)
	ctx := context.Background()

	first := idx.IndexDocument(ctx, "redis cache", map[string]any{"source": "a"})
	second := idx.IndexDocument(ctx, "redis cache", map[string]any{"source": "b"})

	results := idx.Search(ctx, "redis cache", 5)
	require.Len(t, results, 2)
	assert.Equal(t, first[0].ID, results[0].Chunk.ID)
	assert.Equal(t, second[0].ID, results[1].Chunk.ID)
}

func TestIndex_Search_Empty(t *testing.T) {
	idx := NewIndex(nil)
	assert.Empty(t, idx.Search(context.Background(), "cualquier cosa", 5))

	idx.IndexDocument(context.Background(), "Contenido sobre bases de datos.", nil)
	assert.Empty(t, idx.Search(context.Background(), "", 5))
}

func TestIndex_Clear(t *testing.T) {
	backend := memory.NewMemoryStorage()
	var kinds []ChangeKind
	idx := NewIndex(backend, WithChangeListener(func(c Change) { kinds = append(kinds, c.Kind) }))
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, storage.CollectionProjectContext, &storage.Record{
		Key: "mem-1", Type: storage.TypeMemory, Content: "un hecho",
	}))
	idx.IndexDocument(ctx, sampleDoc, nil)
	require.NotZero(t, idx.Len())

	idx.Clear(ctx)
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.Search(ctx, "arquitectura", 5))

	chunks, err := backend.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeChunk))
	require.NoError(t, err)
	assert.Empty(t, chunks)

	memories, err := backend.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeMemory))
	require.NoError(t, err)
	assert.Len(t, memories, 1)

	assert.Equal(t, []ChangeKind{ChangeIndexed, ChangeCleared}, kinds)
}

// listGatedBackend blocks the first GetAll until released.
type listGatedBackend struct {
	*memory.MemoryStorage
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *listGatedBackend) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.MemoryStorage.GetAll(ctx, collection, q)
}

func TestIndex_Clear_KeepsConcurrentIndex(t *testing.T) {
	backend := &listGatedBackend{
		MemoryStorage: memory.NewMemoryStorage(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	idx := NewIndex(backend)
	ctx := context.Background()

	old := idx.IndexDocument(ctx, sampleDoc, map[string]any{"source": "old.md"})
	require.NotEmpty(t, old)

	done := make(chan struct{})
	go func() {
		defer close(done)
		idx.Clear(ctx)
	}()
	<-backend.entered

	fresh := idx.IndexDocument(ctx, sampleDoc, map[string]any{"source": "new.md"})
	close(backend.release)
	<-done

	assert.Equal(t, len(fresh), idx.Len())
	recs, err := backend.MemoryStorage.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeChunk))
	require.NoError(t, err)
	require.Len(t, recs, len(fresh))
	for _, rec := range recs {
		assert.True(t, strings.HasPrefix(rec.Key, "new.md-"), rec.Key)
	}
}

func TestIndex_Clear_BackendFailure(t *testing.T) {
	log := &recordingLogger{}
	idx := NewIndex(&failingBackend{}, WithLogger(log))

	idx.Clear(context.Background())
	assert.Zero(t, idx.Len())
	assert.Len(t, log.warns, 1)
}

func TestIndex_Load(t *testing.T) {
	backend := memory.NewMemoryStorage()
	ctx := context.Background()

	writer := NewIndex(backend, WithChunking(60, 0))
	written := writer.IndexDocument(ctx, sampleDoc, map[string]any{"source": "arch.md"})

	var loaded Change
	reader := NewIndex(backend, WithChangeListener(func(c Change) { loaded = c }))
	n, err := reader.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(written), n)
	assert.Equal(t, ChangeLoaded, loaded.Kind)
	assert.Equal(t, len(written), loaded.Total)

	results := reader.Search(ctx, "arquitectura", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, written[0].ID, results[0].Chunk.ID)
	assert.Equal(t, Embed(written[0].Content), results[0].Chunk.Embedding)

	n, err = reader.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, len(written), reader.Len())
}

func TestIndex_Load_BackendFailure(t *testing.T) {
	_, err := NewIndex(&failingBackend{}).Load(context.Background())
	var unavailable *storage.StorageUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestIndex_Stats(t *testing.T) {
	idx := NewIndex(nil, WithChunking(60, 0))
	ctx := context.Background()
	idx.IndexDocument(ctx, sampleDoc, map[string]any{"source": "arch.md"})
	idx.IndexDocument(ctx, "Otro documento sin fuente.", nil)

	st := idx.Stats()
	assert.Equal(t, 4, st.Chunks)
	assert.Equal(t, map[string]int{"arch.md": 3, "doc": 1}, st.Sources)
}

func TestIndex_ConcurrentUse(t *testing.T) {
	idx := NewIndex(memory.NewMemoryStorage())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			idx.IndexDocument(ctx, fmt.Sprintf("Documento número %d sobre arquitectura.", i), nil)
		}(i)
		go func() {
			defer wg.Done()
			idx.Search(ctx, "arquitectura", 5)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, idx.Len())
	ids := make(map[string]bool)
	for _, c := range idx.Chunks() {
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
		assert.True(t, strings.HasPrefix(c.ID, "doc-"))
	}
}
