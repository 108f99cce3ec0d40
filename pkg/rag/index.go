// Package rag implements the retrieval index: sentence chunking, sparse
// term-frequency embeddings, cosine ranking and prompt context assembly.
package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/RuFFyGTLP/TC/pkg/storage"
	"github.com/RuFFyGTLP/TC/pkg/storage/noop"
)

const tracerName = "tc.rag"

// Search defaults.
const (
	DefaultSearchTopK  = 5
	DefaultContextTopK = 10
	MinSimilarity      = 0.1
)

// Chunk is an indexed slice of a document. Chunks are immutable once
// created; callers must not modify the maps they carry.
type Chunk struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Embedding TermFrequencyMap `json:"embedding,omitempty"`
	Metadata  map[string]any   `json:"metadata"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Source returns the chunk's metadata source, or "" when unset.
func (c Chunk) Source() string {
	return stringValue(c.Metadata["source"])
}

// Result is a chunk with its similarity to a query.
type Result struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

// Recorder receives index metrics. *metrics.Manager implements it.
type Recorder interface {
	RecordDocumentIndexed(chunks int)
	RecordSearch(ctx context.Context, hit bool, duration time.Duration)
	SetIndexSize(n int)
	RecordPersistFailure(operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDocumentIndexed(int)                          {}
func (nopRecorder) RecordSearch(context.Context, bool, time.Duration) {}
func (nopRecorder) SetIndexSize(int)                                   {}
func (nopRecorder) RecordPersistFailure(string)                        {}

// indexLogger is the minimal logger interface used by Index.
type indexLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// ChangeKind identifies an index mutation.
type ChangeKind string

const (
	ChangeIndexed ChangeKind = "indexed"
	ChangeCleared ChangeKind = "cleared"
	ChangeLoaded  ChangeKind = "loaded"
)

// Change describes an index mutation delivered to listeners.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Source string     `json:"source,omitempty"`
	Chunks int        `json:"chunks"`
	Total  int        `json:"total"`
}

// ChangeListener is called synchronously after every index mutation.
type ChangeListener func(Change)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l indexLogger) Option {
	return func(idx *Index) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(idx *Index) {
		if r != nil {
			idx.recorder = r
		}
	}
}

// WithChangeListener registers a mutation callback.
func WithChangeListener(fn ChangeListener) Option {
	return func(idx *Index) {
		if fn != nil {
			idx.listeners = append(idx.listeners, fn)
		}
	}
}

// WithChunking overrides the chunk size and overlap.
func WithChunking(size, overlap int) Option {
	return func(idx *Index) {
		if size > 0 {
			idx.chunkSize = size
		}
		if overlap >= 0 {
			idx.chunkOverlap = overlap
		}
	}
}

// WithContextTopK sets how many results BuildContext considers.
func WithContextTopK(k int) Option {
	return func(idx *Index) {
		if k > 0 {
			idx.contextTopK = k
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(idx *Index) {
		if now != nil {
			idx.now = now
		}
	}
}

// Index is an in-memory document index with best-effort persistence.
type Index struct {
	mu        sync.RWMutex
	chunks    []Chunk
	ids       map[string]struct{}
	lastStamp int64

	backend      storage.Backend
	logger       indexLogger
	recorder     Recorder
	listeners    []ChangeListener
	chunkSize    int
	chunkOverlap int
	contextTopK  int
	now          func() time.Time
}

// NewIndex creates an empty index. A nil backend disables persistence.
func NewIndex(backend storage.Backend, opts ...Option) *Index {
	if backend == nil {
		backend = noop.New()
	}
	idx := &Index{
		ids:          make(map[string]struct{}),
		backend:      backend,
		logger:       nopLogger{},
		recorder:     nopRecorder{},
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		contextTopK:  DefaultContextTopK,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// IndexDocument chunks and embeds content, stores the chunks and returns
// them. Persistence failures are logged and do not fail the call.
func (idx *Index) IndexDocument(ctx context.Context, content string, metadata map[string]any) []Chunk {
	ctx, span := tracer().Start(ctx, "rag.index_document")
	defer span.End()

	texts := ChunkText(content, idx.chunkSize, idx.chunkOverlap)
	prefix := stringValue(metadata["source"])
	if prefix == "" {
		prefix = "doc"
	}
	span.SetAttributes(attribute.String("rag.source", prefix), attribute.Int("rag.chunks", len(texts)))

	if len(texts) == 0 {
		return nil
	}

	now := idx.now().UTC()
	docs := make([]Chunk, len(texts))

	idx.mu.Lock()
	stamp := idx.nextStampLocked(now)
	for i, text := range texts {
		meta := storage.CloneMetadata(metadata)
		if meta == nil {
			meta = make(map[string]any, 2)
		}
		meta["chunkIndex"] = i
		meta["totalChunks"] = len(texts)

		docs[i] = Chunk{
			ID:        fmt.Sprintf("%s-%d-%d", prefix, stamp, i),
			Content:   text,
			Embedding: Embed(text),
			Metadata:  meta,
			CreatedAt: now,
		}
		idx.chunks = append(idx.chunks, docs[i])
		idx.ids[docs[i].ID] = struct{}{}
	}
	total := len(idx.chunks)
	idx.mu.Unlock()

	idx.recorder.RecordDocumentIndexed(len(docs))
	idx.recorder.SetIndexSize(total)

	ids := make([]string, len(docs))
	for i, doc := range docs {
		idx.persist(ctx, doc)
		ids[i] = doc.ID
	}
	// A Clear that ran during the saves must not leave these behind.
	idx.deleteUnindexed(ctx, ids)

	source := stringValue(metadata["source"])
	if source == "" {
		source = "document"
	}
	idx.logger.Info("indexed document", "source", source, "chunks", len(docs))
	idx.notify(Change{Kind: ChangeIndexed, Source: stringValue(metadata["source"]), Chunks: len(docs), Total: total})

	return docs
}

// nextStampLocked returns a millisecond stamp strictly greater than the
// previous one so chunk ids stay unique within a process.
func (idx *Index) nextStampLocked(now time.Time) int64 {
	ms := now.UnixMilli()
	if ms <= idx.lastStamp {
		ms = idx.lastStamp + 1
	}
	idx.lastStamp = ms
	return ms
}

func (idx *Index) persist(ctx context.Context, c Chunk) {
	rec := &storage.Record{
		Key:       c.ID,
		Type:      storage.TypeChunk,
		Content:   c.Content,
		Metadata:  c.Metadata,
		UpdatedAt: c.CreatedAt,
	}
	if err := idx.backend.Save(ctx, storage.CollectionProjectContext, rec); err != nil {
		idx.recorder.RecordPersistFailure("save")
		idx.logger.Warn("failed to persist chunk", "id", c.ID, "error", err)
	}
}

// Search ranks every chunk against query and returns at most topK results
// whose similarity is above MinSimilarity. Ties keep insertion order.
func (idx *Index) Search(ctx context.Context, query string, topK int) []Result {
	ctx, span := tracer().Start(ctx, "rag.search")
	defer span.End()

	if topK <= 0 {
		topK = DefaultSearchTopK
	}

	start := time.Now()
	q := Embed(query)

	idx.mu.RLock()
	scored := make([]Result, len(idx.chunks))
	for i, c := range idx.chunks {
		scored[i] = Result{Chunk: c, Similarity: CosineSimilarity(q, c.Embedding)}
	}
	idx.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]Result, 0, len(scored))
	for _, r := range scored {
		if r.Similarity > MinSimilarity {
			results = append(results, r)
		}
	}

	idx.recorder.RecordSearch(ctx, len(results) > 0, time.Since(start))
	span.SetAttributes(attribute.Int("rag.top_k", topK), attribute.Int("rag.results", len(results)))
	return results
}

// Clear empties the index and removes persisted chunk records best-effort.
// Records of chunks indexed after the reset are left in place.
func (idx *Index) Clear(ctx context.Context) {
	idx.mu.Lock()
	stale := make([]string, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		stale = append(stale, c.ID)
	}
	idx.chunks = nil
	idx.ids = make(map[string]struct{})
	idx.mu.Unlock()

	idx.recorder.SetIndexSize(0)

	recs, err := idx.backend.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeChunk))
	if err != nil {
		idx.recorder.RecordPersistFailure("clear")
		idx.logger.Warn("failed to list persisted chunks", "error", err)
	}
	for _, rec := range recs {
		stale = append(stale, rec.Key)
	}
	idx.deleteUnindexed(ctx, stale)

	idx.logger.Info("index cleared")
	idx.notify(Change{Kind: ChangeCleared})
}

// deleteUnindexed removes the persisted records among ids that are not in
// the index when it runs.
func (idx *Index) deleteUnindexed(ctx context.Context, ids []string) {
	seen := make(map[string]struct{}, len(ids))
	var drop []string
	idx.mu.RLock()
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, live := idx.ids[id]; !live {
			drop = append(drop, id)
		}
	}
	idx.mu.RUnlock()

	for _, id := range drop {
		if err := idx.backend.Delete(ctx, storage.CollectionProjectContext, id); err != nil {
			idx.recorder.RecordPersistFailure("delete")
			idx.logger.Warn("failed to delete persisted chunk", "id", id, "error", err)
		}
	}
}

// Load restores persisted chunks, re-embedding their content. Chunks whose
// id is already indexed are skipped. It returns the number restored.
func (idx *Index) Load(ctx context.Context) (int, error) {
	recs, err := idx.backend.GetAll(ctx, storage.CollectionProjectContext, storage.ByType(storage.TypeChunk))
	if err != nil {
		return 0, fmt.Errorf("rag: load chunks: %w", err)
	}

	idx.mu.Lock()
	restored := 0
	for _, rec := range recs {
		if _, ok := idx.ids[rec.Key]; ok {
			continue
		}
		idx.chunks = append(idx.chunks, Chunk{
			ID:        rec.Key,
			Content:   rec.Content,
			Embedding: Embed(rec.Content),
			Metadata:  rec.Metadata,
			CreatedAt: rec.UpdatedAt,
		})
		idx.ids[rec.Key] = struct{}{}
		restored++
	}
	total := len(idx.chunks)
	idx.mu.Unlock()

	idx.recorder.SetIndexSize(total)
	idx.logger.Info("index loaded", "restored", restored, "total", total)
	idx.notify(Change{Kind: ChangeLoaded, Chunks: restored, Total: total})
	return restored, nil
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks)
}

// Chunks returns a snapshot of the indexed chunks in insertion order.
func (idx *Index) Chunks() []Chunk {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Chunk, len(idx.chunks))
	copy(out, idx.chunks)
	return out
}

// Stats summarizes the index.
type Stats struct {
	Chunks  int            `json:"chunks"`
	Sources map[string]int `json:"sources"`
}

// Stats returns chunk counts overall and per source.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	st := Stats{Chunks: len(idx.chunks), Sources: make(map[string]int)}
	for _, c := range idx.chunks {
		src := c.Source()
		if src == "" {
			src = "doc"
		}
		st.Sources[src]++
	}
	return st
}

func (idx *Index) notify(c Change) {
	for _, fn := range idx.listeners {
		fn(c)
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
