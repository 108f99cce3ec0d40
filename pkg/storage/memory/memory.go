// Package memory provides an in-memory implementation of the storage backend.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

// MemoryStorage implements storage.Backend using in-memory maps.
type MemoryStorage struct {
	mu          sync.RWMutex
	collections map[string]map[string]*storage.Record // collection -> key -> record
	closed      bool
}

// NewMemoryStorage creates a new in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		collections: make(map[string]map[string]*storage.Record),
	}
}

// Save stores a deep copy of rec.
func (m *MemoryStorage) Save(ctx context.Context, collection string, rec *storage.Record) error {
	if err := storage.ValidateRecord(collection, rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &storage.StorageUnavailableError{Cause: errClosed}
	}

	records, ok := m.collections[collection]
	if !ok {
		records = make(map[string]*storage.Record)
		m.collections[collection] = records
	}

	copied := rec.Clone()
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now().UTC()
	}
	records[rec.Key] = copied
	return nil
}

// Get retrieves a record by key.
func (m *MemoryStorage) Get(ctx context.Context, collection, key string) (*storage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][key]
	if !ok {
		return nil, &storage.NotFoundError{Collection: collection, Key: key}
	}
	return rec.Clone(), nil
}

// GetAll returns matching records ordered by key.
func (m *MemoryStorage) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.collections[collection]
	out := make([]*storage.Record, 0, len(records))
	for _, rec := range records {
		if q.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes a record.
func (m *MemoryStorage) Delete(ctx context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[collection], key)
	return nil
}

// Clear removes every record in the collection.
func (m *MemoryStorage) Clear(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections, collection)
	return nil
}

// Len returns the number of records in a collection.
func (m *MemoryStorage) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Close marks the storage closed. Reads keep working.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var errClosed = errors.New("memory storage closed")
