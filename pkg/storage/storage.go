// Package storage provides the persistence abstraction used by the index,
// the memory store and the chat history.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Collection names.
const (
	CollectionProjectContext = "projectContext"
	CollectionChatHistory    = "chatHistory"
	CollectionState          = "state"
	CollectionEmbeddings     = "embeddings"
)

// Record types stored in CollectionProjectContext.
const (
	TypeChunk  = "chunk"
	TypeMemory = "memory"
)

// IndexType names the built-in index over Record.Type. Any other index name
// is matched against the record metadata.
const IndexType = "type"

// Backend defines the interface for persistent record storage.
type Backend interface {
	// Save inserts or replaces a record keyed by rec.Key.
	Save(ctx context.Context, collection string, rec *Record) error

	// Get returns the record stored under key.
	Get(ctx context.Context, collection, key string) (*Record, error)

	// GetAll returns every record of the collection matching q.
	// A nil query returns all records.
	GetAll(ctx context.Context, collection string, q *Query) ([]*Record, error)

	// Delete removes a record. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Clear removes all records of the collection.
	Clear(ctx context.Context, collection string) error

	// Close releases backend resources.
	Close() error
}

// Record is the unit of persistence.
type Record struct {
	Key       string         `json:"path"`
	Type      string         `json:"type,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Query selects records by an index value.
type Query struct {
	Index string
	Value string
}

// ByType returns a query over the type index.
func ByType(t string) *Query {
	return &Query{Index: IndexType, Value: t}
}

// Matches reports whether rec satisfies the query.
func (q *Query) Matches(rec *Record) bool {
	if q == nil || q.Index == "" {
		return true
	}
	if q.Index == IndexType {
		return rec.Type == q.Value
	}
	v, ok := rec.Metadata[q.Index]
	if !ok {
		return false
	}
	return fmt.Sprint(v) == q.Value
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata = CloneMetadata(r.Metadata)
	return &out
}

// CloneMetadata copies a metadata map, recursing into nested maps and slices.
func CloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMetadata(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// NotFoundError indicates that the requested record was not found.
type NotFoundError struct {
	Collection string
	Key        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s record not found: %s", e.Collection, e.Key)
}

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// InvalidRecordError indicates a record that cannot be stored.
type InvalidRecordError struct {
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return "invalid record: " + e.Reason
}

// ValidateRecord checks the fields every backend requires.
func ValidateRecord(collection string, rec *Record) error {
	if collection == "" {
		return &InvalidRecordError{Reason: "collection is required"}
	}
	if rec == nil {
		return &InvalidRecordError{Reason: "record is nil"}
	}
	if rec.Key == "" {
		return &InvalidRecordError{Reason: "key is required"}
	}
	return nil
}
