// Package noop provides a storage backend that discards every write.
package noop

import (
	"context"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

// Storage accepts every call and stores nothing.
type Storage struct{}

// New returns a no-op backend.
func New() *Storage {
	return &Storage{}
}

// Save validates rec and discards it.
func (Storage) Save(ctx context.Context, collection string, rec *storage.Record) error {
	return storage.ValidateRecord(collection, rec)
}

// Get always reports the key as missing.
func (Storage) Get(ctx context.Context, collection, key string) (*storage.Record, error) {
	return nil, &storage.NotFoundError{Collection: collection, Key: key}
}

// GetAll always returns an empty result.
func (Storage) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	return nil, nil
}

func (Storage) Delete(ctx context.Context, collection, key string) error { return nil }

func (Storage) Clear(ctx context.Context, collection string) error { return nil }

func (Storage) Close() error { return nil }

var _ storage.Backend = Storage{}
