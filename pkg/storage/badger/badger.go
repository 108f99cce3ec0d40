// Package badger provides a Badger-based implementation of the storage backend.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

// Config holds configuration for BadgerStorage.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStorage implements storage.Backend using Badger.
type BadgerStorage struct {
	db     *badger.DB
	config *Config
}

// NewBadgerStorage opens (or creates) a Badger database at config.Path.
func NewBadgerStorage(config *Config) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	return &BadgerStorage{
		db:     db,
		config: config,
	}, nil
}

// Key layout:
//
//	<collection>:rec:<key>                 record JSON
//	<collection>:idx:type:<type>:<key>     empty marker
func recordKey(collection, key string) []byte {
	return []byte(fmt.Sprintf("%s:rec:%s", collection, key))
}

func recordPrefix(collection string) []byte {
	return []byte(collection + ":rec:")
}

func typeIndexKey(collection, typ, key string) []byte {
	return []byte(fmt.Sprintf("%s:idx:type:%s:%s", collection, typ, key))
}

func typeIndexPrefix(collection, typ string) []byte {
	return []byte(fmt.Sprintf("%s:idx:type:%s:", collection, typ))
}

func serialize(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// Save stores rec and moves its type index entry.
func (b *BadgerStorage) Save(ctx context.Context, collection string, rec *storage.Record) error {
	if err := storage.ValidateRecord(collection, rec); err != nil {
		return err
	}

	data, err := serialize(rec)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		prev, err := getInTxn(txn, collection, rec.Key)
		if err == nil && prev.Type != "" && prev.Type != rec.Type {
			if err := txn.Delete(typeIndexKey(collection, prev.Type, rec.Key)); err != nil {
				return err
			}
		}

		if err := txn.Set(recordKey(collection, rec.Key), data); err != nil {
			return err
		}

		if rec.Type != "" {
			if err := txn.Set(typeIndexKey(collection, rec.Type, rec.Key), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapErr(err)
}

// Get retrieves a record by key.
func (b *BadgerStorage) Get(ctx context.Context, collection, key string) (*storage.Record, error) {
	var rec *storage.Record
	err := b.db.View(func(txn *badger.Txn) error {
		r, err := getInTxn(txn, collection, key)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return rec, nil
}

func getInTxn(txn *badger.Txn, collection, key string) (*storage.Record, error) {
	item, err := txn.Get(recordKey(collection, key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &storage.NotFoundError{Collection: collection, Key: key}
		}
		return nil, err
	}

	var rec storage.Record
	if err := item.Value(func(val []byte) error {
		return deserialize(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetAll returns matching records ordered by key. Type queries use the
// type index; metadata queries scan the collection.
func (b *BadgerStorage) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	var out []*storage.Record

	err := b.db.View(func(txn *badger.Txn) error {
		if q != nil && q.Index == storage.IndexType {
			prefix := typeIndexPrefix(collection, q.Value)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				key := string(it.Item().Key()[len(prefix):])
				rec, err := getInTxn(txn, collection, key)
				if err != nil {
					continue // stale index entry
				}
				out = append(out, rec)
			}
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix(collection)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec storage.Record
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &rec)
			}); err != nil {
				continue
			}
			if q.Matches(&rec) {
				out = append(out, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

// Delete removes a record and its index entry.
func (b *BadgerStorage) Delete(ctx context.Context, collection, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		prev, err := getInTxn(txn, collection, key)
		if err != nil {
			var nf *storage.NotFoundError
			if errors.As(err, &nf) {
				return nil
			}
			return err
		}

		if prev.Type != "" {
			if err := txn.Delete(typeIndexKey(collection, prev.Type, key)); err != nil {
				return err
			}
		}
		return txn.Delete(recordKey(collection, key))
	})
	return wrapErr(err)
}

// Clear drops every key of the collection.
func (b *BadgerStorage) Clear(ctx context.Context, collection string) error {
	return wrapErr(b.db.DropPrefix([]byte(collection + ":")))
}

// Close runs value log GC and closes the database.
func (b *BadgerStorage) Close() error {
	// ErrNoRewrite is the usual answer on small databases.
	_ = b.db.RunValueLogGC(0.5)
	return b.db.Close()
}

// wrapErr passes typed storage errors through and marks the rest unavailable.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var nf *storage.NotFoundError
	var se *storage.SerializationError
	if errors.As(err, &nf) || errors.As(err, &se) {
		return err
	}
	return &storage.StorageUnavailableError{Cause: err}
}

var _ storage.Backend = (*BadgerStorage)(nil)
