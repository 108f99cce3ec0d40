// Package redis provides a Redis-backed implementation of the storage backend.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

// Config holds connection settings for RedisStorage.
type Config struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// RedisStorage implements storage.Backend. Each collection is a hash of
// record JSON plus one set per record type.
type RedisStorage struct {
	client goredis.UniversalClient
	prefix string
	owned  bool
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*RedisStorage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	s := New(client, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client goredis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "tc"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) recordsKey(collection string) string {
	return fmt.Sprintf("%s:%s:rec", s.prefix, collection)
}

func (s *RedisStorage) typesKey(collection string) string {
	return fmt.Sprintf("%s:%s:types", s.prefix, collection)
}

func (s *RedisStorage) typeKey(collection, typ string) string {
	return fmt.Sprintf("%s:%s:type:%s", s.prefix, collection, typ)
}

// Save stores rec and moves its type index entry.
func (s *RedisStorage) Save(ctx context.Context, collection string, rec *storage.Record) error {
	if err := storage.ValidateRecord(collection, rec); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return &storage.SerializationError{Operation: "marshal", Cause: err}
	}

	prev, err := s.get(ctx, collection, rec.Key)
	if err != nil && !isNotFound(err) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if prev != nil && prev.Type != "" && prev.Type != rec.Type {
			pipe.SRem(ctx, s.typeKey(collection, prev.Type), rec.Key)
		}
		pipe.HSet(ctx, s.recordsKey(collection), rec.Key, data)
		if rec.Type != "" {
			pipe.SAdd(ctx, s.typeKey(collection, rec.Type), rec.Key)
			pipe.SAdd(ctx, s.typesKey(collection), rec.Type)
		}
		return nil
	})
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Get retrieves a record by key.
func (s *RedisStorage) Get(ctx context.Context, collection, key string) (*storage.Record, error) {
	return s.get(ctx, collection, key)
}

func (s *RedisStorage) get(ctx context.Context, collection, key string) (*storage.Record, error) {
	data, err := s.client.HGet(ctx, s.recordsKey(collection), key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, &storage.NotFoundError{Collection: collection, Key: key}
		}
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return decode(data)
}

func decode(data []byte) (*storage.Record, error) {
	var rec storage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	return &rec, nil
}

// GetAll returns matching records ordered by key.
func (s *RedisStorage) GetAll(ctx context.Context, collection string, q *storage.Query) ([]*storage.Record, error) {
	var raw []string

	if q != nil && q.Index == storage.IndexType {
		keys, err := s.client.SMembers(ctx, s.typeKey(collection, q.Value)).Result()
		if err != nil {
			return nil, &storage.StorageUnavailableError{Cause: err}
		}
		if len(keys) == 0 {
			return nil, nil
		}
		vals, err := s.client.HMGet(ctx, s.recordsKey(collection), keys...).Result()
		if err != nil {
			return nil, &storage.StorageUnavailableError{Cause: err}
		}
		for _, v := range vals {
			if str, ok := v.(string); ok {
				raw = append(raw, str)
			}
		}
	} else {
		all, err := s.client.HGetAll(ctx, s.recordsKey(collection)).Result()
		if err != nil {
			return nil, &storage.StorageUnavailableError{Cause: err}
		}
		for _, v := range all {
			raw = append(raw, v)
		}
	}

	out := make([]*storage.Record, 0, len(raw))
	for _, v := range raw {
		rec, err := decode([]byte(v))
		if err != nil {
			continue
		}
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes a record and its index entry.
func (s *RedisStorage) Delete(ctx context.Context, collection, key string) error {
	prev, err := s.get(ctx, collection, key)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, s.recordsKey(collection), key)
		if prev.Type != "" {
			pipe.SRem(ctx, s.typeKey(collection, prev.Type), key)
		}
		return nil
	})
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Clear removes the collection hash and all of its type sets.
func (s *RedisStorage) Clear(ctx context.Context, collection string) error {
	types, err := s.client.SMembers(ctx, s.typesKey(collection)).Result()
	if err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}

	keys := []string{s.recordsKey(collection), s.typesKey(collection)}
	for _, t := range types {
		keys = append(keys, s.typeKey(collection, t))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Close closes the client when it was opened by Open.
func (s *RedisStorage) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func isNotFound(err error) bool {
	var nf *storage.NotFoundError
	return errors.As(err, &nf)
}

var _ storage.Backend = (*RedisStorage)(nil)
