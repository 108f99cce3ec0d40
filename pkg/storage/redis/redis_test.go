package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuFFyGTLP/TC/pkg/storage"
)

func redisAddr() string {
	addr := os.Getenv("TC_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return addr
}

func requireRedisClient(tb testing.TB) goredis.UniversalClient {
	tb.Helper()

	addr := redisAddr()
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		tb.Skipf("redis is not available at %s: %v", addr, err)
	}

	tb.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// newTestStorage isolates each test under a random key prefix.
func newTestStorage(t *testing.T) *RedisStorage {
	client := requireRedisClient(t)
	prefix := "tc-test-" + uuid.NewString()
	s := New(client, prefix)

	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
	return s
}

// TestRedisStorageSuite runs the full backend test suite against RedisStorage.
func TestRedisStorageSuite(t *testing.T) {
	requireRedisClient(t)

	suite := &storage.BackendTestSuite{
		NewBackend: func(t *testing.T) storage.Backend {
			return newTestStorage(t)
		},
	}

	suite.RunAllTests(t)
}

func TestRedisStorage_ClearRemovesTypeSets(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, storage.CollectionProjectContext, &storage.Record{Key: "a", Type: storage.TypeChunk}))
	require.NoError(t, s.Clear(ctx, storage.CollectionProjectContext))

	n, err := s.client.Exists(ctx, s.typeKey(storage.CollectionProjectContext, storage.TypeChunk)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Open(ctx, Config{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	var unavailable *storage.StorageUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
