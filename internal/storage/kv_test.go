package storage

import (
	"context"
	"testing"
	"time"

	"recruit-go/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedisAdapter(&config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func newTestSQLKV(t *testing.T) *SQLKV {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	kv, err := NewSQLKVFromDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

// 所有 KV 实现共享同一组行为测试
func TestKVImplementations(t *testing.T) {
	backends := map[string]func(t *testing.T) KV{
		"memory": func(t *testing.T) KV { return NewMemoryKV() },
		"redis": func(t *testing.T) KV {
			r, _ := newTestRedis(t)
			return r
		},
		"sqlite": func(t *testing.T) KV { return newTestSQLKV(t) },
	}

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := factory(t)

			_, err := kv.Get(ctx, "recruit:jobs")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, kv.Set(ctx, "recruit:jobs", `[{"id":"1"}]`))
			require.NoError(t, kv.Set(ctx, "recruit:job_matches", `[]`))
			require.NoError(t, kv.Set(ctx, "other:jobs", `[]`))

			val, err := kv.Get(ctx, "recruit:jobs")
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"1"}]`, val)

			// 覆盖写入
			require.NoError(t, kv.Set(ctx, "recruit:jobs", `[{"id":"2"}]`))
			val, err = kv.Get(ctx, "recruit:jobs")
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"2"}]`, val)

			keys, err := kv.Keys(ctx, "recruit:")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"recruit:jobs", "recruit:job_matches"}, keys)

			require.NoError(t, kv.Delete(ctx, "recruit:jobs"))
			require.NoError(t, kv.Delete(ctx, "recruit:missing"))
			_, err = kv.Get(ctx, "recruit:jobs")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestSQLKVKeysIgnoresLikeWildcards(t *testing.T) {
	ctx := context.Background()
	kv := newTestSQLKV(t)

	require.NoError(t, kv.Set(ctx, "app_1:jobs", `[]`))
	require.NoError(t, kv.Set(ctx, "appX1:jobs", `[]`))

	keys, err := kv.Keys(ctx, "app_1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"app_1:jobs"}, keys)
	assert.Equal(t, "sqlite", kv.Dialect())
}

func TestRedisKeysEscapesPattern(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t)

	require.NoError(t, r.Set(ctx, "a*:jobs", `[]`))
	require.NoError(t, r.Set(ctx, "ab:jobs", `[]`))

	keys, err := r.Keys(ctx, "a*:")
	require.NoError(t, err)
	assert.Equal(t, []string{"a*:jobs"}, keys)
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	token, err := r.AcquireLock(ctx, "recruit:lock:bootstrap", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// 已被持有
	second, err := r.AcquireLock(ctx, "recruit:lock:bootstrap", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	released, err := r.ReleaseLock(ctx, "recruit:lock:bootstrap", "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = r.ReleaseLock(ctx, "recruit:lock:bootstrap", token)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("recruit:lock:bootstrap"))
}
