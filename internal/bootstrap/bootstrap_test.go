package bootstrap

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"recruit-go/internal/config"
	"recruit-go/internal/constants"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(storage.NewMemoryKV(), "test")
}

func collectionSizes(ctx context.Context, s *store.Store) map[string]int {
	sizes := map[string]int{}
	for _, name := range constants.KnownCollections {
		sizes[name] = s.GetCollectionSize(ctx, name)
	}
	return sizes
}

func TestInitializeStorageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := NewBootstrapper(s, nil)

	require.NoError(t, b.InitializeStorage(ctx))
	first := collectionSizes(ctx, s)
	assert.Equal(t, len(SeedData(constants.CollectionCompanies)), first[constants.CollectionCompanies])
	assert.Equal(t, 0, first[constants.CollectionBatchUploads])

	require.NoError(t, b.InitializeStorage(ctx))
	assert.Equal(t, first, collectionSizes(ctx, s))

	// 没有种子数据的集合也被写成空数组
	raw, err := s.KV().Get(ctx, s.Key(constants.CollectionActivityLogs))
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)
}

func TestInitializeStorageKeepsExistingData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.AddToCollection(ctx, constants.CollectionCompanies, store.Record{"name": "Only Co"})
	require.NoError(t, err)

	require.NoError(t, NewBootstrapper(s, nil).InitializeStorage(ctx))

	companies := s.GetCollection(ctx, constants.CollectionCompanies)
	require.Len(t, companies, 1)
	assert.Equal(t, "Only Co", companies[0]["name"])
	assert.True(t, s.HasData(ctx, constants.CollectionUsers))
}

func TestInitializeStorageWithRedisLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r, err := storage.NewRedisAdapter(&config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	s := store.New(r, "test")
	b := NewBootstrapper(s, r)
	require.NoError(t, b.InitializeStorage(ctx))
	assert.True(t, s.HasData(ctx, constants.CollectionJobs))
	// 完成后锁已释放
	assert.False(t, mr.Exists("test-lock:bootstrap"))

	// 其他实例持有锁时直接返回
	require.NoError(t, mr.Set("test-lock:bootstrap", "someone-else"))
	assert.ErrorIs(t, b.InitializeStorage(ctx), ErrBootstrapInProgress)
}

func TestResetDatabase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResetService(s)

	_, err := s.AddToCollection(ctx, constants.CollectionCompanies, store.Record{"name": "Extra"})
	require.NoError(t, err)
	_, err = s.AddToCollection(ctx, constants.CollectionJobMatches, store.Record{"job_id": "job-1"})
	require.NoError(t, err)
	require.NoError(t, s.KV().Set(ctx, "test:legacy_stuff", `[]`))
	require.NoError(t, s.KV().Set(ctx, "other:keep", `[]`))

	require.NoError(t, r.ResetDatabase(ctx))

	assert.Equal(t, len(SeedData(constants.CollectionCompanies)), s.GetCollectionSize(ctx, constants.CollectionCompanies))
	assert.Equal(t, 0, s.GetCollectionSize(ctx, constants.CollectionJobMatches))

	_, err = s.KV().Get(ctx, "test:legacy_stuff")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
	_, err = s.KV().Get(ctx, "other:keep")
	assert.NoError(t, err)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, len(constants.KnownCollections))
}

func TestClearAllData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, NewBootstrapper(s, nil).InitializeStorage(ctx))

	r := NewResetService(s)
	require.NoError(t, r.ClearAllData(ctx))

	stats := r.GetDatabaseStats(ctx)
	assert.Equal(t, 0, stats.Total)
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGetDatabaseStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResetService(s)
	require.NoError(t, r.InitializeWithMockData(ctx))

	stats := r.GetDatabaseStats(ctx)
	assert.Len(t, stats.Collections, len(constants.KnownCollections))

	want := 0
	for _, name := range SeedCollections {
		want += len(SeedData(name))
		assert.Equal(t, len(SeedData(name)), stats.Collections[name], name)
	}
	assert.Equal(t, want, stats.Total)
}

func TestExportJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResetService(s)
	require.NoError(t, r.InitializeWithMockData(ctx))

	var buf bytes.Buffer
	require.NoError(t, r.ExportJSON(ctx, &buf))

	var decoded map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, len(constants.KnownCollections))
	require.Len(t, decoded[constants.CollectionJobs], 3)
	assert.Equal(t, "job-1", decoded[constants.CollectionJobs][0]["id"])
	assert.Equal(t, "2024-01-15T09:00:00Z", decoded[constants.CollectionJobs][0]["created_at"])
	assert.Empty(t, decoded[constants.CollectionBatchUploads])
}

func TestExportUsersCSVEscapesFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResetService(s)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetCollection(ctx, constants.CollectionUsers, []store.Record{
		{"id": "u1", "name": `Smith, "JJ"`, "email": "jj@example.com", "role": "viewer", "created_at": created},
	}))

	var buf bytes.Buffer
	require.NoError(t, r.ExportUsersCSV(ctx, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, UsersCSVHeader, rows[0])
	assert.Equal(t, []string{"u1", `Smith, "JJ"`, "jj@example.com", "viewer", "", "", "2024-03-01T12:00:00Z"}, rows[1])
}

func TestExportActivityLogsCSV(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResetService(s)

	var empty bytes.Buffer
	require.NoError(t, r.ExportActivityLogsCSV(ctx, &empty))
	assert.Equal(t, "ID,User ID,Action,Entity Type,Entity ID,Details,Created At\n", empty.String())

	_, err := s.AddToCollection(ctx, constants.CollectionActivityLogs, store.Record{
		"id": "log-1", "user_id": "user-2", "action": "batch_upload.completed",
		"entity_type": "batch_upload", "entity_id": "up-1", "details": "line1\nline2",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.ExportActivityLogsCSV(ctx, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "line1\nline2", rows[1][5])
	assert.NotEmpty(t, rows[1][6])
}

func TestBackupFileName(t *testing.T) {
	assert.Equal(t, "recruit-backup-2024-01-15.json", BackupFileName(time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)))
}

func TestEnsureInitializedWaitsForLock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	r, err := storage.NewRedisAdapter(&config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	s := store.New(r, "test")
	b := NewBootstrapper(s, r).WithRetryInterval(10 * time.Millisecond)

	// 锁一直被占用：等待超时后继续启动，不报错
	require.NoError(t, mr.Set("test-lock:bootstrap", "someone-else"))
	require.NoError(t, b.EnsureInitialized(ctx, 50*time.Millisecond))
	assert.False(t, s.HasData(ctx, constants.CollectionJobs))

	// 锁在等待期间释放：拿到锁后完成初始化
	go func() {
		time.Sleep(30 * time.Millisecond)
		mr.Del("test-lock:bootstrap")
	}()
	require.NoError(t, b.EnsureInitialized(ctx, 5*time.Second))
	assert.True(t, s.HasData(ctx, constants.CollectionJobs))
	assert.False(t, mr.Exists("test-lock:bootstrap"))
}

func TestEnsureInitializedHonorsContext(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := storage.NewRedisAdapter(&config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, mr.Set("test-lock:bootstrap", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = NewBootstrapper(store.New(r, "test"), r).WithRetryInterval(10*time.Millisecond).EnsureInitialized(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
