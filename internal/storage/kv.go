package storage

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound 键不存在时由各个 KV 实现返回
var ErrKeyNotFound = errors.New("storage: key not found")

// KV 集合存储所依赖的最小键值接口。
// 值是完整序列化后的集合 (JSON 数组)，每次写入整体替换。
type KV interface {
	// Get 返回键对应的值，不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) (string, error)
	// Set 写入键值，覆盖旧值
	Set(ctx context.Context, key string, value string) error
	// Delete 删除键，键不存在不视为错误
	Delete(ctx context.Context, key string) error
	// Keys 返回所有以 prefix 开头的键
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Locker 支持分布式锁的后端 (Redis) 额外实现该接口。
// 引导流程用它避免多个实例同时写入种子数据。
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error)
}
