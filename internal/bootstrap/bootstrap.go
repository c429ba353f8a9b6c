// Package bootstrap 负责集合的首次初始化、清库重置和数据导出。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"
)

// ErrBootstrapInProgress 另一个实例正持有初始化锁
var ErrBootstrapInProgress = errors.New("bootstrap: 另一个实例正在初始化存储")

const (
	bootstrapLockTTL = 30 * time.Second
	// DefaultLockWait 等待其他实例释放初始化锁的默认时长
	DefaultLockWait = bootstrapLockTTL

	defaultRetryInterval = 500 * time.Millisecond
)

// Bootstrapper 确保每个已知集合只被初始化一次
type Bootstrapper struct {
	store         *store.Store
	locker        storage.Locker
	retryInterval time.Duration
}

// NewBootstrapper 创建引导器。locker 可以为 nil，此时不加锁。
func NewBootstrapper(s *store.Store, locker storage.Locker) *Bootstrapper {
	return &Bootstrapper{store: s, locker: locker, retryInterval: defaultRetryInterval}
}

// WithRetryInterval 设置等待初始化锁时的轮询间隔
func (b *Bootstrapper) WithRetryInterval(d time.Duration) *Bootstrapper {
	if d > 0 {
		b.retryInterval = d
	}
	return b
}

// EnsureInitialized 调用 InitializeStorage，锁被其他实例持有时轮询等待，最多等待 wait。
// 等待超时说明另一个实例仍在初始化，只记录警告并返回 nil。
func (b *Bootstrapper) EnsureInitialized(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		err := b.InitializeStorage(ctx)
		if !errors.Is(err, ErrBootstrapInProgress) {
			return err
		}
		if !time.Now().Before(deadline) {
			logger.Ctx(ctx).Warn().Dur("waited", wait).Msg("初始化锁仍被其他实例持有，跳过本实例的初始化")
			return nil
		}
		logger.Ctx(ctx).Info().Dur("retry_in", b.retryInterval).Msg("其他实例正在初始化存储，等待锁释放")

		timer := time.NewTimer(b.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// InitializeStorage 为没有数据的已知集合写入种子数据或空数组，已有数据的集合保持不变
func (b *Bootstrapper) InitializeStorage(ctx context.Context) error {
	if b.locker != nil {
		lockKey := fmt.Sprintf(constants.KeyBootstrapLock, b.store.Prefix())
		token, err := b.locker.AcquireLock(ctx, lockKey, bootstrapLockTTL)
		if err != nil {
			return fmt.Errorf("获取初始化锁失败: %w", err)
		}
		if token == "" {
			return ErrBootstrapInProgress
		}
		defer func() {
			if _, err := b.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				logger.Warn().Err(err).Str("key", lockKey).Msg("释放初始化锁失败")
			}
		}()
	}

	var firstErr error
	seeded := 0
	for _, name := range constants.KnownCollections {
		if b.store.HasData(ctx, name) {
			continue
		}
		items := SeedData(name)
		if items == nil {
			items = []store.Record{}
		}
		if err := b.store.SetCollection(ctx, name, items); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("collection", name).Msg("初始化集合失败")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(items) > 0 {
			seeded++
		}
	}

	logger.Ctx(ctx).Info().Int("seeded_collections", seeded).Msg("存储初始化完成")
	return firstErr
}
