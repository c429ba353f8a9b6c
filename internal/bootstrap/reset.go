package bootstrap

import (
	"context"
	"slices"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/store"
)

// DatabaseStats 各集合的记录数
type DatabaseStats struct {
	Collections map[string]int `json:"collections"`
	Total       int            `json:"total"`
}

// ResetService 清库、重新写入种子数据、统计和导出
type ResetService struct {
	store *store.Store
}

// NewResetService 创建重置服务
func NewResetService(s *store.Store) *ResetService {
	return &ResetService{store: s}
}

// ClearAllData 删除所有已知集合，以及前缀下的其他孤立键
func (r *ResetService) ClearAllData(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, name := range constants.KnownCollections {
		if err := r.store.ClearCollection(ctx, name); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("collection", name).Msg("清除集合失败")
			record(err)
		}
	}

	keys, err := r.store.Keys(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("列出存储键失败")
		record(err)
	}
	orphans := 0
	for _, key := range keys {
		if err := r.store.DeleteKey(ctx, key); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("key", key).Msg("删除存储键失败")
			record(err)
			continue
		}
		orphans++
	}

	logger.Ctx(ctx).Info().Int("orphan_keys", orphans).Msg("已清除所有数据")
	return firstErr
}

// InitializeWithMockData 用种子数据覆盖核心集合，不论原来是否有数据
func (r *ResetService) InitializeWithMockData(ctx context.Context) error {
	var firstErr error
	for _, name := range SeedCollections {
		if err := r.store.SetCollection(ctx, name, SeedData(name)); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("collection", name).Msg("写入种子数据失败")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ResetDatabase 清空后重新写入种子数据，其余已知集合重建为空数组
func (r *ResetService) ResetDatabase(ctx context.Context) error {
	if err := r.ClearAllData(ctx); err != nil {
		return err
	}
	if err := r.InitializeWithMockData(ctx); err != nil {
		return err
	}
	for _, name := range constants.KnownCollections {
		if slices.Contains(SeedCollections, name) {
			continue
		}
		if err := r.store.SetCollection(ctx, name, []store.Record{}); err != nil {
			return err
		}
	}
	logger.Ctx(ctx).Info().Msg("数据库已重置")
	return nil
}

// GetDatabaseStats 统计每个已知集合的记录数
func (r *ResetService) GetDatabaseStats(ctx context.Context) DatabaseStats {
	stats := DatabaseStats{Collections: make(map[string]int, len(constants.KnownCollections))}
	for _, name := range constants.KnownCollections {
		n := r.store.GetCollectionSize(ctx, name)
		stats.Collections[name] = n
		stats.Total += n
	}
	return stats
}

// ExportAllData 返回所有已知集合的快照
func (r *ResetService) ExportAllData(ctx context.Context) map[string][]store.Record {
	out := make(map[string][]store.Record, len(constants.KnownCollections))
	for _, name := range constants.KnownCollections {
		out[name] = r.store.GetCollection(ctx, name)
	}
	return out
}
