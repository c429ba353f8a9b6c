package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"recruit-go/internal/config"
	"recruit-go/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 集合存储使用的键值后端
	KV KV

	// 具体的后端实例，只有与配置匹配的那个非空
	Redis *Redis
	SQL   *SQLKV

	// 对象存储: MinIO 或本地目录
	MinIO   *MinIO
	Objects ObjectStorage

	// 消息队列
	RabbitMQ *RabbitMQ
}

// NewStorage 创建存储管理器。
// KV 后端初始化失败直接返回错误；MinIO 和 RabbitMQ 失败只记录警告并降级。
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}
	var err error
	var initErrors []string

	switch cfg.Store.Backend {
	case config.BackendRedis:
		logger.Info().Str("address", cfg.Redis.Address).Msg("初始化Redis...")
		s.Redis, err = NewRedisAdapter(&cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("初始化Redis失败: %w", err)
		}
		s.KV = s.Redis
	case config.BackendMySQL, config.BackendPostgres, config.BackendSQLite:
		logger.Info().Str("backend", cfg.Store.Backend).Msg("初始化SQL存储...")
		s.SQL, err = NewSQLKV(cfg)
		if err != nil {
			return nil, fmt.Errorf("初始化SQL存储失败: %w", err)
		}
		s.KV = s.SQL
	default:
		logger.Info().Msg("使用内存存储，进程退出后数据丢失")
		s.KV = NewMemoryKV()
	}

	// 初始化MinIO（如果配置了）
	if cfg.MinIO.Endpoint != "" {
		var minioLogger *log.Logger
		if cfg.Logger.Level == "debug" {
			minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
		} else {
			minioLogger = log.New(io.Discard, "", 0)
		}
		s.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			logger.Info().Msg("MinIO客户端初始化成功")
		}
	}

	if s.MinIO != nil && cfg.Resumes.Source == config.ResumeSourceMinIO {
		s.Objects = s.MinIO
	} else {
		if cfg.Resumes.Source == config.ResumeSourceMinIO {
			logger.Warn().Msg("MinIO不可用，简历和批量文件回退到本地目录")
		}
		s.Objects, err = NewLocalObjects(cfg.Batch.UploadDir, cfg.Resumes.Dir)
		if err != nil {
			return nil, err
		}
	}

	// 初始化RabbitMQ（如果配置了）
	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err == nil {
			err = s.RabbitMQ.SetupBatchEvents()
		}
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
			if s.RabbitMQ != nil {
				_ = s.RabbitMQ.Close()
				s.RabbitMQ = nil
			}
		}
	}

	if len(initErrors) > 0 {
		logger.Warn().Str("errors", strings.Join(initErrors, "; ")).Msg("以下存储组件初始化失败")
	}

	return s, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.SQL != nil {
		if err := s.SQL.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭数据库连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
