package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"recruit-go/internal/config"
	"recruit-go/internal/storage/models"
	"recruit-go/internal/tracing"

	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var sqlTracer = otel.Tracer("recruit-go/storage/sql")

type spanContextKey struct{}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	dbSystem       string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", p.dbSystem),
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		if sqlStatement := db.Statement.SQL.String(); sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", tracing.SafeSQL(sqlStatement)),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)
		db.Statement.Context = context.WithValue(newCtx, spanContextKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanContextKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// ErrRecordNotFound 是业务逻辑正常情况的一部分
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName, dbSystem string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         sqlTracer,
		dbName:         dbName,
		dbSystem:       dbSystem,
		disableErrSkip: true,
	}
}

// SQLKV 基于 GORM 的 KV 实现，每个集合存为 kv_entries 表中的一行 JSON。
// 同一个 *gorm.DB 也承载 outbox_messages 表。
type SQLKV struct {
	db      *gorm.DB
	dialect string
}

// NewSQLKV 根据配置的后端 (mysql/postgres/sqlite) 打开数据库并迁移表结构
func NewSQLKV(cfg *config.Config) (*SQLKV, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	var (
		dialector gorm.Dialector
		dbName    string
		logLevel  int
	)
	switch cfg.Store.Backend {
	case config.BackendMySQL:
		m := cfg.MySQL
		// 构建DSN，添加超时设置
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
			m.Username, m.Password, m.Host, m.Port, m.Database,
			m.ConnectTimeoutSeconds, m.ReadTimeoutSeconds, m.WriteTimeoutSeconds)
		dialector = mysql.Open(dsn)
		dbName = m.Database
		logLevel = m.LogLevel
	case config.BackendPostgres:
		p := cfg.Postgres
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			p.Host, p.Port, p.Username, p.Password, p.Database, p.SSLMode)
		dialector = postgres.Open(dsn)
		dbName = p.Database
		logLevel = p.LogLevel
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("创建 sqlite 目录失败: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.Store.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		dbName = filepath.Base(cfg.Store.SQLitePath)
		logLevel = 2
	default:
		return nil, fmt.Errorf("不是 SQL 存储后端: %s", cfg.Store.Backend)
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(gormLogLevel(logLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败 (%s): %w", cfg.Store.Backend, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	if cfg.Store.Backend == config.BackendMySQL {
		sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := db.Use(NewGormTracingPlugin(dbName, cfg.Store.Backend)); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	kv, err := NewSQLKVFromDB(db)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Printf("成功连接到 %s 并自动迁移数据库结构", cfg.Store.Backend)
	return kv, nil
}

// NewSQLKVFromDB 使用已有的 GORM 连接创建 SQLKV，测试中传入内存 sqlite
func NewSQLKVFromDB(db *gorm.DB) (*SQLKV, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm DB 不能为空")
	}
	kv := &SQLKV{db: db, dialect: db.Dialector.Name()}
	if kv.dialect == config.BackendSQLite {
		// sqlite 单连接，内存库在多个连接之间不共享
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := kv.autoMigrateSchema(); err != nil {
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}
	return kv, nil
}

func gormLogLevel(level int) logger.LogLevel {
	switch level {
	case 1:
		return logger.Silent
	case 2:
		return logger.Error
	case 3:
		return logger.Warn
	case 4:
		return logger.Info
	default:
		return logger.Warn
	}
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (s *SQLKV) autoMigrateSchema() error {
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := s.db.Session(&gorm.Session{Logger: silentLogger})
	if err := silentDB.AutoMigrate(
		&models.KVEntry{},
		&models.OutboxMessage{},
	); err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (s *SQLKV) DB() *gorm.DB {
	return s.db
}

// Dialect 返回方言名称: mysql, postgres, sqlite
func (s *SQLKV) Dialect() string {
	return s.dialect
}

// Close 关闭数据库连接
func (s *SQLKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// Get 读取一个集合的原始 JSON
func (s *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var entry models.KVEntry
	err := s.db.WithContext(ctx).Where("item_key = ?", key).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("读取键 %s 失败: %w", key, err)
	}
	return string(entry.Value), nil
}

// Set 写入集合，主键冲突时更新 (MySQL: ON DUPLICATE KEY, Postgres/SQLite: ON CONFLICT)
func (s *SQLKV) Set(ctx context.Context, key string, value string) error {
	entry := models.KVEntry{
		ItemKey:   key,
		Value:     datatypes.JSON(value),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("写入键 %s 失败: %w", key, err)
	}
	return nil
}

// Delete 删除集合
func (s *SQLKV) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("item_key = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
		return fmt.Errorf("删除键 %s 失败: %w", key, err)
	}
	return nil
}

// Keys 返回以 prefix 开头的键。LIKE 中的 _ 和 % 会被当作通配符，结果在内存中再按前缀过滤一次。
func (s *SQLKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&models.KVEntry{}).
		Where("item_key LIKE ?", prefix+"%").
		Order("item_key asc").
		Pluck("item_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("列出键失败: %w", err)
	}
	filtered := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			filtered = append(filtered, k)
		}
	}
	return filtered, nil
}
