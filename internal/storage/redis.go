package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"recruit-go/internal/config"
	"recruit-go/internal/tracing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/extra/redisotel/v9" // Redis OpenTelemetry钩子
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var redisTracer = otel.Tracer("recruit-go/storage/redis")

// 按集合名称配置的采样率，集合 key 格式为 {prefix}:{collection}，其余为 5%
var redisKeySamplingRates = map[string]float64{
	"batch_uploads":    0.5,
	"batch_candidates": 0.25,
	"job_matches":      0.25,
	"activity_logs":    0.01,
	"api_usage":        0.01,
}

const defaultRedisSamplingRate = 0.05

// releaseLockScript 只有持有者才能删除锁
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func samplingRate(key string) float64 {
	if i := strings.LastIndex(key, ":"); i >= 0 {
		if rate, ok := redisKeySamplingRates[key[i+1:]]; ok {
			return rate
		}
	}
	return defaultRedisSamplingRate
}

// startSpan 按采样率为一次集合读写创建 span，未采样时返回 nil
func startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	if key == "" || rand.Float64() >= samplingRate(key) {
		return ctx, nil
	}
	ctx, span := redisTracer.Start(ctx, "Redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", strings.ToUpper(op)),
			attribute.String("db.redis.key", tracing.SafeKey(key)),
		),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	defer span.End()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis, attrs...)
		return
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// Redis 封装 Redis 客户端，实现 KV 和 Locker
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		// 重试设置
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// Get 读取一个集合，不存在时返回 ErrKeyNotFound
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis客户端未初始化")
	}
	ctx, span := startSpan(ctx, "Get", key)

	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		endSpan(span, nil, attribute.Bool("db.redis.key_exists", false))
		return "", ErrKeyNotFound
	}
	if err != nil {
		endSpan(span, err)
		return "", err
	}
	endSpan(span, nil, attribute.Bool("db.redis.key_exists", true), attribute.Int("db.redis.value_length", len(val)))
	return val, nil
}

// Set 写入一个集合，不设置过期时间
func (r *Redis) Set(ctx context.Context, key string, value string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	ctx, span := startSpan(ctx, "Set", key)
	err := r.Client.Set(ctx, key, value, 0).Err()
	endSpan(span, err, attribute.Int("db.redis.value_length", len(value)))
	return err
}

// Delete 删除键
func (r *Redis) Delete(ctx context.Context, key string) error {
	if r.Client == nil {
		return fmt.Errorf("redis客户端未初始化")
	}
	return r.Client.Del(ctx, key).Err()
}

// Keys 使用 SCAN 遍历以 prefix 开头的所有键，避免 KEYS 阻塞服务端
func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}

	var (
		keys   []string
		cursor uint64
	)
	pattern := escapeGlob(prefix) + "*"
	for {
		batch, next, err := r.Client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("扫描键失败 (pattern=%s): %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// escapeGlob 转义 Redis MATCH 模式中的特殊字符
func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}

// AcquireLock 尝试获取一个分布式锁，未获取到时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	lockValue := uuid.NewString()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return lockValue, nil
	}
	return "", nil
}

// ReleaseLock 释放分布式锁，锁已过期或被他人持有时返回 false
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	released, err := releaseLockScript.Run(ctx, r.Client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return false, err
	}
	return released == 1, nil
}
