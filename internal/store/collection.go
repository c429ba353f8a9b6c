package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"recruit-go/internal/logger"
)

// DecodeError 合并后的记录无法转换为集合的类型
type DecodeError struct {
	Collection string
	ID         string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("集合 %s 中记录 %s 字段类型不匹配: %v", e.Collection, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError 判断 err 是否为 DecodeError
func IsDecodeError(err error) bool {
	var derr *DecodeError
	return errors.As(err, &derr)
}

// Collection 在 Store 之上的类型化视图，通过 JSON 在 Record 和 T 之间转换
type Collection[T any] struct {
	store *Store
	name  string
}

// NewCollection 创建类型化集合
func NewCollection[T any](s *Store, name string) *Collection[T] {
	return &Collection[T]{store: s, name: name}
}

// Name 集合名称
func (c *Collection[T]) Name() string {
	return c.name
}

// Store 返回底层的集合存储
func (c *Collection[T]) Store() *Store {
	return c.store
}

// All 返回全部记录，无法转换的记录被跳过并记录日志
func (c *Collection[T]) All(ctx context.Context) []T {
	return c.decodeAll(ctx, c.store.GetCollection(ctx, c.name))
}

// Get 按 id 查找
func (c *Collection[T]) Get(ctx context.Context, id string) (T, bool) {
	var zero T
	rec := c.store.GetFromCollection(ctx, c.name, id)
	if rec == nil {
		return zero, false
	}
	item, err := FromRecord[T](rec)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("collection", c.name).Str("id", id).Msg("记录转换失败")
		return zero, false
	}
	return item, true
}

// Add 追加一条记录并返回带默认值的结果。checks 在存储锁内执行。
func (c *Collection[T]) Add(ctx context.Context, item T, checks ...Check) (T, error) {
	var zero T
	rec, err := ToRecord(item)
	if err != nil {
		return zero, err
	}
	stored, err := c.store.AddToCollection(ctx, c.name, rec, checks...)
	if err != nil {
		return zero, err
	}
	return FromRecord[T](stored)
}

// AddMany 一次写入追加多条记录
func (c *Collection[T]) AddMany(ctx context.Context, items []T) ([]T, error) {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := ToRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	stored, err := c.store.AddManyToCollection(ctx, c.name, records)
	if err != nil {
		return nil, err
	}
	return c.decodeAll(ctx, stored), nil
}

// Put 按 id 整体替换或追加
func (c *Collection[T]) Put(ctx context.Context, item T) (T, error) {
	var zero T
	rec, err := ToRecord(item)
	if err != nil {
		return zero, err
	}
	stored, err := c.store.PutInCollection(ctx, c.name, rec)
	if err != nil {
		return zero, err
	}
	return FromRecord[T](stored)
}

// Update 合并部分字段，记录不存在时 found 为 false。
// 合并结果无法转换为 T 时返回 *DecodeError 且不写入。
func (c *Collection[T]) Update(ctx context.Context, id string, partial Record, checks ...Check) (item T, found bool, err error) {
	decode := func(_ []Record, rec Record) error {
		decoded, err := FromRecord[T](rec)
		if err != nil {
			return &DecodeError{Collection: c.name, ID: id, Err: err}
		}
		item = decoded
		return nil
	}
	updated, err := c.store.UpdateInCollection(ctx, c.name, id, partial, append([]Check{decode}, checks...)...)
	if err != nil || updated == nil {
		return item, false, err
	}
	return item, true, nil
}

// Remove 删除一条记录
func (c *Collection[T]) Remove(ctx context.Context, id string) (bool, error) {
	return c.store.RemoveFromCollection(ctx, c.name, id)
}

// Search 线性过滤
func (c *Collection[T]) Search(ctx context.Context, pred func(T) bool) []T {
	out := []T{}
	for _, item := range c.All(ctx) {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Replace 整体覆盖集合
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := ToRecord(item)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return c.store.SetCollection(ctx, c.name, records)
}

// Size 记录数
func (c *Collection[T]) Size(ctx context.Context) int {
	return c.store.GetCollectionSize(ctx, c.name)
}

func (c *Collection[T]) decodeAll(ctx context.Context, records []Record) []T {
	out := make([]T, 0, len(records))
	for _, rec := range records {
		item, err := FromRecord[T](rec)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("collection", c.name).Str("id", rec.ID()).Msg("记录转换失败，已跳过")
			continue
		}
		out = append(out, item)
	}
	return out
}

// ToRecord 把任意可 JSON 序列化的值转换为 Record
func ToRecord(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化记录失败: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("记录必须是 JSON 对象: %w", err)
	}
	return rec, nil
}

// FromRecord 把 Record 转换为类型 T
func FromRecord[T any](rec Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("序列化记录失败: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("反序列化记录失败: %w", err)
	}
	return out, nil
}
