// Package service 提供公司、岗位、候选人、用户和匹配记录的增删改查。
// 所有方法先经过 Delayer 模拟延迟，再读写集合存储。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"recruit-go/internal/store"
)

// crud 各实体服务共用的增删改查实现
type crud[T any] struct {
	coll     *store.Collection[T]
	delay    Delayer
	notFound error
	// 搜索时参与匹配的字段
	searchText func(T) []string
}

func newCrud[T any](s *store.Store, name string, delay Delayer, notFound error, searchText func(T) []string) crud[T] {
	if delay == nil {
		delay = NoDelay{}
	}
	return crud[T]{
		coll:       store.NewCollection[T](s, name),
		delay:      delay,
		notFound:   notFound,
		searchText: searchText,
	}
}

func (c *crud[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := c.delay.Delay(ctx); err != nil {
		return nil, err
	}
	return c.coll.All(ctx), nil
}

func (c *crud[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T
	if err := c.delay.Delay(ctx); err != nil {
		return zero, err
	}
	item, ok := c.coll.Get(ctx, id)
	if !ok {
		return zero, c.notFound
	}
	return item, nil
}

func (c *crud[T]) create(ctx context.Context, item T, checks ...store.Check) (T, error) {
	var zero T
	if err := c.delay.Delay(ctx); err != nil {
		return zero, err
	}
	return c.coll.Add(ctx, item, checks...)
}

func (c *crud[T]) update(ctx context.Context, id string, partial store.Record, checks ...store.Check) (T, error) {
	var zero T
	if err := c.delay.Delay(ctx); err != nil {
		return zero, err
	}
	item, found, err := c.coll.Update(ctx, id, partial, checks...)
	if store.IsDecodeError(err) {
		return zero, &ValidationError{Messages: []string{fmt.Sprintf("invalid field types: %v", errors.Unwrap(err))}}
	}
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, c.notFound
	}
	return item, nil
}

func (c *crud[T]) Delete(ctx context.Context, id string) error {
	if err := c.delay.Delay(ctx); err != nil {
		return err
	}
	removed, err := c.coll.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return c.notFound
	}
	return nil
}

// Search 不区分大小写的子串匹配，query 为空时返回全部
func (c *crud[T]) Search(ctx context.Context, query string) ([]T, error) {
	if err := c.delay.Delay(ctx); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.coll.All(ctx), nil
	}
	return c.coll.Search(ctx, func(item T) bool {
		for _, text := range c.searchText(item) {
			if strings.Contains(strings.ToLower(text), q) {
				return true
			}
		}
		return false
	}), nil
}

func (c *crud[T]) filter(ctx context.Context, pred func(T) bool) ([]T, error) {
	if err := c.delay.Delay(ctx); err != nil {
		return nil, err
	}
	return c.coll.Search(ctx, pred), nil
}
