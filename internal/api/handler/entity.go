package handler

import (
	"context"
	"encoding/json"

	"recruit-go/internal/store"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// CRUDService 公司、用户、岗位和候选人服务的公共方法
type CRUDService[T any] interface {
	GetAll(ctx context.Context) ([]T, error)
	GetByID(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, partial store.Record) (T, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string) ([]T, error)
}

// ListFilter 列表接口的查询参数过滤，例如 ?company_id=
type ListFilter[T any] func(ctx context.Context, value string) ([]T, error)

// EntityHandler 一类实体的 REST 接口
type EntityHandler[T any] struct {
	svc     CRUDService[T]
	filters map[string]ListFilter[T]
}

// NewEntityHandler 创建实体接口
func NewEntityHandler[T any](svc CRUDService[T]) *EntityHandler[T] {
	return &EntityHandler[T]{svc: svc, filters: map[string]ListFilter[T]{}}
}

// WithFilter 注册一个查询参数过滤
func (h *EntityHandler[T]) WithFilter(param string, f ListFilter[T]) *EntityHandler[T] {
	h.filters[param] = f
	return h
}

// List GET /<entity>?q=
func (h *EntityHandler[T]) List(ctx context.Context, c *app.RequestContext) {
	var (
		items []T
		err   error
	)
	if q := c.Query("q"); q != "" {
		items, err = h.svc.Search(ctx, q)
	} else {
		items, err = h.list(ctx, c)
	}
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, items)
}

func (h *EntityHandler[T]) list(ctx context.Context, c *app.RequestContext) ([]T, error) {
	for param, f := range h.filters {
		if v := c.Query(param); v != "" {
			return f(ctx, v)
		}
	}
	return h.svc.GetAll(ctx)
}

// Get GET /<entity>/:id
func (h *EntityHandler[T]) Get(ctx context.Context, c *app.RequestContext) {
	item, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, item)
}

// Create POST /<entity>
func (h *EntityHandler[T]) Create(ctx context.Context, c *app.RequestContext) {
	var item T
	if err := json.Unmarshal(c.Request.Body(), &item); err != nil {
		badRequest(c, "请求体不是合法的JSON: "+err.Error())
		return
	}
	created, err := h.svc.Create(ctx, item)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, created)
}

// Update PUT /<entity>/:id，请求体中的字段合并到原记录
func (h *EntityHandler[T]) Update(ctx context.Context, c *app.RequestContext) {
	var partial store.Record
	if err := json.Unmarshal(c.Request.Body(), &partial); err != nil || partial == nil {
		badRequest(c, "请求体必须是JSON对象")
		return
	}
	delete(partial, "created_at")
	updated, err := h.svc.Update(ctx, c.Param("id"), partial)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, updated)
}

// Delete DELETE /<entity>/:id
func (h *EntityHandler[T]) Delete(ctx context.Context, c *app.RequestContext) {
	if err := h.svc.Delete(ctx, c.Param("id")); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.Status(consts.StatusNoContent)
}
