// Package middleware hertz 中间件: 请求ID、访问日志、限流和管理接口鉴权
package middleware

import (
	"context"
	"crypto/subtle"
	"math"
	"strconv"
	"time"

	"recruit-go/internal/logger"
	"recruit-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
)

const (
	// HeaderRequestID 请求ID头
	HeaderRequestID = "X-Request-ID"
	// HeaderAdminKey 管理接口密钥头
	HeaderAdminKey = "X-Admin-Key"

	// ContextKeyRequestID RequestContext 中保存请求ID的键
	ContextKeyRequestID = "request_id"
)

// RequestID 透传或生成请求ID，写入响应头和日志上下文
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := string(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Response.Header.Set(HeaderRequestID, id)
		c.Next(logger.WithRequestID(ctx, id))
	}
}

// AccessLog 记录每个请求的方法、路径、状态码和耗时
func AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		hlog.CtxInfof(ctx, "[%s] %s %s %d %s",
			c.GetString(ContextKeyRequestID),
			c.Method(), c.Request.URI().PathOriginal(),
			c.Response.StatusCode(), time.Since(start))
	}
}

// RateLimit 按客户端IP限流，超限返回 429 并带 Retry-After
func RateLimit(registry *ratelimit.Registry) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		key := c.ClientIP()
		if registry.Allow(key) {
			c.Next(ctx)
			return
		}
		wait := registry.RetryAfter(key)
		c.Response.Header.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		logger.Ctx(ctx).Warn().Str("client_ip", key).Msg("请求被限流")
		c.AbortWithStatusJSON(consts.StatusTooManyRequests, utils.H{"error": "请求过于频繁，请稍后重试"})
	}
}

// AdminAuth 校验 X-Admin-Key。未配置密钥时管理接口全部拒绝。
func AdminAuth(apiKey string) app.HandlerFunc {
	expected := []byte(apiKey)
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+HeaderAdminKey, ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			if len(expected) == 0 {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), expected) == 1, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			logger.Ctx(ctx).Warn().Str("client_ip", c.ClientIP()).Msg("管理接口鉴权失败")
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效的管理密钥"})
		}),
	)
}
