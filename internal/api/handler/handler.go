// Package handler HTTP 接口处理函数
package handler

import (
	"context"
	"errors"

	"recruit-go/internal/batch"
	"recruit-go/internal/logger"
	"recruit-go/internal/service"
	"recruit-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel/trace"
)

// ErrorResponse 统一的错误响应
type ErrorResponse struct {
	Error    string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

// StatusFor 把业务错误映射为 HTTP 状态码
func StatusFor(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return consts.StatusBadRequest
	case errors.Is(err, service.ErrInvalidMatchStatus), errors.Is(err, batch.ErrInvalidStatus):
		return consts.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, batch.ErrBatchUploadNotFound):
		return consts.StatusNotFound
	case errors.Is(err, batch.ErrInvalidTransition), errors.Is(err, service.ErrDuplicateID):
		return consts.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	}
	return consts.StatusInternalServerError
}

// writeError 写出错误响应，5xx 记录错误日志
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := StatusFor(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)

	resp := ErrorResponse{Error: err.Error()}
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Messages = verr.Messages
	}
	if status >= consts.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Str("path", string(c.Request.URI().Path())).Msg("请求处理失败")
		resp.Error = "服务器内部错误"
	}
	c.JSON(status, resp)
}

func badRequest(c *app.RequestContext, msg string) {
	c.JSON(consts.StatusBadRequest, utils.H{"error": msg})
}

// Health 健康检查
func Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}
