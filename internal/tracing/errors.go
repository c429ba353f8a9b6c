package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType span 上 error.type 属性的取值
type ErrorType string

const (
	ErrorTypeDB          ErrorType = "db"
	ErrorTypeRedis       ErrorType = "redis"
	ErrorTypeRabbitMQ    ErrorType = "rabbitmq"
	ErrorTypeOutbox      ErrorType = "outbox"
	ErrorTypeObjectStore ErrorType = "object_store"
	ErrorTypeStore       ErrorType = "store"

	// 以下由 HTTP 状态码推出
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypePermission  ErrorType = "permission"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeInternal    ErrorType = "internal"
)

// RecordError 记录错误并把 span 状态置为 Error，可附带额外属性
func RecordError(span trace.Span, err error, errorType ErrorType, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", TruncateString(err.Error(), DefaultMaxLength)),
	)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	span.SetStatus(codes.Error, err.Error())
}

// ErrorTypeForStatus 按响应状态码给接口错误分类
func ErrorTypeForStatus(statusCode int) ErrorType {
	switch statusCode {
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypePermission
	case http.StatusNotFound:
		return ErrorTypeNotFound
	case http.StatusConflict:
		return ErrorTypeConflict
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimited
	case http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	}
	return ErrorTypeInternal
}

// RecordHTTPError 记录接口错误。4xx 只打属性不改 span 状态，5xx 才标记为 Error。
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("error.type", string(ErrorTypeForStatus(statusCode))),
		attribute.Int("http.status_code", statusCode),
	}
	if statusCode < http.StatusInternalServerError {
		attrs = append(attrs, attribute.String("error.category", "client_error"))
		span.SetAttributes(attrs...)
		return
	}
	attrs = append(attrs, attribute.String("error.category", "server_error"))
	RecordError(span, err, ErrorTypeForStatus(statusCode), attrs...)
}
