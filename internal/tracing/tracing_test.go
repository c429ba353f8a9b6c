package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "No****im", MaskPII("Noah Kim"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "em*******@example.com", MaskEmail("emma.chen@example.com"))
	assert.Equal(t, "b*@x.io", MaskEmail("bo@x.io"))
	assert.Equal(t, "no****gn", MaskEmail("noatsign"))
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "jo**@example.com", SafeAttributeValue("user.email", "john@example.com", 100))
	assert.Equal(t, "us**-2", SafeAttributeValue("uploaded_by", "user-2", 100))
	assert.Equal(t, "companies", SafeAttributeValue("collection", "companies", 100))
	assert.Equal(t, "ab...yz", TruncateString("abcdefghijklmnopqrstuvwxyz", 7))
}

func TestErrorTypeForStatus(t *testing.T) {
	assert.Equal(t, ErrorTypeValidation, ErrorTypeForStatus(400))
	assert.Equal(t, ErrorTypePermission, ErrorTypeForStatus(401))
	assert.Equal(t, ErrorTypeNotFound, ErrorTypeForStatus(404))
	assert.Equal(t, ErrorTypeConflict, ErrorTypeForStatus(409))
	assert.Equal(t, ErrorTypeRateLimited, ErrorTypeForStatus(429))
	assert.Equal(t, ErrorTypeTimeout, ErrorTypeForStatus(504))
	assert.Equal(t, ErrorTypeInternal, ErrorTypeForStatus(500))
}

func TestRecordHTTPError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, clientSpan := tp.Tracer("test").Start(context.Background(), "client")
	RecordHTTPError(clientSpan, errors.New("job not found"), 404)
	clientSpan.End()

	_, serverSpan := tp.Tracer("test").Start(context.Background(), "server")
	RecordHTTPError(serverSpan, errors.New("disk full"), 500)
	serverSpan.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("error.type", "not_found"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Contains(t, spans[1].Attributes(), attribute.String("error.category", "server_error"))
}

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "op")

	RecordError(span, errors.New("boom"), ErrorTypeStore)
	RecordError(nil, errors.New("ignored"), ErrorTypeStore)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("error.type", "store"))
}

func TestInitProviderDisabled(t *testing.T) {
	shutdown, err := InitProvider(context.Background(), false, "", "svc")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
