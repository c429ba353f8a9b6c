package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/storage"
	"recruit-go/internal/storage/models"
	"recruit-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("recruit-go/batch")

// eventAttributes 事件的 span 属性，上传人做掩码
func eventAttributes(ev storage.BatchUploadEvent) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("recruit.batch.upload_id", ev.UploadID),
		attribute.String("recruit.batch.status", ev.Status),
		attribute.String("recruit.company_id", ev.CompanyID),
	}
	if ev.PreviousStatus != "" {
		attrs = append(attrs, attribute.String("recruit.batch.previous_status", ev.PreviousStatus))
	}
	if ev.FileName != "" {
		attrs = append(attrs, attribute.String("recruit.batch.file_name", tracing.TruncateString(ev.FileName, tracing.DefaultMaxLength)))
	}
	if ev.UploadedBy != "" {
		attrs = append(attrs, attribute.String("recruit.batch.uploaded_by",
			tracing.SafeAttributeValue("uploaded_by", ev.UploadedBy, tracing.DefaultMaxLength)))
	}
	return attrs
}

// RoutingKey 事件的路由键, 例如 batch.upload.completed
func RoutingKey(status string) string {
	return constants.BatchUploadRoutingKeyPrefix + status
}

// Publisher 发布 JSON 消息，storage.RabbitMQ 实现了该接口
type Publisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// RabbitMQSink 直接把事件发布到交换机
type RabbitMQSink struct {
	publisher Publisher
	exchange  string
	timeout   time.Duration
}

// NewRabbitMQSink exchange 为空时使用默认交换机
func NewRabbitMQSink(publisher Publisher, exchange string, timeout time.Duration) *RabbitMQSink {
	if exchange == "" {
		exchange = constants.DefaultBatchEventsExchange
	}
	return &RabbitMQSink{publisher: publisher, exchange: exchange, timeout: timeout}
}

// Publish 实现 EventSink
func (s *RabbitMQSink) Publish(ctx context.Context, ev storage.BatchUploadEvent) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "batch.PublishEvent",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(eventAttributes(ev)...),
	)
	defer span.End()

	if err := s.publisher.PublishJSON(ctx, s.exchange, RoutingKey(ev.Status), ev, true); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
		return err
	}
	return nil
}

// OutboxSink 把事件写入 outbox_messages 表，由 outbox.MessageRelay 异步转发
type OutboxSink struct {
	db       *gorm.DB
	exchange string
}

// NewOutboxSink 创建发件箱出口
func NewOutboxSink(db *gorm.DB, exchange string) *OutboxSink {
	if exchange == "" {
		exchange = constants.DefaultBatchEventsExchange
	}
	return &OutboxSink{db: db, exchange: exchange}
}

// Publish 实现 EventSink
func (s *OutboxSink) Publish(ctx context.Context, ev storage.BatchUploadEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := models.OutboxMessage{
		AggregateID:      ev.UploadID,
		EventType:        ev.EventType,
		Payload:          datatypes.JSON(payload),
		TargetExchange:   s.exchange,
		TargetRoutingKey: RoutingKey(ev.Status),
		Status:           models.OutboxStatusPending,
	}
	ctx, span := tracer.Start(ctx, "batch.WriteOutbox", trace.WithAttributes(eventAttributes(ev)...))
	defer span.End()
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeOutbox)
		return fmt.Errorf("写入outbox失败: %w", err)
	}
	return nil
}
