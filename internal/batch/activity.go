package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// ActivityRecorder 把批量上传事件记录为操作日志。
// 既可以作为 EventSink 直接挂在服务上，也可以作为 RabbitMQ 消费者的处理函数。
type ActivityRecorder struct {
	logs *store.Collection[types.ActivityLog]
}

// NewActivityRecorder 创建记录器
func NewActivityRecorder(s *store.Store) *ActivityRecorder {
	return &ActivityRecorder{logs: store.NewCollection[types.ActivityLog](s, constants.CollectionActivityLogs)}
}

// Publish 实现 EventSink
func (a *ActivityRecorder) Publish(ctx context.Context, ev storage.BatchUploadEvent) error {
	details := fmt.Sprintf("%s: %s", ev.FileName, ev.Status)
	if ev.PreviousStatus != "" {
		details = fmt.Sprintf("%s: %s -> %s", ev.FileName, ev.PreviousStatus, ev.Status)
	}
	if ev.ErrorMessage != "" {
		details += " (" + ev.ErrorMessage + ")"
	}
	_, err := a.logs.Add(ctx, types.ActivityLog{
		UserID:     ev.UploadedBy,
		Action:     "batch_upload." + ev.Status,
		EntityType: "batch_upload",
		EntityID:   ev.UploadID,
		Details:    details,
		CreatedAt:  ev.OccurredAt,
	})
	return err
}

// HandleMessage 处理一条 RabbitMQ 消息，返回 false 时消息被拒绝
func (a *ActivityRecorder) HandleMessage(body []byte) bool {
	var ev storage.BatchUploadEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		logger.Warn().Err(err).Msg("无法解析批量上传事件")
		return false
	}
	if ev.UploadID == "" || ev.Status == "" {
		logger.Warn().Str("body", string(body)).Msg("批量上传事件缺少字段")
		return false
	}
	if err := a.Publish(context.Background(), ev); err != nil {
		logger.Error().Err(err).Str("upload_id", ev.UploadID).Msg("写入操作日志失败")
		return false
	}
	return true
}

// Consumer 启动消费者的最小接口，storage.RabbitMQ 实现了该接口
type Consumer interface {
	StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan<- struct{}, error)
}

// StartActivityConsumer 从队列消费批量上传事件写入操作日志，返回停止函数
func StartActivityConsumer(c Consumer, queue string, recorder *ActivityRecorder) (stop func(), err error) {
	stopCh, err := c.StartConsumer(queue, 10, recorder.HandleMessage)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { close(stopCh) }) }, nil
}
