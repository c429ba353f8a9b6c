package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox 消息状态
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 待异步发布到 RabbitMQ 的批量上传事件
type OutboxMessage struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement"`
	AggregateID      string         `gorm:"type:varchar(64);not null;index"` // 批量上传ID
	EventType        string         `gorm:"type:varchar(255);not null"`
	Payload          datatypes.JSON `gorm:"not null"`
	TargetExchange   string         `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string         `gorm:"type:varchar(255);not null"`
	Status           string         `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at,priority:1"`
	RetryCount       int            `gorm:"default:0"`
	CreatedAt        time.Time      `gorm:"index:idx_outbox_status_created_at,priority:2"`
	ProcessedAt      *time.Time
	ErrorMessage     string `gorm:"type:text"`
}

// TableName specifies the table name for the OutboxMessage model.
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
