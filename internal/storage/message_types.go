package storage

import "time"

// BatchUploadEvent 批量上传状态变更消息，发布到 batch.events 交换机
type BatchUploadEvent struct {
	EventType      string    `json:"event_type"`
	UploadID       string    `json:"upload_id"`
	CompanyID      string    `json:"company_id"`
	JobID          string    `json:"job_id"`
	FileName       string    `json:"file_name,omitempty"`
	UploadedBy     string    `json:"uploaded_by,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
