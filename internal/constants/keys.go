package constants

import "time"

// 集合存储 Key 前缀和格式常量
// 使用统一的命名规范: {prefix}:{collection}
const (
	// DefaultKeyPrefix 是所有集合 Key 的默认前缀
	DefaultKeyPrefix = "recruit"

	// KeySeparator 前缀和集合名之间的分隔符
	KeySeparator = ":"

	// KeyCollection 集合 Key 格式
	// 格式: {prefix}:{collection}
	KeyCollection = "%s" + KeySeparator + "%s"

	// KeyBootstrapLock 种子数据初始化锁，不落在集合前缀下，清库时不会被删除
	// 格式: {prefix}-lock:bootstrap
	KeyBootstrapLock = "%s-lock" + KeySeparator + "bootstrap"
)

// 已知集合名称
const (
	CollectionCompanies       = "companies"
	CollectionUsers           = "users"
	CollectionJobs            = "jobs"
	CollectionCandidates      = "candidates"
	CollectionJobMatches      = "job_matches"
	CollectionBatchUploads    = "batch_uploads"
	CollectionBatchCandidates = "batch_candidates"
	CollectionAPIUsage        = "api_usage"
	CollectionActivityLogs    = "activity_logs"
)

// KnownCollections 引导和重置时处理的所有集合，顺序即导出顺序
var KnownCollections = []string{
	CollectionCompanies,
	CollectionUsers,
	CollectionJobs,
	CollectionCandidates,
	CollectionJobMatches,
	CollectionBatchUploads,
	CollectionBatchCandidates,
	CollectionAPIUsage,
	CollectionActivityLogs,
}

// 批量上传事件的消息路由
const (
	// DefaultBatchEventsExchange topic 交换机
	DefaultBatchEventsExchange = "batch.events"
	// BatchUploadRoutingKeyPrefix 路由键前缀, 完整格式: batch.upload.{status}
	BatchUploadRoutingKeyPrefix = "batch.upload."
	// BatchUploadEventType 事件类型
	BatchUploadEventType = "batch_upload.status_changed"
)

const (
	// ResumePresignExpiry 简历预签名链接有效期
	ResumePresignExpiry = 15 * time.Minute
	// ArchiveBytesPerCandidate 压缩包内每份简历的估算大小
	ArchiveBytesPerCandidate = 200 * 1024
	// MaxCandidatesPerArchive 单个压缩包估算的候选人上限
	MaxCandidatesPerArchive = 50
)
