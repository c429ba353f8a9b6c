package types

import "time"

// BatchStatus 批量上传及其候选文件的处理状态
type BatchStatus string

const (
	// BatchStatusPending 已创建，等待处理
	BatchStatusPending BatchStatus = "pending"
	// BatchStatusProcessing 处理中
	BatchStatusProcessing BatchStatus = "processing"
	// BatchStatusCompleted 处理完成
	BatchStatusCompleted BatchStatus = "completed"
	// BatchStatusFailed 失败或被取消
	BatchStatusFailed BatchStatus = "failed"
)

// Valid 是否为已知状态
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchStatusPending, BatchStatusProcessing, BatchStatusCompleted, BatchStatusFailed:
		return true
	}
	return false
}

// Terminal 是否为终态
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// MatchStatus 招聘流程状态，前进顺序不做强制
type MatchStatus string

const (
	MatchStatusApplied      MatchStatus = "applied"
	MatchStatusInterviewing MatchStatus = "interviewing"
	MatchStatusOffered      MatchStatus = "offered"
	MatchStatusRejected     MatchStatus = "rejected"
	MatchStatusHired        MatchStatus = "hired"
)

// Valid 是否为已知状态
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusApplied, MatchStatusInterviewing, MatchStatusOffered, MatchStatusRejected, MatchStatusHired:
		return true
	}
	return false
}

// UserRole 用户角色
type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleRecruiter     UserRole = "recruiter"
	RoleHiringManager UserRole = "hiring_manager"
	RoleViewer        UserRole = "viewer"
)

// Valid 是否为已知角色
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleRecruiter, RoleHiringManager, RoleViewer:
		return true
	}
	return false
}

// JobStatus 岗位状态
type JobStatus string

const (
	JobStatusDraft  JobStatus = "draft"
	JobStatusOpen   JobStatus = "open"
	JobStatusClosed JobStatus = "closed"
)

// Company 公司
type Company struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Industry         string    `json:"industry,omitempty"`
	Size             string    `json:"size,omitempty"`
	Website          string    `json:"website,omitempty"`
	Location         string    `json:"location,omitempty"`
	SubscriptionPlan string    `json:"subscription_plan,omitempty"`
	Status           string    `json:"status,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// User 系统用户
type User struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id,omitempty"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	Status    string     `json:"status,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SalaryRange 薪资范围
type SalaryRange struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency"`
}

// Job 岗位
type Job struct {
	ID             string       `json:"id"`
	CompanyID      string       `json:"company_id"`
	Title          string       `json:"title"`
	Department     string       `json:"department,omitempty"`
	Location       string       `json:"location,omitempty"`
	EmploymentType string       `json:"employment_type,omitempty"`
	Description    string       `json:"description,omitempty"`
	Requirements   []string     `json:"requirements,omitempty"`
	Skills         []string     `json:"skills,omitempty"`
	Salary         *SalaryRange `json:"salary_range,omitempty"`
	Status         JobStatus    `json:"status"`
	CreatedBy      string       `json:"created_by,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Candidate 候选人
type Candidate struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id,omitempty"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Location        string    `json:"location,omitempty"`
	CurrentTitle    string    `json:"current_title,omitempty"`
	ExperienceYears int       `json:"experience_years,omitempty"`
	Education       string    `json:"education,omitempty"`
	Skills          []string  `json:"skills,omitempty"`
	ResumeFile      string    `json:"resume_file,omitempty"`
	Source          string    `json:"source,omitempty"`
	BatchUploadID   string    `json:"batch_upload_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MatchAnalysis 匹配分项得分，每项在 [0,1]
type MatchAnalysis struct {
	Skills     float64 `json:"skills"`
	Experience float64 `json:"experience"`
	Education  float64 `json:"education"`
	Location   float64 `json:"location"`
}

// JobMatch 岗位与候选人的匹配
type JobMatch struct {
	ID          string        `json:"id"`
	JobID       string        `json:"job_id"`
	CandidateID string        `json:"candidate_id"`
	Status      MatchStatus   `json:"status"`
	Score       float64       `json:"score"`
	Analysis    MatchAnalysis `json:"analysis"`
	AISummary   string        `json:"ai_summary,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BatchUpload 一次批量简历上传
type BatchUpload struct {
	ID                   string      `json:"id"`
	CompanyID            string      `json:"company_id"`
	JobID                string      `json:"job_id"`
	FileName             string      `json:"file_name"`
	FileSize             *int64      `json:"file_size,omitempty"`
	FileMD5              string      `json:"file_md5,omitempty"`
	ObjectKey            string      `json:"object_key,omitempty"`
	Status               BatchStatus `json:"status"`
	UploadedBy           string      `json:"uploaded_by"`
	TotalCandidates      *int        `json:"total_candidates,omitempty"`
	ProcessedCandidates  *int        `json:"processed_candidates,omitempty"`
	SuccessfulCandidates *int        `json:"successful_candidates,omitempty"`
	FailedCandidates     *int        `json:"failed_candidates,omitempty"`
	ErrorMessage         string      `json:"error_message,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
	CompletedAt          *time.Time  `json:"completed_at,omitempty"`
}

// BatchCandidate 批量上传中的单个文件
type BatchCandidate struct {
	ID            string      `json:"id"`
	BatchUploadID string      `json:"batch_upload_id"`
	FileName      string      `json:"file_name"`
	Status        BatchStatus `json:"status"`
	CandidateID   string      `json:"candidate_id,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ProcessedAt   *time.Time  `json:"processed_at,omitempty"`
}

// APIUsage 按天统计的接口调用量
type APIUsage struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Endpoint  string    `json:"endpoint"`
	Count     int       `json:"count"`
	Date      string    `json:"date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivityLog 操作日志
type ActivityLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
