package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recruit-go/internal/batch"
	"recruit-go/internal/logger"
	"recruit-go/internal/storage"
	"recruit-go/internal/types"
	"recruit-go/pkg/utils"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// BatchHandler 批量上传接口
type BatchHandler struct {
	svc     *batch.Service
	objects storage.ObjectStorage
}

const (
	defaultWatchTimeout = 25 * time.Second
	maxWatchTimeout     = time.Minute
)

type updateBatchStatusRequest struct {
	Status types.BatchStatus `json:"status"`
}

// WatchResponse 长轮询结果，Changed 为 false 表示等待超时
type WatchResponse struct {
	Changed bool                `json:"changed"`
	Uploads []types.BatchUpload `json:"uploads"`
}

// NewBatchHandler objects 为 nil 时只记录上传元数据，不保存文件
func NewBatchHandler(svc *batch.Service, objects storage.ObjectStorage) *BatchHandler {
	return &BatchHandler{svc: svc, objects: objects}
}

// Create POST /batch-uploads (multipart: file, company_id, job_id, uploaded_by)
func (h *BatchHandler) Create(ctx context.Context, c *app.RequestContext) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "文件未找到")
		return
	}
	companyID := c.PostForm("company_id")
	jobID := c.PostForm("job_id")
	if companyID == "" || jobID == "" {
		badRequest(c, "company_id 和 job_id 不能为空")
		return
	}
	fileName := utils.BaseName(fileHeader.Filename)
	if fileName == "" {
		badRequest(c, "文件名无效")
		return
	}

	in := batch.CreateInput{
		ID:         h.svc.NewUploadID(),
		CompanyID:  companyID,
		JobID:      jobID,
		FileName:   fileName,
		FileSize:   utils.Int64Ptr(fileHeader.Size),
		UploadedBy: c.PostForm("uploaded_by"),
	}

	if h.objects != nil {
		file, err := fileHeader.Open()
		if err != nil {
			writeError(ctx, c, fmt.Errorf("打开上传文件失败: %w", err))
			return
		}
		defer file.Close()

		in.ObjectKey, in.FileMD5, err = h.objects.UploadBatchFile(ctx, in.ID, fileName, file, fileHeader.Size)
		if err != nil {
			writeError(ctx, c, fmt.Errorf("保存上传文件失败: %w", err))
			return
		}
	}

	upload, err := h.svc.CreateBatchUpload(ctx, in)
	if err != nil {
		if h.objects != nil && in.ObjectKey != "" {
			if delErr := h.objects.DeleteBatchFile(ctx, in.ObjectKey); delErr != nil {
				logger.Ctx(ctx).Warn().Err(delErr).Str("key", in.ObjectKey).Msg("清理上传文件失败")
			}
		}
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusCreated, upload)
}

// List GET /batch-uploads?company_id=
func (h *BatchHandler) List(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.svc.ListBatchUploads(ctx, c.Query("company_id")))
}

// Get GET /batch-uploads/:id
func (h *BatchHandler) Get(ctx context.Context, c *app.RequestContext) {
	upload, err := h.svc.GetBatchUpload(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, upload)
}

// Candidates GET /batch-uploads/:id/candidates
func (h *BatchHandler) Candidates(ctx context.Context, c *app.RequestContext) {
	candidates, err := h.svc.GetBatchCandidates(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, candidates)
}

// Cancel POST /batch-uploads/:id/cancel
func (h *BatchHandler) Cancel(ctx context.Context, c *app.RequestContext) {
	upload, err := h.svc.CancelUpload(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, upload)
}

// Retry POST /batch-uploads/:id/retry
func (h *BatchHandler) Retry(ctx context.Context, c *app.RequestContext) {
	upload, err := h.svc.RetryFailedUpload(ctx, c.Param("id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, upload)
}

// UpdateStatus PUT /batch-uploads/:id/status
func (h *BatchHandler) UpdateStatus(ctx context.Context, c *app.RequestContext) {
	var req updateBatchStatusRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		badRequest(c, "请求体不是合法的JSON: "+err.Error())
		return
	}
	upload, err := h.svc.UpdateBatchStatus(ctx, c.Param("id"), req.Status)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, upload)
}

// Watch GET /batch-uploads/watch?company_id=&timeout=
// 长轮询：等待下一次变更后返回最新快照，超时返回当前快照。
func (h *BatchHandler) Watch(ctx context.Context, c *app.RequestContext) {
	timeout := defaultWatchTimeout
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			badRequest(c, "timeout 格式无效")
			return
		}
		timeout = min(d, maxWatchTimeout)
	}
	companyID := c.Query("company_id")

	updates := make(chan []types.BatchUpload, 1)
	initial := true
	unsubscribe := h.svc.SubscribeToUploads(func(snapshot []types.BatchUpload) {
		if initial {
			initial = false
			return
		}
		// 只保留最新快照
		select {
		case <-updates:
		default:
		}
		updates <- snapshot
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-updates:
		c.JSON(consts.StatusOK, WatchResponse{Changed: true, Uploads: h.svc.ListBatchUploads(ctx, companyID)})
	case <-timer.C:
		c.JSON(consts.StatusOK, WatchResponse{Uploads: h.svc.ListBatchUploads(ctx, companyID)})
	case <-ctx.Done():
		writeError(ctx, c, ctx.Err())
	}
}
