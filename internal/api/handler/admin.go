package handler

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"recruit-go/internal/batch"
	"recruit-go/internal/bootstrap"
	"recruit-go/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// AdminHandler 数据库管理接口
type AdminHandler struct {
	reset   *bootstrap.ResetService
	batches *batch.Service
	now     func() time.Time
}

// NewAdminHandler 创建管理接口。batches 非空时重置会同时清空批量上传的内存状态和定时任务。
func NewAdminHandler(reset *bootstrap.ResetService, batches *batch.Service) *AdminHandler {
	return &AdminHandler{reset: reset, batches: batches, now: time.Now}
}

// Stats GET /admin/stats
func (h *AdminHandler) Stats(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, h.reset.GetDatabaseStats(ctx))
}

// Reset POST /admin/reset
func (h *AdminHandler) Reset(ctx context.Context, c *app.RequestContext) {
	var err error
	if h.batches != nil {
		_, err = h.batches.Reset(ctx, h.reset.ResetDatabase)
	} else {
		err = h.reset.ResetDatabase(ctx)
	}
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	logger.Ctx(ctx).Warn().Msg("数据库已通过管理接口重置")
	c.JSON(consts.StatusOK, utils.H{"message": "数据库已重置", "stats": h.reset.GetDatabaseStats(ctx)})
}

// Seed POST /admin/seed
func (h *AdminHandler) Seed(ctx context.Context, c *app.RequestContext) {
	if err := h.reset.InitializeWithMockData(ctx); err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"message": "已写入示例数据", "stats": h.reset.GetDatabaseStats(ctx)})
}

// Export GET /admin/export，以附件形式下载全部数据
func (h *AdminHandler) Export(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := h.reset.ExportJSON(ctx, &buf); err != nil {
		writeError(ctx, c, err)
		return
	}
	attachment(c, bootstrap.BackupFileName(h.now()))
	c.Data(consts.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

// ExportUsersCSV GET /admin/export/users.csv
func (h *AdminHandler) ExportUsersCSV(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := h.reset.ExportUsersCSV(ctx, &buf); err != nil {
		writeError(ctx, c, err)
		return
	}
	attachment(c, fmt.Sprintf("users-%s.csv", h.now().Format("2006-01-02")))
	c.Data(consts.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ExportActivityLogsCSV GET /admin/export/activity-logs.csv
func (h *AdminHandler) ExportActivityLogsCSV(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := h.reset.ExportActivityLogsCSV(ctx, &buf); err != nil {
		writeError(ctx, c, err)
		return
	}
	attachment(c, fmt.Sprintf("activity-logs-%s.csv", h.now().Format("2006-01-02")))
	c.Data(consts.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func attachment(c *app.RequestContext, fileName string) {
	c.Response.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))
}
