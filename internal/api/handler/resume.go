package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/storage"
	"recruit-go/pkg/utils"

	"github.com/cloudwego/hertz/pkg/app"
	hutils "github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ResumeOpener 读取简历PDF
type ResumeOpener interface {
	OpenResume(ctx context.Context, fileName string) (io.ReadCloser, int64, error)
}

// Presigner 生成简历的临时下载链接 (MinIO)
type Presigner interface {
	GetPresignedURL(ctx context.Context, fileName string, expiry time.Duration) (string, error)
}

// ResumeHandler 简历文件下载
type ResumeHandler struct {
	opener    ResumeOpener
	presigner Presigner
}

// NewResumeHandler presigner 可以为 nil，此时不支持 ?redirect=true
func NewResumeHandler(opener ResumeOpener, presigner Presigner) *ResumeHandler {
	return &ResumeHandler{opener: opener, presigner: presigner}
}

// Serve GET /api/resumes/:filename
func (h *ResumeHandler) Serve(ctx context.Context, c *app.RequestContext) {
	name := utils.BaseName(c.Param("filename"))
	if name == "" {
		c.JSON(consts.StatusNotFound, hutils.H{"error": "简历不存在"})
		return
	}

	if h.presigner != nil && c.Query("redirect") == "true" {
		url, err := h.presigner.GetPresignedURL(ctx, name, constants.ResumePresignExpiry)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("file", name).Msg("生成简历下载链接失败")
			c.JSON(consts.StatusInternalServerError, hutils.H{"error": "生成下载链接失败"})
			return
		}
		c.Redirect(consts.StatusFound, []byte(url))
		return
	}

	rc, size, err := h.opener.OpenResume(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.JSON(consts.StatusNotFound, hutils.H{"error": "简历不存在"})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("file", name).Msg("读取简历失败")
		c.JSON(consts.StatusInternalServerError, hutils.H{"error": "读取简历失败"})
		return
	}

	c.Response.Header.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, name))
	c.SetContentType("application/pdf")
	c.SetStatusCode(consts.StatusOK)
	c.Response.SetBodyStream(rc, int(size))
}
