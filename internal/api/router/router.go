// Package router 注册 HTTP 路由
package router

import (
	"context"

	"recruit-go/internal/api/handler"
	"recruit-go/internal/api/middleware"
	"recruit-go/internal/batch"
	"recruit-go/internal/bootstrap"
	"recruit-go/internal/service"
	"recruit-go/internal/storage"
	"recruit-go/internal/types"
	"recruit-go/pkg/ratelimit"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/route"
)

// Deps 路由依赖的服务
type Deps struct {
	Companies  *service.CompanyService
	Users      *service.UserService
	Jobs       *service.JobService
	Candidates *service.CandidateService
	Matches    *service.JobMatchService
	Batches    *batch.Service
	Reset      *bootstrap.ResetService

	Objects   storage.ObjectStorage
	Presigner handler.Presigner // 可选

	AdminAPIKey string
	RateLimiter *ratelimit.Registry // 可选
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, d Deps) {
	h.Use(middleware.RequestID(), middleware.AccessLog())

	h.GET("/health", handler.Health)

	// 简历PDF，供前端直接内嵌预览
	if d.Objects != nil {
		resumes := handler.NewResumeHandler(d.Objects, d.Presigner)
		h.GET("/api/resumes/:filename", resumes.Serve)
	}

	api := h.Group("/api/v1")
	if d.RateLimiter != nil {
		api.Use(middleware.RateLimit(d.RateLimiter))
	}
	api.GET("/health", handler.Health)

	companies := handler.NewEntityHandler[types.Company](d.Companies)
	registerEntity(api.Group("/companies"), companies)

	users := handler.NewEntityHandler[types.User](d.Users).
		WithFilter("company_id", func(ctx context.Context, companyID string) ([]types.User, error) {
			all, err := d.Users.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]types.User, 0, len(all))
			for _, u := range all {
				if u.CompanyID == companyID {
					out = append(out, u)
				}
			}
			return out, nil
		})
	registerEntity(api.Group("/users"), users)

	jobs := handler.NewEntityHandler[types.Job](d.Jobs).
		WithFilter("company_id", d.Jobs.GetByCompany)
	registerEntity(api.Group("/jobs"), jobs)

	candidates := handler.NewEntityHandler[types.Candidate](d.Candidates).
		WithFilter("company_id", d.Candidates.GetByCompany).
		WithFilter("job_id", d.Candidates.GetByJob)
	registerEntity(api.Group("/candidates"), candidates)

	matches := handler.NewMatchHandler(d.Matches)
	mg := api.Group("/matches")
	mg.GET("", matches.List)
	mg.POST("/calculate", matches.Calculate)
	mg.POST("/bulk", matches.Bulk)
	mg.GET("/:id", matches.Get)
	mg.PUT("/:id/status", matches.UpdateStatus)
	mg.DELETE("/:id", matches.Delete)

	batches := handler.NewBatchHandler(d.Batches, d.Objects)
	bg := api.Group("/batch-uploads")
	bg.GET("", batches.List)
	bg.POST("", batches.Create)
	bg.GET("/watch", batches.Watch)
	bg.GET("/:id", batches.Get)
	bg.GET("/:id/candidates", batches.Candidates)
	bg.POST("/:id/cancel", batches.Cancel)
	bg.POST("/:id/retry", batches.Retry)
	bg.PUT("/:id/status", batches.UpdateStatus)

	admin := handler.NewAdminHandler(d.Reset, d.Batches)
	ag := api.Group("/admin", middleware.AdminAuth(d.AdminAPIKey))
	ag.GET("/stats", admin.Stats)
	ag.POST("/reset", admin.Reset)
	ag.POST("/seed", admin.Seed)
	ag.GET("/export", admin.Export)
	ag.GET("/export/users.csv", admin.ExportUsersCSV)
	ag.GET("/export/activity-logs.csv", admin.ExportActivityLogsCSV)
}

type entityRoutes interface {
	List(ctx context.Context, c *app.RequestContext)
	Get(ctx context.Context, c *app.RequestContext)
	Create(ctx context.Context, c *app.RequestContext)
	Update(ctx context.Context, c *app.RequestContext)
	Delete(ctx context.Context, c *app.RequestContext)
}

func registerEntity(g *route.RouterGroup, h entityRoutes) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
