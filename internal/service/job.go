package service

import (
	"context"

	"recruit-go/internal/constants"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// JobService 岗位
type JobService struct {
	crud[types.Job]
}

// NewJobService 创建岗位服务
func NewJobService(s *store.Store, delay Delayer) *JobService {
	return &JobService{
		crud: newCrud(s, constants.CollectionJobs, delay, ErrJobNotFound, func(j types.Job) []string {
			texts := []string{j.Title, j.Department, j.Location, j.Description}
			return append(texts, j.Skills...)
		}),
	}
}

// Create 新建岗位，状态缺省为 draft
func (s *JobService) Create(ctx context.Context, j types.Job) (types.Job, error) {
	if j.Status == "" {
		j.Status = types.JobStatusDraft
	}
	return s.create(ctx, j)
}

// Update 合并更新
func (s *JobService) Update(ctx context.Context, id string, partial store.Record) (types.Job, error) {
	return s.update(ctx, id, partial)
}

// GetByCompany 返回公司下的岗位
func (s *JobService) GetByCompany(ctx context.Context, companyID string) ([]types.Job, error) {
	return s.filter(ctx, func(j types.Job) bool { return j.CompanyID == companyID })
}
