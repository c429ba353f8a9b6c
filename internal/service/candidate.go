package service

import (
	"context"

	"recruit-go/internal/constants"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// CandidateService 候选人
type CandidateService struct {
	crud[types.Candidate]
	matches *store.Collection[types.JobMatch]
}

// NewCandidateService 创建候选人服务
func NewCandidateService(s *store.Store, delay Delayer) *CandidateService {
	return &CandidateService{
		crud: newCrud(s, constants.CollectionCandidates, delay, ErrCandidateNotFound, func(c types.Candidate) []string {
			texts := []string{c.Name, c.Email, c.CurrentTitle, c.Location}
			return append(texts, c.Skills...)
		}),
		matches: store.NewCollection[types.JobMatch](s, constants.CollectionJobMatches),
	}
}

// Create 新建候选人
func (s *CandidateService) Create(ctx context.Context, c types.Candidate) (types.Candidate, error) {
	return s.create(ctx, c)
}

// Update 合并更新
func (s *CandidateService) Update(ctx context.Context, id string, partial store.Record) (types.Candidate, error) {
	return s.update(ctx, id, partial)
}

// GetByCompany 返回公司下的候选人
func (s *CandidateService) GetByCompany(ctx context.Context, companyID string) ([]types.Candidate, error) {
	return s.filter(ctx, func(c types.Candidate) bool { return c.CompanyID == companyID })
}

// GetByJob 返回与岗位有匹配记录的候选人
func (s *CandidateService) GetByJob(ctx context.Context, jobID string) ([]types.Candidate, error) {
	ids := make(map[string]struct{})
	for _, m := range s.matches.All(ctx) {
		if m.JobID == jobID {
			ids[m.CandidateID] = struct{}{}
		}
	}
	return s.filter(ctx, func(c types.Candidate) bool {
		_, ok := ids[c.ID]
		return ok
	})
}
