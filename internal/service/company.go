package service

import (
	"context"

	"recruit-go/internal/constants"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// CompanyService 公司
type CompanyService struct {
	crud[types.Company]
}

// NewCompanyService 创建公司服务
func NewCompanyService(s *store.Store, delay Delayer) *CompanyService {
	return &CompanyService{
		crud: newCrud(s, constants.CollectionCompanies, delay, ErrCompanyNotFound, func(c types.Company) []string {
			return []string{c.Name, c.Industry, c.Location}
		}),
	}
}

// Create 新建公司，状态缺省为 active
func (s *CompanyService) Create(ctx context.Context, c types.Company) (types.Company, error) {
	if c.Status == "" {
		c.Status = "active"
	}
	return s.create(ctx, c)
}

// Update 合并更新
func (s *CompanyService) Update(ctx context.Context, id string, partial store.Record) (types.Company, error) {
	return s.update(ctx, id, partial)
}
