package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"recruit-go/internal/constants"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
)

// UserService 用户，创建和更新时做字段校验
type UserService struct {
	crud[types.User]
}

// NewUserService 创建用户服务
func NewUserService(s *store.Store, delay Delayer) *UserService {
	return &UserService{
		crud: newCrud(s, constants.CollectionUsers, delay, ErrUserNotFound, func(u types.User) []string {
			return []string{u.Name, u.Email, string(u.Role)}
		}),
	}
}

// Create 校验后新建用户，状态缺省为 active
func (s *UserService) Create(ctx context.Context, u types.User) (types.User, error) {
	u.Email = strings.TrimSpace(u.Email)
	if err := s.validate(ctx, u, ""); err != nil {
		return types.User{}, err
	}
	if u.Status == "" {
		u.Status = "active"
	}
	return s.create(ctx, u, uniqueEmail(u.Email))
}

// Update 合并后整体校验，再写入
func (s *UserService) Update(ctx context.Context, id string, partial store.Record) (types.User, error) {
	current, ok := s.coll.Get(ctx, id)
	if !ok {
		return types.User{}, ErrUserNotFound
	}
	rec, err := store.ToRecord(current)
	if err != nil {
		return types.User{}, err
	}
	for k, v := range partial {
		rec[k] = v
	}
	merged, err := store.FromRecord[types.User](rec)
	if err != nil {
		return types.User{}, &ValidationError{Messages: []string{"invalid user fields"}}
	}
	if err := s.validate(ctx, merged, id); err != nil {
		return types.User{}, err
	}
	return s.update(ctx, id, partial, uniqueEmail(merged.Email))
}

// uniqueEmail 在存储锁内再次检查邮箱唯一性，延迟期间的并发写入也会被拒绝
func uniqueEmail(email string) store.Check {
	return func(items []store.Record, rec store.Record) error {
		for _, other := range items {
			if other.ID() == rec.ID() {
				continue
			}
			if existing, _ := other["email"].(string); strings.EqualFold(existing, email) {
				return &ValidationError{Messages: []string{fmt.Sprintf("email %s is already in use", email)}}
			}
		}
		return nil
	}
}

// validate 必填字段、邮箱格式和邮箱唯一性(不区分大小写)，selfID 用于更新时排除自身
func (s *UserService) validate(ctx context.Context, u types.User, selfID string) error {
	verr := &ValidationError{}
	if strings.TrimSpace(u.Name) == "" {
		verr.add("name is required")
	}
	if u.Email == "" {
		verr.add("email is required")
	} else if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
		verr.add("email %q is not a valid address", u.Email)
	}
	if u.Role == "" {
		verr.add("role is required")
	} else if !u.Role.Valid() {
		verr.add("role %q is not supported", u.Role)
	}

	if u.Email != "" {
		dup := s.coll.Search(ctx, func(other types.User) bool {
			return other.ID != selfID && strings.EqualFold(other.Email, u.Email)
		})
		if len(dup) > 0 {
			verr.add("email %s is already in use", u.Email)
		}
	}
	return verr.orNil()
}
