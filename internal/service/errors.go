package service

import (
	"errors"
	"fmt"
	"strings"

	"recruit-go/internal/store"
)

// ErrNotFound 所有"记录不存在"错误的根错误
var ErrNotFound = errors.New("not found")

var (
	ErrCompanyNotFound   = fmt.Errorf("company %w", ErrNotFound)
	ErrJobNotFound       = fmt.Errorf("job %w", ErrNotFound)
	ErrCandidateNotFound = fmt.Errorf("candidate %w", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrMatchNotFound     = fmt.Errorf("job match %w", ErrNotFound)
)

// ErrDuplicateID 新建记录时指定的 id 已存在
var ErrDuplicateID = store.ErrDuplicateID

// ErrInvalidMatchStatus 匹配状态不在允许的枚举内
var ErrInvalidMatchStatus = errors.New("invalid job match status")

// ValidationError 汇总多条校验失败信息
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Messages = append(e.Messages, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Messages) == 0 {
		return nil
	}
	return e
}
