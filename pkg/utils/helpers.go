package utils

import (
	"path"
	"strings"
	"time"
)

// IntPtr returns a pointer to an int
func IntPtr(i int) *int {
	return &i
}

// Int64Ptr returns a pointer to an int64
func Int64Ptr(i int64) *int64 {
	return &i
}

// TimePtr returns a pointer to a time.Time object, nil for the zero time
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// BaseName 只保留文件名部分，防止路径穿越。Windows 分隔符同样处理。
// 结果为空、"." 或 ".." 时返回空字符串。
func BaseName(fileName string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
