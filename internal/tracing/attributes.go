package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200
	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500
	// MaxKeyLength 存储键最大长度
	MaxKeyLength = 100
)

// 候选人和用户记录里的个人信息字段
var piiFields = []string{"email", "phone", "name", "uploaded_by", "location", "resume_file"}

// SafeAttributeValue 个人信息字段做掩码，其余字段按 maxLength 截断
func SafeAttributeValue(field, value string, maxLength int) string {
	lower := strings.ToLower(field)
	for _, f := range piiFields {
		if strings.HasSuffix(lower, f) {
			if strings.Contains(value, "@") {
				return MaskEmail(value)
			}
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskEmail 只遮住邮箱的本地部分: emma.chen@example.com -> em*******@example.com
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskPII(email)
	}
	local := []rune(email[:at])
	keep := 2
	if len(local) <= keep {
		keep = 1
	}
	return string(local[:keep]) + strings.Repeat("*", len(local)-keep) + email[at:]
}

// MaskPII 保留首尾字符: "Noah Kim" -> "No****im", "王小明" -> "王*明"
func MaskPII(value string) string {
	runes := []rune(value)
	switch n := len(runes); {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[:1]) + "*"
	case n <= 4:
		return string(runes[:1]) + strings.Repeat("*", n-2) + string(runes[n-1:])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// TruncateString 超长时保留首尾，中间用省略号
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	half := max((maxLength-3)/2, 1)
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeSQL 截断SQL语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeKey 截断存储键
func SafeKey(key string) string {
	return TruncateString(key, MaxKeyLength)
}
