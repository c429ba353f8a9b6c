package bootstrap

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/store"
)

// UsersCSVHeader 用户导出的表头
var UsersCSVHeader = []string{"ID", "Name", "Email", "Role", "Company ID", "Status", "Created At"}

var usersCSVFields = []string{"id", "name", "email", "role", "company_id", "status", "created_at"}

// ActivityLogsCSVHeader 操作日志导出的表头
var ActivityLogsCSVHeader = []string{"ID", "User ID", "Action", "Entity Type", "Entity ID", "Details", "Created At"}

var activityLogsCSVFields = []string{"id", "user_id", "action", "entity_type", "entity_id", "details", "created_at"}

// BackupFileName 导出文件名, 例如 recruit-backup-2024-01-15.json
func BackupFileName(now time.Time) string {
	return fmt.Sprintf("recruit-backup-%s.json", now.Format("2006-01-02"))
}

// ExportJSON 以缩进 JSON 写出全部集合，每个集合一个顶层键
func (r *ResetService) ExportJSON(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.ExportAllData(ctx)); err != nil {
		return fmt.Errorf("导出JSON失败: %w", err)
	}
	return nil
}

// ExportUsersCSV 导出用户列表
func (r *ResetService) ExportUsersCSV(ctx context.Context, w io.Writer) error {
	return writeCSV(w, UsersCSVHeader, usersCSVFields, r.store.GetCollection(ctx, constants.CollectionUsers))
}

// ExportActivityLogsCSV 导出操作日志
func (r *ResetService) ExportActivityLogsCSV(ctx context.Context, w io.Writer) error {
	return writeCSV(w, ActivityLogsCSVHeader, activityLogsCSVFields, r.store.GetCollection(ctx, constants.CollectionActivityLogs))
}

func writeCSV(w io.Writer, header, fields []string, records []store.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("写入CSV表头失败: %w", err)
	}
	row := make([]string, len(fields))
	for _, rec := range records {
		for i, f := range fields {
			row[i] = csvValue(rec[f])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("写入CSV行失败: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
