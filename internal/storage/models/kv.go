package models

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry SQL 后端中的一条集合记录，一个集合对应一行
type KVEntry struct {
	ItemKey   string         `gorm:"column:item_key;type:varchar(191);primaryKey"`
	Value     datatypes.JSON `gorm:"column:value;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;index:idx_kv_updated_at"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
