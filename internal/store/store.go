// Package store 在 KV 后端之上提供按集合组织的记录存储。
// 每个集合序列化为一个 JSON 数组，保存在 {prefix}:{collection} 键下。
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/storage"

	"github.com/gofrs/uuid/v5"
)

// Record 集合中的一条记录，至少包含 id 字段
type Record map[string]any

// ID 返回记录的 id，不存在时返回空字符串
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone 浅拷贝记录
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ErrDuplicateID 新增记录的 id 已存在于集合中
var ErrDuplicateID = errors.New("record id already exists")

// Check 在写入前于存储锁内执行的校验。items 为写入前的集合内容，rec 为即将写入的记录。
type Check func(items []Record, rec Record) error

func runChecks(items []Record, rec Record, checks []Check) error {
	for _, check := range checks {
		if check == nil {
			continue
		}
		if err := check(items, rec); err != nil {
			return err
		}
	}
	return nil
}

func indexOf(items []Record, id string) int {
	for i, item := range items {
		if item.ID() == id {
			return i
		}
	}
	return -1
}

// DateFields 读取时会被还原为 time.Time 的字段
var DateFields = []string{"created_at", "updated_at", "upload_date", "processed_at", "completed_at"}

// Store 集合存储
type Store struct {
	kv     storage.KV
	prefix string

	// 串行化读-改-写操作
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// Option 配置 Store
type Option func(*Store)

// WithClock 替换时间来源，测试中用于固定时间戳
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator 替换记录 id 生成器
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// New 创建集合存储，prefix 为空时使用默认前缀
func New(kv storage.KV, prefix string, opts ...Option) *Store {
	if prefix == "" {
		prefix = constants.DefaultKeyPrefix
	}
	s := &Store{
		kv:     kv,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newUUIDv7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 只会在随机源失败时出错
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}

// KV 返回底层后端
func (s *Store) KV() storage.KV {
	return s.kv
}

// Prefix 返回键前缀
func (s *Store) Prefix() string {
	return s.prefix
}

// Key 返回集合对应的存储键
func (s *Store) Key(name string) string {
	return fmt.Sprintf(constants.KeyCollection, s.prefix, name)
}

// Now 返回存储使用的当前时间
func (s *Store) Now() time.Time {
	return s.now()
}

// NewID 生成新的记录 id
func (s *Store) NewID() string {
	return s.newID()
}

// GetCollection 读取整个集合。集合不存在或内容损坏时返回空切片，错误只记录日志。
func (s *Store) GetCollection(ctx context.Context, name string) []Record {
	return s.load(ctx, name)
}

func (s *Store) load(ctx context.Context, name string) []Record {
	key := s.Key(name)
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			logger.Ctx(ctx).Error().Err(err).Str("collection", name).Msg("读取集合失败")
		}
		return []Record{}
	}

	var items []Record
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("collection", name).Msg("解析集合失败，按空集合处理")
		return []Record{}
	}

	out := make([]Record, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rehydrateDates(ctx, name, item)
		out = append(out, item)
	}
	return out
}

// rehydrateDates 将日期字段中的字符串解析为 time.Time，解析失败保留原字符串
func rehydrateDates(ctx context.Context, collection string, item Record) {
	for _, field := range DateFields {
		str, ok := item[field].(string)
		if !ok || str == "" {
			continue
		}
		t, err := parseTime(str)
		if err != nil {
			logger.Ctx(ctx).Warn().Str("collection", collection).Str("field", field).Str("value", str).Msg("日期字段解析失败")
			continue
		}
		item[field] = t
	}
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// SetCollection 整体覆盖集合，只产生一次后端写入
func (s *Store) SetCollection(ctx context.Context, name string, items []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, name, items)
}

func (s *Store) save(ctx context.Context, name string, items []Record) error {
	if items == nil {
		items = []Record{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("序列化集合 %s 失败: %w", name, err)
	}
	if err := s.kv.Set(ctx, s.Key(name), string(data)); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("collection", name).Msg("写入集合失败")
		return fmt.Errorf("写入集合 %s 失败: %w", name, err)
	}
	return nil
}

// AddToCollection 追加一条记录。缺少 id 时生成 UUIDv7，缺少 created_at 时补齐，updated_at 总是更新。
// id 已存在时返回 ErrDuplicateID，checks 中任一失败时不写入。
func (s *Store) AddToCollection(ctx context.Context, name string, item Record, checks ...Check) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := item.Clone()
	now := s.now()
	if rec.ID() == "" {
		rec["id"] = s.newID()
	}
	if isUnsetTime(rec["created_at"]) {
		rec["created_at"] = now
	}
	rec["updated_at"] = now

	items := s.load(ctx, name)
	if indexOf(items, rec.ID()) >= 0 {
		return nil, fmt.Errorf("集合 %s 中 id %s: %w", name, rec.ID(), ErrDuplicateID)
	}
	if err := runChecks(items, rec, checks); err != nil {
		return nil, err
	}
	items = append(items, rec)
	if err := s.save(ctx, name, items); err != nil {
		return nil, err
	}
	rehydrateDates(ctx, name, rec)
	return rec, nil
}

// UpdateInCollection 按 id 合并字段并更新 updated_at，记录不存在时返回 nil, nil。
// 合并结果先经过 checks，失败时集合保持不变。
func (s *Store) UpdateInCollection(ctx context.Context, name, id string, partial Record, checks ...Check) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx, name)
	i := indexOf(items, id)
	if i < 0 {
		return nil, nil
	}
	updated := items[i].Clone()
	for k, v := range partial {
		if k == "id" {
			continue
		}
		updated[k] = v
	}
	updated["updated_at"] = s.now()
	if err := runChecks(items, updated, checks); err != nil {
		return nil, err
	}
	items[i] = updated
	if err := s.save(ctx, name, items); err != nil {
		return nil, err
	}
	rehydrateDates(ctx, name, updated)
	return updated, nil
}

// PutInCollection 按 id 整体替换记录，不存在时追加。时间戳由调用方维护。
func (s *Store) PutInCollection(ctx context.Context, name string, item Record) (Record, error) {
	if item.ID() == "" {
		return nil, fmt.Errorf("写入集合 %s 的记录缺少 id", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := item.Clone()
	items := s.load(ctx, name)
	replaced := false
	for i := range items {
		if items[i].ID() == rec.ID() {
			items[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, rec)
	}
	if err := s.save(ctx, name, items); err != nil {
		return nil, err
	}
	rehydrateDates(ctx, name, rec)
	return rec, nil
}

// AddManyToCollection 一次写入追加多条记录，规则同 AddToCollection。任一 id 重复时整批不写入。
func (s *Store) AddManyToCollection(ctx context.Context, name string, batch []Record) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx, name)
	seen := make(map[string]struct{}, len(items)+len(batch))
	for _, item := range items {
		seen[item.ID()] = struct{}{}
	}

	now := s.now()
	added := make([]Record, 0, len(batch))
	for _, item := range batch {
		rec := item.Clone()
		if rec.ID() == "" {
			rec["id"] = s.newID()
		}
		if _, dup := seen[rec.ID()]; dup {
			return nil, fmt.Errorf("集合 %s 中 id %s: %w", name, rec.ID(), ErrDuplicateID)
		}
		seen[rec.ID()] = struct{}{}
		if isUnsetTime(rec["created_at"]) {
			rec["created_at"] = now
		}
		rec["updated_at"] = now
		added = append(added, rec)
	}

	items = append(items, added...)
	if err := s.save(ctx, name, items); err != nil {
		return nil, err
	}
	for _, rec := range added {
		rehydrateDates(ctx, name, rec)
	}
	return added, nil
}

// RemoveFromCollection 删除一条记录，找到并删除时返回 true
func (s *Store) RemoveFromCollection(ctx context.Context, name, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.load(ctx, name)
	for i, item := range items {
		if item.ID() == id {
			items = append(items[:i], items[i+1:]...)
			if err := s.save(ctx, name, items); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// GetFromCollection 按 id 查找，不存在返回 nil
func (s *Store) GetFromCollection(ctx context.Context, name, id string) Record {
	for _, item := range s.load(ctx, name) {
		if item.ID() == id {
			return item
		}
	}
	return nil
}

// SearchCollection 线性扫描过滤
func (s *Store) SearchCollection(ctx context.Context, name string, pred func(Record) bool) []Record {
	out := []Record{}
	for _, item := range s.load(ctx, name) {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// ClearCollection 删除集合对应的键
func (s *Store) ClearCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, s.Key(name)); err != nil {
		return fmt.Errorf("清空集合 %s 失败: %w", name, err)
	}
	return nil
}

// GetCollectionSize 返回集合中的记录数
func (s *Store) GetCollectionSize(ctx context.Context, name string) int {
	return len(s.load(ctx, name))
}

// HasData 集合存在且非空
func (s *Store) HasData(ctx context.Context, name string) bool {
	return s.GetCollectionSize(ctx, name) > 0
}

// Keys 返回前缀下的所有存储键，包括不在已知集合列表中的孤立键
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.kv.Keys(ctx, s.prefix+constants.KeySeparator)
}

// DeleteKey 直接删除一个存储键
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(ctx, key)
}

func isUnsetTime(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		if t == "" {
			return true
		}
		parsed, err := parseTime(t)
		return err == nil && parsed.IsZero()
	case time.Time:
		return t.IsZero()
	}
	return false
}
