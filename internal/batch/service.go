// Package batch 实现批量简历上传的处理状态机。
//
// 每个上传按 pending -> processing -> completed 推进，转换由 Scheduler 定时触发。
// 取消和重试会递增上传的代数 (generation)，旧代数的定时回调不再生效。
// 每次变更都会写回 batch_uploads 集合，并推送给订阅者和事件出口。
package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"recruit-go/internal/constants"
	"recruit-go/internal/logger"
	"recruit-go/internal/storage"
	"recruit-go/internal/store"
	"recruit-go/internal/types"
	"recruit-go/pkg/utils"
)

var (
	// ErrBatchUploadNotFound 上传记录不存在
	ErrBatchUploadNotFound = errors.New("batch upload not found")
	// ErrInvalidTransition 当前状态不允许该操作
	ErrInvalidTransition = errors.New("invalid batch upload status transition")
	// ErrInvalidStatus 状态不在枚举内
	ErrInvalidStatus = errors.New("invalid batch upload status")
)

// CancelledMessage 取消上传时写入的错误信息
const CancelledMessage = "Upload cancelled by user"

const (
	DefaultProcessingDelay = time.Second
	DefaultCompletionDelay = 3 * time.Second
)

// Listener 订阅回调，参数为按创建时间排序的全部上传快照。
// 回调按变更顺序逐个执行，执行时不持有服务锁，可以调用只读方法；
// 在回调中同步调用会修改状态的方法会永久阻塞。
type Listener func(uploads []types.BatchUpload)

// EventSink 状态变更事件的出口，错误只记录日志
type EventSink interface {
	Publish(ctx context.Context, event storage.BatchUploadEvent) error
}

// Config 状态机的定时参数
type Config struct {
	ProcessingDelay time.Duration
	CompletionDelay time.Duration
}

// CreateInput 创建上传的参数，ID 为空时自动生成
type CreateInput struct {
	ID         string
	CompanyID  string
	JobID      string
	FileName   string
	FileSize   *int64
	FileMD5    string
	UploadedBy string
	ObjectKey  string
}

type entry struct {
	upload types.BatchUpload
	gen    uint64
	seq    uint64
	timer  Timer
}

// Service 批量上传服务
type Service struct {
	uploads    *store.Collection[types.BatchUpload]
	candidates *store.Collection[types.BatchCandidate]
	store      *store.Store
	sched      Scheduler
	cfg        Config
	sinks      []EventSink

	mu      sync.Mutex
	items   map[string]*entry
	nextSeq uint64
	closed  bool

	listeners    map[uint64]Listener
	nextListener uint64
	// 通知票号，在 mu 内分配
	nextTicket uint64

	// 按票号顺序送达通知
	notifyMu sync.Mutex
	notified *sync.Cond
	served   uint64
}

// Option 配置 Service
type Option func(*Service)

// WithScheduler 替换调度器
func WithScheduler(s Scheduler) Option {
	return func(svc *Service) {
		svc.sched = s
	}
}

// WithEventSinks 追加事件出口
func WithEventSinks(sinks ...EventSink) Option {
	return func(svc *Service) {
		for _, sink := range sinks {
			if sink != nil {
				svc.sinks = append(svc.sinks, sink)
			}
		}
	}
}

// NewService 创建批量上传服务
func NewService(s *store.Store, cfg Config, opts ...Option) *Service {
	if cfg.ProcessingDelay <= 0 {
		cfg.ProcessingDelay = DefaultProcessingDelay
	}
	if cfg.CompletionDelay <= 0 {
		cfg.CompletionDelay = DefaultCompletionDelay
	}
	svc := &Service{
		uploads:    store.NewCollection[types.BatchUpload](s, constants.CollectionBatchUploads),
		candidates: store.NewCollection[types.BatchCandidate](s, constants.CollectionBatchCandidates),
		store:      s,
		sched:      RealScheduler(),
		cfg:        cfg,
		items:      make(map[string]*entry),
		listeners:  make(map[uint64]Listener),
	}
	svc.notified = sync.NewCond(&svc.notifyMu)
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// change 一次状态变更，在 mu 外发布
type change struct {
	snapshot []types.BatchUpload
	event    *storage.BatchUploadEvent
}

// CreateBatchUpload 创建 pending 状态的上传并开始模拟处理
func (s *Service) CreateBatchUpload(ctx context.Context, in CreateInput) (types.BatchUpload, error) {
	now := s.store.Now()
	if in.ID == "" {
		in.ID = s.NewUploadID()
	}
	upload := types.BatchUpload{
		ID:         in.ID,
		CompanyID:  in.CompanyID,
		JobID:      in.JobID,
		FileName:   in.FileName,
		FileSize:   in.FileSize,
		FileMD5:    in.FileMD5,
		ObjectKey:  in.ObjectKey,
		Status:     types.BatchStatusPending,
		UploadedBy: in.UploadedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.BatchUpload{}, errors.New("batch service is closed")
	}
	if _, exists := s.items[upload.ID]; exists {
		s.mu.Unlock()
		return types.BatchUpload{}, fmt.Errorf("%w: 上传 %s 已存在", ErrInvalidTransition, upload.ID)
	}
	if err := s.persist(ctx, upload); err != nil {
		s.mu.Unlock()
		return types.BatchUpload{}, err
	}
	s.nextSeq++
	e := &entry{upload: upload, seq: s.nextSeq}
	s.items[upload.ID] = e
	s.scheduleLocked(e, s.cfg.ProcessingDelay, types.BatchStatusProcessing)
	c := s.changeLocked(upload, "")
	s.publish(ctx, c)

	logger.Ctx(ctx).Info().Str("upload_id", upload.ID).Str("file_name", upload.FileName).Msg("批量上传已创建")
	return upload, nil
}

// NewUploadID 预先生成上传 id，用于在创建记录前保存文件
func (s *Service) NewUploadID() string {
	return s.store.NewID()
}

// GetBatchUpload 按 id 查询
func (s *Service) GetBatchUpload(_ context.Context, id string) (types.BatchUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return types.BatchUpload{}, fmt.Errorf("%w: %s", ErrBatchUploadNotFound, id)
	}
	return e.upload, nil
}

// ListBatchUploads 返回全部上传，companyID 非空时按公司过滤
func (s *Service) ListBatchUploads(_ context.Context, companyID string) []types.BatchUpload {
	s.mu.Lock()
	all := s.snapshotLocked()
	s.mu.Unlock()
	if companyID == "" {
		return all
	}
	out := make([]types.BatchUpload, 0, len(all))
	for _, u := range all {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out
}

// GetBatchCandidates 返回上传下的候选文件
func (s *Service) GetBatchCandidates(ctx context.Context, uploadID string) ([]types.BatchCandidate, error) {
	if _, err := s.GetBatchUpload(ctx, uploadID); err != nil {
		return nil, err
	}
	return s.candidates.Search(ctx, func(c types.BatchCandidate) bool {
		return c.BatchUploadID == uploadID
	}), nil
}

// UpdateBatchStatus 直接设置状态。设置为终态时停止未触发的定时任务。
func (s *Service) UpdateBatchStatus(ctx context.Context, id string, status types.BatchStatus) (types.BatchUpload, error) {
	if !status.Valid() {
		return types.BatchUpload{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return types.BatchUpload{}, fmt.Errorf("%w: %s", ErrBatchUploadNotFound, id)
	}
	next := e.upload
	next.Status = status
	next.UpdatedAt = s.store.Now()
	c, err := s.commitLocked(ctx, e, next)
	if err != nil {
		s.mu.Unlock()
		return types.BatchUpload{}, err
	}
	if status.Terminal() {
		s.invalidateLocked(e)
	}
	s.publish(ctx, c)
	return next, nil
}

// CancelUpload 取消上传。已完成的上传不能取消，已失败的上传保持不变。
func (s *Service) CancelUpload(ctx context.Context, id string) (types.BatchUpload, error) {
	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return types.BatchUpload{}, fmt.Errorf("%w: %s", ErrBatchUploadNotFound, id)
	}
	switch e.upload.Status {
	case types.BatchStatusCompleted:
		s.mu.Unlock()
		return types.BatchUpload{}, fmt.Errorf("%w: 上传已完成，不能取消", ErrInvalidTransition)
	case types.BatchStatusFailed:
		upload := e.upload
		s.mu.Unlock()
		return upload, nil
	}

	prev := e.upload.Status
	next := e.upload
	next.Status = types.BatchStatusFailed
	next.ErrorMessage = CancelledMessage
	next.UpdatedAt = s.store.Now()
	c, err := s.commitLocked(ctx, e, next)
	if err != nil {
		s.mu.Unlock()
		return types.BatchUpload{}, err
	}
	s.invalidateLocked(e)
	s.publish(ctx, c)

	logger.Ctx(ctx).Info().Str("upload_id", id).Str("previous_status", string(prev)).Msg("批量上传已取消")
	return next, nil
}

// RetryFailedUpload 重置失败的上传并重新开始处理，只允许从 failed 状态重试
func (s *Service) RetryFailedUpload(ctx context.Context, id string) (types.BatchUpload, error) {
	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return types.BatchUpload{}, fmt.Errorf("%w: %s", ErrBatchUploadNotFound, id)
	}
	if e.upload.Status != types.BatchStatusFailed {
		status := e.upload.Status
		s.mu.Unlock()
		return types.BatchUpload{}, fmt.Errorf("%w: 只能重试失败的上传，当前状态 %s", ErrInvalidTransition, status)
	}

	next := e.upload
	next.Status = types.BatchStatusPending
	next.ErrorMessage = ""
	next.TotalCandidates = nil
	next.ProcessedCandidates = nil
	next.SuccessfulCandidates = nil
	next.FailedCandidates = nil
	next.CompletedAt = nil
	next.UpdatedAt = s.store.Now()
	c, err := s.commitLocked(ctx, e, next)
	if err != nil {
		s.mu.Unlock()
		return types.BatchUpload{}, err
	}
	s.invalidateLocked(e)
	s.scheduleLocked(e, s.cfg.ProcessingDelay, types.BatchStatusProcessing)
	s.publish(ctx, c)

	logger.Ctx(ctx).Info().Str("upload_id", id).Msg("批量上传重试")
	return next, nil
}

// SubscribeToUploads 注册订阅者，立即收到一次当前快照，之后每次变更都会收到。返回的取消函数可重复调用。
func (s *Service) SubscribeToUploads(listener Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = listener
	snapshot := s.snapshotLocked()
	ticket := s.takeTicketLocked()
	s.mu.Unlock()

	s.deliver(ticket, func() { listener(snapshot) })

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Restore 从存储加载上传记录，未结束的上传重新进入定时处理
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("batch service is closed")
	}
	resumed := s.restoreLocked(ctx)
	s.publish(ctx, change{snapshot: s.snapshotLocked()})
	return resumed, nil
}

// Reset 停止全部定时任务并清空内存中的上传，然后在服务锁内执行 wipe
// (通常是清空并重建存储)，最后从存储重新加载。wipe 执行期间其他调用会等待。
func (s *Service) Reset(ctx context.Context, wipe func(context.Context) error) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errors.New("batch service is closed")
	}
	dropped := len(s.items)
	for _, e := range s.items {
		s.invalidateLocked(e)
	}
	s.items = make(map[string]*entry)

	var wipeErr error
	if wipe != nil {
		wipeErr = wipe(ctx)
	}
	resumed := 0
	if wipeErr == nil {
		resumed = s.restoreLocked(ctx)
	}
	s.publish(ctx, change{snapshot: s.snapshotLocked()})

	logger.Ctx(ctx).Warn().Int("dropped", dropped).Int("resumed", resumed).Msg("批量上传状态已重置")
	return resumed, wipeErr
}

func (s *Service) restoreLocked(ctx context.Context) int {
	stored := s.uploads.All(ctx)
	slices.SortStableFunc(stored, func(a, b types.BatchUpload) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	resumed := 0
	for _, u := range stored {
		if u.ID == "" {
			continue
		}
		if _, exists := s.items[u.ID]; exists {
			continue
		}
		s.nextSeq++
		e := &entry{upload: u, seq: s.nextSeq}
		s.items[u.ID] = e
		switch u.Status {
		case types.BatchStatusPending:
			s.scheduleLocked(e, s.cfg.ProcessingDelay, types.BatchStatusProcessing)
			resumed++
		case types.BatchStatusProcessing:
			s.scheduleLocked(e, s.cfg.CompletionDelay, types.BatchStatusCompleted)
			resumed++
		}
	}
	logger.Ctx(ctx).Info().Int("loaded", len(stored)).Int("resumed", resumed).Msg("批量上传已从存储恢复")
	return resumed
}

// Close 停止所有未触发的定时任务，之后的定时回调不再生效
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, e := range s.items {
		s.invalidateLocked(e)
	}
}

// scheduleLocked 安排一次前进转换，回调携带当前代数
func (s *Service) scheduleLocked(e *entry, d time.Duration, target types.BatchStatus) {
	id, gen := e.upload.ID, e.gen
	e.timer = s.sched.AfterFunc(d, func() {
		s.advance(id, gen, target)
	})
}

// invalidateLocked 递增代数并停止当前定时任务
func (s *Service) invalidateLocked(e *entry) {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// advance 定时回调：代数不匹配时不做任何事
func (s *Service) advance(id string, gen uint64, target types.BatchStatus) {
	ctx := context.Background()

	s.mu.Lock()
	e, ok := s.items[id]
	if !ok || s.closed || e.gen != gen {
		s.mu.Unlock()
		logger.Debug().Str("upload_id", id).Str("status", string(target)).Msg("忽略过期的定时转换")
		return
	}
	e.timer = nil

	next := e.upload
	now := s.store.Now()
	next.Status = target
	next.UpdatedAt = now

	var batchCandidates []types.BatchCandidate
	switch target {
	case types.BatchStatusProcessing:
		total := EstimateCandidates(next.FileName, next.FileSize)
		next.TotalCandidates = utils.IntPtr(total)
		next.ProcessedCandidates = utils.IntPtr(0)
	case types.BatchStatusCompleted:
		total := EstimateCandidates(next.FileName, next.FileSize)
		if next.TotalCandidates != nil {
			total = *next.TotalCandidates
		}
		next.TotalCandidates = utils.IntPtr(total)
		next.ProcessedCandidates = utils.IntPtr(total)
		next.SuccessfulCandidates = utils.IntPtr(total)
		next.FailedCandidates = utils.IntPtr(0)
		next.CompletedAt = utils.TimePtr(now)
		for _, name := range candidateFileNames(next.FileName, total) {
			batchCandidates = append(batchCandidates, types.BatchCandidate{
				BatchUploadID: next.ID,
				FileName:      name,
				Status:        types.BatchStatusCompleted,
				ProcessedAt:   utils.TimePtr(now),
			})
		}
	}

	c, err := s.commitLocked(ctx, e, next)
	if err != nil {
		// 内存状态照常推进，下次变更会再次写回
		logger.Error().Err(err).Str("upload_id", id).Str("status", string(target)).Msg("写回批量上传失败")
		c = s.applyLocked(e, next)
	}
	if len(batchCandidates) > 0 {
		if _, err := s.candidates.AddMany(ctx, batchCandidates); err != nil {
			logger.Error().Err(err).Str("upload_id", id).Msg("写入候选文件失败")
		}
	}
	if target == types.BatchStatusProcessing {
		s.scheduleLocked(e, s.cfg.CompletionDelay, types.BatchStatusCompleted)
	}
	s.publish(ctx, c)

	logger.Info().Str("upload_id", id).Str("status", string(target)).Msg("批量上传状态推进")
}

func (s *Service) persist(ctx context.Context, u types.BatchUpload) error {
	if _, err := s.uploads.Put(ctx, u); err != nil {
		return fmt.Errorf("保存批量上传 %s 失败: %w", u.ID, err)
	}
	return nil
}

// commitLocked 写回存储，成功后替换内存状态并生成通知。所有状态变更都经过这里。
func (s *Service) commitLocked(ctx context.Context, e *entry, next types.BatchUpload) (change, error) {
	if err := s.persist(ctx, next); err != nil {
		return change{}, err
	}
	return s.applyLocked(e, next), nil
}

func (s *Service) applyLocked(e *entry, next types.BatchUpload) change {
	prev := e.upload.Status
	e.upload = next
	return s.changeLocked(next, prev)
}

// changeLocked 生成快照和事件
func (s *Service) changeLocked(u types.BatchUpload, prev types.BatchStatus) change {
	ev := &storage.BatchUploadEvent{
		EventType:      constants.BatchUploadEventType,
		UploadID:       u.ID,
		CompanyID:      u.CompanyID,
		JobID:          u.JobID,
		FileName:       u.FileName,
		UploadedBy:     u.UploadedBy,
		Status:         string(u.Status),
		PreviousStatus: string(prev),
		ErrorMessage:   u.ErrorMessage,
		OccurredAt:     u.UpdatedAt,
	}
	return change{snapshot: s.snapshotLocked(), event: ev}
}

// publish 必须在持有 mu 时调用，会释放 mu。
// 票号在 mu 内分配，送达时不持有任何锁，顺序与变更顺序一致。
func (s *Service) publish(ctx context.Context, c change) {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	ticket := s.takeTicketLocked()
	s.mu.Unlock()

	s.deliver(ticket, func() {
		if c.event != nil {
			for _, sink := range s.sinks {
				if err := sink.Publish(ctx, *c.event); err != nil {
					logger.Ctx(ctx).Warn().Err(err).Str("upload_id", c.event.UploadID).Str("status", c.event.Status).Msg("发布批量上传事件失败")
				}
			}
		}
		for _, l := range listeners {
			l(c.snapshot)
		}
	})
}

func (s *Service) takeTicketLocked() uint64 {
	t := s.nextTicket
	s.nextTicket++
	return t
}

// deliver 等待轮到 ticket 后执行 fn，结束后放行下一个票号
func (s *Service) deliver(ticket uint64, fn func()) {
	s.notifyMu.Lock()
	for s.served != ticket {
		s.notified.Wait()
	}
	s.notifyMu.Unlock()

	defer func() {
		s.notifyMu.Lock()
		s.served++
		s.notified.Broadcast()
		s.notifyMu.Unlock()
	}()
	fn()
}

func (s *Service) snapshotLocked() []types.BatchUpload {
	entries := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *entry) int {
		if c := a.upload.CreatedAt.Compare(b.upload.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq) - int(b.seq)
	})
	out := make([]types.BatchUpload, len(entries))
	for i, e := range entries {
		out[i] = e.upload
	}
	return out
}
