package forward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"forward_bot/internal/logger"

	"github.com/go-telegram/bot"
	"github.com/google/uuid"
)

// TaskStatus 迁移任务状态
type TaskStatus string

const (
	StatusIdle       TaskStatus = "idle"
	StatusRunning    TaskStatus = "running"
	StatusCancelling TaskStatus = "cancelling"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
	StatusFailed     TaskStatus = "failed"
)

// 进度上报节奏：每 progressEveryItems 条或每 progressInterval 编辑一次状态消息
const (
	progressEveryItems = 20
	progressInterval   = 10 * time.Second
)

// Task 一次历史消息迁移任务
// 游标从 StartID 到 EndID 逐一递增；计数器与状态由互斥锁保护，
// 取消请求是协作式的：仅在条目边界生效，绝不打断进行中的传输调用
type Task struct {
	ID           string
	SourceChatID int64
	TargetChatID int64
	StartID      int
	EndID        int

	mu        sync.Mutex
	status    TaskStatus
	cursor    int
	processed int
	skipped   int
	errored   int

	cancelRequested atomic.Bool
	done            chan struct{}
}

// Progress 任务进度快照
type Progress struct {
	ID           string
	SourceChatID int64
	TargetChatID int64
	StartID      int
	EndID        int
	Status       TaskStatus
	Cursor       int
	Processed    int
	Skipped      int
	Errored      int
}

// Snapshot 返回任务进度的一致快照
func (t *Task) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Progress{
		ID:           t.ID,
		SourceChatID: t.SourceChatID,
		TargetChatID: t.TargetChatID,
		StartID:      t.StartID,
		EndID:        t.EndID,
		Status:       t.status,
		Cursor:       t.cursor,
		Processed:    t.processed,
		Skipped:      t.skipped,
		Errored:      t.errored,
	}
}

// Done 任务结束信号（到达终态并完成最终上报后关闭）
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// requestCancel 请求协作式取消
func (t *Task) requestCancel() {
	t.cancelRequested.Store(true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusRunning {
		t.status = StatusCancelling
	}
}

func (t *Task) setStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

func (t *Task) running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusRunning || t.status == StatusCancelling
}

func (t *Task) setCursor(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursor = id
}

func (t *Task) addProcessed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed++
}

func (t *Task) addSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipped++
}

func (t *Task) addErrored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errored++
}

// Manager 迁移任务管理器
// 全进程同时最多允许一个运行中任务；第二个 /migrate 请求被拒绝而不是排队
type Manager struct {
	service       *Service
	transport     Transport
	stagingChatID int64 // 中转频道 ID，0 表示直接拷贝

	mu      sync.Mutex
	current *Task
}

// NewManager 创建迁移任务管理器
func NewManager(service *Service, transport Transport, stagingChatID int64) *Manager {
	return &Manager{
		service:       service,
		transport:     transport,
		stagingChatID: stagingChatID,
	}
}

// Start 启动迁移任务
// statusChatID/statusMessageID 指向进度状态消息，任务通过编辑该消息上报进度
// 已有运行中任务时返回 ErrAlreadyRunning；范围非法时返回 ErrInvalidRange
func (m *Manager) Start(ctx context.Context, sourceChatID, targetChatID int64, startID, endID int, statusChatID int64, statusMessageID int) (*Task, error) {
	if startID > endID {
		return nil, fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, startID, endID)
	}

	// setup 校验：对源与目标（以及中转频道）无访问能力时任务直接失败，不进入循环
	if err := m.precheck(ctx, sourceChatID, targetChatID); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           uuid.New().String(),
		SourceChatID: sourceChatID,
		TargetChatID: targetChatID,
		StartID:      startID,
		EndID:        endID,
		status:       StatusRunning,
		cursor:       startID,
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	if m.current != nil && m.current.running() {
		m.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	m.current = task
	m.mu.Unlock()

	logger.L().Infof("Migration started: task_id=%s, source=%d, target=%d, range=[%d,%d]",
		task.ID, sourceChatID, targetChatID, startID, endID)

	// 任务生命周期独立于触发它的更新处理上下文
	go m.run(context.Background(), task, statusChatID, statusMessageID)

	return task, nil
}

// Cancel 请求取消当前任务（协作式，于条目边界生效），返回是否有任务被取消
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	task := m.current
	m.mu.Unlock()

	if task == nil || !task.running() {
		return false
	}

	task.requestCancel()
	logger.L().Infof("Migration cancellation requested: task_id=%s", task.ID)
	return true
}

// Current 返回当前任务的进度快照，没有任务时返回 false
func (m *Manager) Current() (Progress, bool) {
	m.mu.Lock()
	task := m.current
	m.mu.Unlock()

	if task == nil {
		return Progress{}, false
	}
	return task.Snapshot(), true
}

// run 迁移主循环
func (m *Manager) run(ctx context.Context, task *Task, statusChatID int64, statusMessageID int) {
	defer close(task.done)

	lastReport := time.Now()
	sinceReport := 0

	for id := task.StartID; id <= task.EndID; id++ {
		// 协作式取消：只在条目边界检查，进行中的条目总是做完
		if task.cancelRequested.Load() {
			break
		}

		task.setCursor(id)
		m.migrateItem(ctx, task, id)

		sinceReport++
		if sinceReport >= progressEveryItems || time.Since(lastReport) >= progressInterval {
			m.reportProgress(ctx, task, statusChatID, statusMessageID, false)
			lastReport = time.Now()
			sinceReport = 0
		}
	}

	if task.cancelRequested.Load() {
		task.setStatus(StatusCancelled)
	} else {
		task.setStatus(StatusCompleted)
	}

	progress := task.Snapshot()
	logger.L().Infof("Migration finished: task_id=%s, status=%s, processed=%d, skipped=%d, errored=%d",
		task.ID, progress.Status, progress.Processed, progress.Skipped, progress.Errored)

	m.reportProgress(ctx, task, statusChatID, statusMessageID, true)

	// 终态上报后丢弃任务状态
	m.mu.Lock()
	if m.current == task {
		m.current = nil
	}
	m.mu.Unlock()
}

// migrateItem 迁移单个消息 ID
//
// 配置了中转频道时采用"中转-落地-清理"三步：先拷贝到管理员私有的中转频道，
// 再从中转拷贝到目标，最后删除中转消息，把源读取与最终写入解耦；
// 未配置时直接从源拷贝到目标
//
// 源消息不存在（已删除或从未存在）不是错误，计入跳过后继续；
// 限流遵循等待一次再试一次的策略，重试耗尽计入错误后继续。
// 迁移是对范围的尽力完成，单个条目不可达不会中止整个范围
func (m *Manager) migrateItem(ctx context.Context, task *Task, messageID int) {
	fromChatID := task.SourceChatID
	copyMessageID := messageID

	if m.stagingChatID != 0 {
		stagedID, err := m.service.copyWithRetry(ctx, &bot.CopyMessageParams{
			ChatID:     m.stagingChatID,
			FromChatID: task.SourceChatID,
			MessageID:  messageID,
		})
		if err != nil {
			m.recordItemError(task, messageID, err)
			return
		}

		defer func() {
			// 清理中转消息；清理失败只记日志，不影响条目结果
			if _, err := m.transport.DeleteMessage(ctx, &bot.DeleteMessageParams{
				ChatID:    m.stagingChatID,
				MessageID: stagedID,
			}); err != nil {
				logger.L().Warnf("Failed to clean up staged message %d: %v", stagedID, err)
			}
		}()

		fromChatID = m.stagingChatID
		copyMessageID = stagedID
	}

	_, err := m.service.copyWithRetry(ctx, &bot.CopyMessageParams{
		ChatID:     task.TargetChatID,
		FromChatID: fromChatID,
		MessageID:  copyMessageID,
	})
	if err != nil {
		m.recordItemError(task, messageID, err)
		return
	}

	task.addProcessed()
	m.service.recordDelivered(ctx)
}

// recordItemError 将单条目错误归类为跳过或错误
func (m *Manager) recordItemError(task *Task, messageID int, err error) {
	if isMissingMessageError(err) {
		task.addSkipped()
		logger.L().Debugf("Skipping message %d: %v", messageID, err)
		return
	}

	task.addErrored()
	logger.L().Warnf("Migration item %d failed: %v", messageID, err)
}

// precheck 启动前的访问能力校验
func (m *Manager) precheck(ctx context.Context, sourceChatID, targetChatID int64) error {
	chatIDs := []int64{sourceChatID, targetChatID}
	if m.stagingChatID != 0 {
		chatIDs = append(chatIDs, m.stagingChatID)
	}

	for _, chatID := range chatIDs {
		if _, err := m.transport.GetChat(ctx, &bot.GetChatParams{ChatID: chatID}); err != nil {
			return fmt.Errorf("%w: chat %d: %v", ErrPreconditionFailed, chatID, err)
		}
	}

	return nil
}

// reportProgress 通过编辑状态消息上报进度（幂等更新，不逐条刷屏）
func (m *Manager) reportProgress(ctx context.Context, task *Task, statusChatID int64, statusMessageID int, final bool) {
	if statusChatID == 0 || statusMessageID == 0 {
		return
	}

	progress := task.Snapshot()

	var text string
	if final {
		text = fmt.Sprintf(
			"%s\n成功: %d, 跳过: %d, 失败: %d",
			finalReportTitle(progress.Status),
			progress.Processed, progress.Skipped, progress.Errored,
		)
	} else {
		text = fmt.Sprintf(
			"🚀 迁移进行中...\n源: %d\n目标: %d\n进度: %d/%d\n成功: %d, 跳过: %d, 失败: %d",
			progress.SourceChatID, progress.TargetChatID,
			progress.Cursor, progress.EndID,
			progress.Processed, progress.Skipped, progress.Errored,
		)
	}

	if _, err := m.transport.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    statusChatID,
		MessageID: statusMessageID,
		Text:      text,
	}); err != nil {
		logger.L().Warnf("Failed to update migration status message: %v", err)
	}
}

func finalReportTitle(status TaskStatus) string {
	switch status {
	case StatusCancelled:
		return "🛑 迁移已取消"
	case StatusFailed:
		return "❌ 迁移失败"
	default:
		return "✅ 迁移完成"
	}
}
