package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"forward_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// fakeTransport 测试用传输客户端
type fakeTransport struct {
	mu          sync.Mutex
	copyCalls   []*bot.CopyMessageParams
	editCalls   []*bot.EditMessageTextParams
	deleteCalls []*bot.DeleteMessageParams
	nextID      int

	// copyFunc 非 nil 时接管 CopyMessage 的返回值
	copyFunc func(params *bot.CopyMessageParams) (*botModels.MessageID, error)
	// getChatErr 按会话 ID 注入 GetChat 失败
	getChatErr map[int64]error
}

func (f *fakeTransport) CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*botModels.MessageID, error) {
	f.mu.Lock()
	f.copyCalls = append(f.copyCalls, params)
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	if f.copyFunc != nil {
		return f.copyFunc(params)
	}
	return &botModels.MessageID{ID: id}, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error) {
	return &botModels.Message{ID: 1}, nil
}

func (f *fakeTransport) EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*botModels.Message, error) {
	f.mu.Lock()
	f.editCalls = append(f.editCalls, params)
	f.mu.Unlock()
	return &botModels.Message{ID: params.MessageID}, nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error) {
	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, params)
	f.mu.Unlock()
	return true, nil
}

func (f *fakeTransport) GetChat(ctx context.Context, params *bot.GetChatParams) (*botModels.ChatFullInfo, error) {
	chatID, _ := params.ChatID.(int64)
	if err, ok := f.getChatErr[chatID]; ok {
		return nil, err
	}
	return &botModels.ChatFullInfo{ID: chatID, Title: fmt.Sprintf("chat-%d", chatID)}, nil
}

func (f *fakeTransport) copyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copyCalls)
}

// fakeDedupRepo 内存版去重账本
type fakeDedupRepo struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newFakeDedupRepo() *fakeDedupRepo {
	return &fakeDedupRepo{seen: make(map[string]bool)}
}

func (f *fakeDedupRepo) CheckAndRecord(ctx context.Context, fingerprint string, sourceChatID int64, now time.Time, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[fingerprint] {
		return false, nil
	}
	f.seen[fingerprint] = true
	return true, nil
}

func (f *fakeDedupRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeDedupRepo) EnsureIndexes(ctx context.Context) error {
	return nil
}

// fakeStatsRepo 内存版统计计数器
type fakeStatsRepo struct {
	mu    sync.Mutex
	total int64
}

func (f *fakeStatsRepo) IncrementForwarded(ctx context.Context, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total++
	return nil
}

func (f *fakeStatsRepo) GetStats(ctx context.Context, now time.Time) (*models.ForwardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.ForwardStats{
		ID:             models.StatsDocID,
		TotalForwarded: f.total,
		TodayForwarded: f.total,
		Day:            now.Format(models.DayLayout),
	}, nil
}

func (f *fakeStatsRepo) count() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// newTestService 组装一套测试用转发引擎
func newTestService(t *testing.T, transport *fakeTransport, rules []*models.ForwardRule, dedupEnabled bool) (*Service, *fakeStatsRepo, *fakeDedupRepo) {
	t.Helper()

	store := NewRuleStore(nil)
	store.Load(rules)

	dedupRepo := newFakeDedupRepo()
	stats := &fakeStatsRepo{}

	svc := NewService(transport, store, NewDeduper(dedupRepo, dedupEnabled, 24*time.Hour), stats)
	t.Cleanup(svc.Close)
	svc.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return svc, stats, dedupRepo
}

func videoEvent(sourceChatID int64, messageID int, fingerprint, caption string) *MediaEvent {
	return &MediaEvent{
		SourceChatID: sourceChatID,
		MessageID:    messageID,
		Fingerprint:  fingerprint,
		MediaType:    MediaTypeVideo,
		Caption:      caption,
	}
}

func TestDispatchNoRule(t *testing.T) {
	transport := &fakeTransport{}
	svc, _, _ := newTestService(t, transport, nil, true)

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", ""))
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Outcome != OutcomeSkipped || results[0].Reason != ReasonNoRule {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if transport.copyCount() != 0 {
		t.Fatalf("expected no copy calls, got %d", transport.copyCount())
	}
}

func TestDispatchDeliversToAllTargets(t *testing.T) {
	transport := &fakeTransport{}
	svc, stats, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200, -201}, true),
	}, true)

	results := svc.Dispatch(context.Background(), videoEvent(-100, 42, "fp-42", "文案"))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, result := range results {
		if result.Outcome != OutcomeDelivered {
			t.Fatalf("unexpected result: %+v", result)
		}
		if result.MessageID == 0 {
			t.Fatalf("expected delivered message ID, got %+v", result)
		}
	}
	if transport.copyCount() != 2 {
		t.Fatalf("expected 2 copy calls, got %d", transport.copyCount())
	}
	if stats.count() != 2 {
		t.Fatalf("expected 2 stats increments, got %d", stats.count())
	}
}

func TestDispatchKeywordFiltered(t *testing.T) {
	transport := &fakeTransport{}
	rule := testRule(-100, []int64{-200}, true)
	rule.KeywordsBlacklist = []string{"广告"}
	svc, _, dedupRepo := newTestService(t, transport, []*models.ForwardRule{rule}, true)

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", "这是广告"))
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Outcome != OutcomeSkipped || results[0].Reason != ReasonFilteredByKeyword {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if transport.copyCount() != 0 {
		t.Fatalf("expected no copy calls, got %d", transport.copyCount())
	}

	// 被过滤的事件不登记指纹，同内容之后通过其他规则时不算重复
	if dedupRepo.seen["fp-1"] {
		t.Fatalf("filtered event should not record fingerprint")
	}
}

func TestDispatchDuplicateSkipped(t *testing.T) {
	transport := &fakeTransport{}
	svc, stats, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200}, true),
	}, true)

	first := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-dup", ""))
	if first[0].Outcome != OutcomeDelivered {
		t.Fatalf("expected first dispatch delivered, got %+v", first[0])
	}

	// 同指纹不同消息 ID：重发内容，按重复跳过
	second := svc.Dispatch(context.Background(), videoEvent(-100, 2, "fp-dup", ""))
	if len(second) != 1 {
		t.Fatalf("expected 1 result, got %d", len(second))
	}
	if second[0].Outcome != OutcomeSkipped || second[0].Reason != ReasonDuplicate {
		t.Fatalf("unexpected result: %+v", second[0])
	}
	if transport.copyCount() != 1 {
		t.Fatalf("expected 1 copy call total, got %d", transport.copyCount())
	}
	if stats.count() != 1 {
		t.Fatalf("duplicate must not increment stats, got %d", stats.count())
	}
}

func TestDispatchDedupDisabled(t *testing.T) {
	transport := &fakeTransport{}
	svc, _, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200}, true),
	}, false)

	for i := 1; i <= 3; i++ {
		results := svc.Dispatch(context.Background(), videoEvent(-100, i, "fp-same", ""))
		if results[0].Outcome != OutcomeDelivered {
			t.Fatalf("dispatch %d: expected delivered, got %+v", i, results[0])
		}
	}
	if transport.copyCount() != 3 {
		t.Fatalf("expected 3 copy calls, got %d", transport.copyCount())
	}
}

func TestDispatchDedupStoreFailureDeliversAnyway(t *testing.T) {
	transport := &fakeTransport{}
	svc, _, dedupRepo := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200}, true),
	}, true)
	dedupRepo.err = errors.New("mongo down")

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", ""))
	if results[0].Outcome != OutcomeDelivered {
		t.Fatalf("expected delivery despite dedup failure, got %+v", results[0])
	}
}

func TestCopyWithRetryRateLimitedOnceThenSuccess(t *testing.T) {
	transport := &fakeTransport{}
	attempts := 0
	transport.copyFunc = func(params *bot.CopyMessageParams) (*botModels.MessageID, error) {
		attempts++
		if attempts == 1 {
			return nil, &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 2}
		}
		return &botModels.MessageID{ID: 77}, nil
	}

	svc, _, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200}, true),
	}, true)

	var slept []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", ""))
	if results[0].Outcome != OutcomeDelivered || results[0].MessageID != 77 {
		t.Fatalf("expected delivery after one retry, got %+v", results[0])
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected a single 2s wait, got %v", slept)
	}
}

func TestCopyWithRetryRateLimitedTwiceFails(t *testing.T) {
	transport := &fakeTransport{}
	attempts := 0
	transport.copyFunc = func(params *bot.CopyMessageParams) (*botModels.MessageID, error) {
		attempts++
		return nil, &bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 1}
	}

	svc, stats, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200}, true),
	}, true)

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", ""))
	if results[0].Outcome != OutcomeFailed || results[0].Reason != ReasonRateLimitExceeded {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	// 等待一次重试一次，重试耗尽后不再有第三次尝试
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
	if stats.count() != 0 {
		t.Fatalf("failed delivery must not increment stats, got %d", stats.count())
	}
}

func TestDeliverUnreachableTargetNoRetry(t *testing.T) {
	transport := &fakeTransport{}
	transport.copyFunc = func(params *bot.CopyMessageParams) (*botModels.MessageID, error) {
		return nil, fmt.Errorf("%w, bot was kicked from the chat", bot.ErrorForbidden)
	}

	svc, _, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200}, true),
	}, true)

	var notices []string
	svc.SetNotifier(func(ctx context.Context, text string) {
		notices = append(notices, text)
	})

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", ""))
	if results[0].Outcome != OutcomeFailed || results[0].Reason != ReasonTargetUnreachable {
		t.Fatalf("unexpected result: %+v", results[0])
	}
	if transport.copyCount() != 1 {
		t.Fatalf("unreachable target must not be retried, got %d attempts", transport.copyCount())
	}
	if len(notices) != 1 {
		t.Fatalf("expected 1 admin notice, got %d", len(notices))
	}
}

func TestDeliverOneTargetFailureDoesNotBlockOthers(t *testing.T) {
	transport := &fakeTransport{}
	transport.copyFunc = func(params *bot.CopyMessageParams) (*botModels.MessageID, error) {
		if chatID, _ := params.ChatID.(int64); chatID == -200 {
			return nil, fmt.Errorf("%w, bot was kicked from the chat", bot.ErrorForbidden)
		}
		return &botModels.MessageID{ID: 5}, nil
	}

	svc, _, _ := newTestService(t, transport, []*models.ForwardRule{
		testRule(-100, []int64{-200, -201}, true),
	}, true)

	results := svc.Dispatch(context.Background(), videoEvent(-100, 1, "fp-1", ""))
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Outcome != OutcomeFailed {
		t.Fatalf("expected first target failed, got %+v", results[0])
	}
	if results[1].Outcome != OutcomeDelivered {
		t.Fatalf("expected second target delivered, got %+v", results[1])
	}
}

func TestAddRulePrecheckFailure(t *testing.T) {
	transport := &fakeTransport{
		getChatErr: map[int64]error{
			-201: fmt.Errorf("%w, chat not found", bot.ErrorBadRequest),
		},
	}
	svc, _, _ := newTestService(t, transport, nil, true)

	_, err := svc.AddRule(context.Background(), -100, []int64{-200, -201})
	if !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected ErrPreconditionFailed, got %v", err)
	}
	if svc.Rules().Len() != 0 {
		t.Fatalf("failed precheck must not persist rule, got %d rules", svc.Rules().Len())
	}
}

func TestAddRuleBackfillsTitles(t *testing.T) {
	transport := &fakeTransport{}
	svc, _, _ := newTestService(t, transport, nil, true)

	rule, err := svc.AddRule(context.Background(), -100, []int64{-200})
	if err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if rule.SourceChatTitle != "chat--100" {
		t.Fatalf("unexpected source title: %q", rule.SourceChatTitle)
	}
	if got := rule.TargetDisplay(-200); got != "chat--200" {
		t.Fatalf("unexpected target display: %q", got)
	}
}
