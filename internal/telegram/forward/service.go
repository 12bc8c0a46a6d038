package forward

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"
	"forward_bot/internal/telegram/repository"

	"github.com/go-telegram/bot"
)

// Service 转发引擎：规则匹配、关键词过滤、去重与限速投递
// 实时事件与迁移任务共用同一条投递管线（copyWithRetry）
type Service struct {
	transport Transport
	rules     *RuleStore
	dedup     *Deduper
	stats     repository.StatsRepository
	limiter   *RateLimiter

	// notify 管理员通知回调（可为 nil）
	notify func(ctx context.Context, text string)
	// sleep 限流等待，测试中可替换
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService 创建转发引擎
func NewService(transport Transport, rules *RuleStore, dedup *Deduper, stats repository.StatsRepository) *Service {
	return &Service{
		transport: transport,
		rules:     rules,
		dedup:     dedup,
		stats:     stats,
		limiter:   NewRateLimiter(copyRatePerSecond),
		sleep:     sleepContext,
	}
}

// SetNotifier 注册管理员通知回调（投递失败时上报）
func (s *Service) SetNotifier(notify func(ctx context.Context, text string)) {
	s.notify = notify
}

// Rules 返回引擎持有的路由表
func (s *Service) Rules() *RuleStore {
	return s.rules
}

// Close 释放引擎资源
func (s *Service) Close() {
	s.limiter.Close()
}

// Dispatch 处理一条媒体事件：匹配规则 → 过滤 → 去重 → 逐目标投递
//
// 去重在整个事件上只做一次（指纹标识内容，与目标无关）；每个目标独立投递，
// 单个目标失败不阻止同规则其余目标或其他规则的尝试
func (s *Service) Dispatch(ctx context.Context, event *MediaEvent) []TargetResult {
	if event == nil {
		return nil
	}

	rules := s.rules.Match(event.SourceChatID)
	if len(rules) == 0 {
		logger.L().Debugf("No forwarding rule for source %d, skipping message %d",
			event.SourceChatID, event.MessageID)
		return []TargetResult{skippedResult(0, ReasonNoRule)}
	}

	var results []TargetResult
	dedupDone := false

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		if !EvaluateKeywords(event.Caption, rule.KeywordsBlacklist, rule.KeywordsWhitelist) {
			logger.L().Infof("Message %d from %d blocked by keyword filter",
				event.MessageID, event.SourceChatID)
			for _, target := range rule.TargetChatIDs {
				results = append(results, skippedResult(target, ReasonFilteredByKeyword))
			}
			continue
		}

		// 去重对事件只判定一次，且只在至少有一条规则通过过滤后才登记指纹
		if !dedupDone {
			dedupDone = true
			isNew, err := s.dedup.CheckAndRecord(ctx, event.Fingerprint, event.SourceChatID)
			if err != nil {
				logger.L().Errorf("Dedup check failed for fingerprint %q: %v", event.Fingerprint, err)
				// 去重存储故障时放行而不是丢消息
			} else if !isNew {
				logger.L().Infof("Duplicate content %q from %d, skipping", event.Fingerprint, event.SourceChatID)
				for _, target := range rule.TargetChatIDs {
					results = append(results, skippedResult(target, ReasonDuplicate))
				}
				return results
			}
		}

		for _, target := range rule.TargetChatIDs {
			results = append(results, s.deliverToTarget(ctx, event, target))
		}
	}

	return results
}

// deliverToTarget 向单个目标投递事件
func (s *Service) deliverToTarget(ctx context.Context, event *MediaEvent, targetChatID int64) TargetResult {
	params := &bot.CopyMessageParams{
		ChatID:          targetChatID,
		FromChatID:      event.SourceChatID,
		MessageID:       event.MessageID,
		Caption:         event.Caption,
		CaptionEntities: event.CaptionEntities,
	}

	messageID, err := s.copyWithRetry(ctx, params)
	if err == nil {
		s.recordDelivered(ctx)
		logger.L().Infof("Forwarded %s to %d: source=%d, message_id=%d",
			event.MediaType, targetChatID, event.SourceChatID, event.MessageID)
		return deliveredResult(targetChatID, messageID)
	}

	if _, rateLimited := rateLimitWait(err); rateLimited {
		logger.L().Errorf("Rate limit exceeded forwarding to %d: %v", targetChatID, err)
		s.notifyAdmin(ctx, fmt.Sprintf("⚠ 转发重试失败\n目标: %d\n错误: %v", targetChatID, err))
		return failedResult(targetChatID, ReasonRateLimitExceeded, err)
	}

	if isUnreachableError(err) {
		logger.L().Errorf("Target %d unreachable: %v", targetChatID, err)
		s.notifyAdmin(ctx, fmt.Sprintf("❌ 转发失败\n目标: %d\n错误: %v", targetChatID, err))
		return failedResult(targetChatID, ReasonTargetUnreachable, err)
	}

	logger.L().Errorf("Failed to forward to %d: %v", targetChatID, err)
	s.notifyAdmin(ctx, fmt.Sprintf("❌ 转发失败\n目标: %d\n错误: %v", targetChatID, err))
	return failedResult(targetChatID, ReasonDeliveryError, err)
}

// copyWithRetry 执行一次拷贝发送，应用统一的限流重试策略
//
// 被限流时等待平台要求的时长并恰好重试一次；第二次仍被限流则原样返回限流
// 错误（有界重试，不做无限退避）。权限/不存在类错误不重试
func (s *Service) copyWithRetry(ctx context.Context, params *bot.CopyMessageParams) (int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter wait: %w", err)
	}

	msg, err := s.transport.CopyMessage(ctx, params)
	if err == nil {
		return msg.ID, nil
	}

	wait, rateLimited := rateLimitWait(err)
	if !rateLimited {
		return 0, err
	}

	logger.L().Warnf("Rate limited, waiting %s before retry: target=%v", wait, params.ChatID)
	if serr := s.sleep(ctx, wait); serr != nil {
		return 0, fmt.Errorf("rate limit wait interrupted: %w", serr)
	}

	msg, err = s.transport.CopyMessage(ctx, params)
	if err == nil {
		return msg.ID, nil
	}

	return 0, err
}

// AddRule 新增转发规则（合并目标并重新启用）
//
// 提交前对源群组与每个目标群组做访问能力预检（GetChat），任何一个预检失败
// 都返回 ErrPreconditionFailed，规则不落库；预检顺带取得群组名称回填到规则
func (s *Service) AddRule(ctx context.Context, sourceChatID int64, targetChatIDs []int64) (*models.ForwardRule, error) {
	sourceTitle, err := s.chatTitle(ctx, sourceChatID)
	if err != nil {
		return nil, fmt.Errorf("%w: source %d: %v", ErrPreconditionFailed, sourceChatID, err)
	}

	targetTitles := make(map[int64]string, len(targetChatIDs))
	for _, target := range targetChatIDs {
		title, err := s.chatTitle(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("%w: target %d: %v", ErrPreconditionFailed, target, err)
		}
		targetTitles[target] = title
	}

	rule, err := s.rules.Add(ctx, sourceChatID, targetChatIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to add rule: %w", err)
	}

	// 回填展示名称（仅元数据，不影响路由）
	rule.SourceChatTitle = sourceTitle
	for target, title := range targetTitles {
		rule.SetTargetTitle(target, title)
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		logger.L().Warnf("Failed to persist chat titles for rule %d: %v", sourceChatID, err)
	}

	return rule, nil
}

// RemoveRule 删除转发规则，返回是否确有删除（没有匹配不是错误）
func (s *Service) RemoveRule(ctx context.Context, sourceChatID int64) (bool, error) {
	return s.rules.Remove(ctx, sourceChatID)
}

// recordDelivered 登记一次成功投递（实时投递与迁移均调用）
func (s *Service) recordDelivered(ctx context.Context) {
	if s.stats == nil {
		return
	}
	if err := s.stats.IncrementForwarded(ctx, time.Now()); err != nil {
		logger.L().Errorf("Failed to increment forward stats: %v", err)
	}
}

// notifyAdmin 发送管理员通知（未注册回调时忽略）
func (s *Service) notifyAdmin(ctx context.Context, text string) {
	if s.notify == nil {
		return
	}
	s.notify(ctx, text)
}

// chatTitle 访问能力预检：能取到会话信息即视为具备访问能力
func (s *Service) chatTitle(ctx context.Context, chatID int64) (string, error) {
	chat, err := s.transport.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return "", err
	}
	return chat.Title, nil
}
