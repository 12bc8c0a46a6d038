package telegram

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/config"
	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/repository"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Config Telegram Bot 配置
type Config struct {
	Token            string        // Bot Token
	OwnerIDs         []int64       // Owner 用户 IDs
	RulesFile        string        // 规则引导文件（可选）
	StagingChannelID int64         // 迁移中转频道 ID（可选）
	DedupEnabled     bool          // 是否启用去重
	DedupTTL         time.Duration // 去重时效
	NotifyEnabled    bool          // 是否启用管理员通知
	NotifyOnStart    bool          // 启动时通知
	NotifyOnError    bool          // 转发失败时通知
	Debug            bool          // 是否开启调试模式
}

// Bot Telegram 转发 Bot 服务
type Bot struct {
	bot      *bot.Bot
	db       *mongo.Database
	ownerIDs []int64

	notifyEnabled bool
	notifyOnStart bool
	notifyOnError bool

	ruleRepo  repository.RuleRepository
	dedupRepo repository.DedupRepository
	statsRepo repository.StatsRepository

	ruleStore  *forward.RuleStore
	forwardSvc *forward.Service
	migrations *forward.Manager
	collector  *forward.MediaGroupCollector

	workerPool *WorkerPool
	purge      *purgeScheduler
	rulesFile  string
	startTime  time.Time
	shutdown   func()
}

// New 创建 Telegram Bot 实例
func New(cfg Config, db *mongo.Database) (*Bot, error) {
	// 验证配置
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}
	if len(cfg.OwnerIDs) == 0 {
		return nil, fmt.Errorf("at least one bot owner is required")
	}

	// 创建 repositories
	ruleRepo := repository.NewRuleRepository(db)
	dedupRepo := repository.NewDedupRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	telegramBot := &Bot{
		db:            db,
		ownerIDs:      cfg.OwnerIDs,
		notifyEnabled: cfg.NotifyEnabled,
		notifyOnStart: cfg.NotifyOnStart,
		notifyOnError: cfg.NotifyOnError,
		ruleRepo:      ruleRepo,
		dedupRepo:     dedupRepo,
		statsRepo:     statsRepo,
		ruleStore:     forward.NewRuleStore(ruleRepo),
		rulesFile:     cfg.RulesFile,
		startTime:     time.Now(),
	}

	// 创建 bot 实例；未被命令处理器匹配的更新（媒体消息、频道帖）走默认处理器
	opts := []bot.Option{
		bot.WithDefaultHandler(telegramBot.handleDefault),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b

	// 组装转发引擎与迁移管理器
	deduper := forward.NewDeduper(dedupRepo, cfg.DedupEnabled, cfg.DedupTTL)
	telegramBot.forwardSvc = forward.NewService(b, telegramBot.ruleStore, deduper, statsRepo)
	telegramBot.forwardSvc.SetNotifier(telegramBot.notifyError)
	telegramBot.migrations = forward.NewManager(telegramBot.forwardSvc, b, cfg.StagingChannelID)
	telegramBot.collector = forward.NewMediaGroupCollector(0, telegramBot.handleCollectedMediaGroup)

	telegramBot.workerPool = NewWorkerPool(8, 64)
	telegramBot.purge = newPurgeScheduler(dedupRepo)

	// 注册 handlers
	telegramBot.registerHandlers()

	// 初始化数据库索引
	if err := telegramBot.ensureIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	// 装载路由表
	if err := telegramBot.bootstrapRules(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to bootstrap rules: %w", err)
	}

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot
func InitFromConfig(cfg *config.Config, db *mongo.Database) (*Bot, error) {
	telegramCfg := Config{
		Token:            cfg.TelegramToken,
		OwnerIDs:         cfg.BotOwnerIDs,
		RulesFile:        cfg.RulesFile,
		StagingChannelID: cfg.StagingChannelID,
		DedupEnabled:     cfg.Dedup.Enabled,
		DedupTTL:         cfg.Dedup.ExpireAfter,
		NotifyEnabled:    cfg.Notify.Enabled,
		NotifyOnStart:    cfg.Notify.OnStart,
		NotifyOnError:    cfg.Notify.OnError,
	}
	return New(telegramCfg, db)
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行或由 main 直接调用）
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Starting Telegram bot...")

	b.purge.start()
	b.sendStartupNotification(ctx)

	b.bot.Start(ctx)

	b.purge.stop()
	b.workerPool.Shutdown()
	b.forwardSvc.Close()

	logger.L().Info("Telegram bot stopped")
	return nil
}

// SetShutdown 注册进程停止回调（/stop 命令触发）
func (b *Bot) SetShutdown(shutdown func()) {
	b.shutdown = shutdown
}

// bootstrapRules 启动时装载路由表
// 规则持久化在 MongoDB；集合为空且配置了引导文件时先从 YAML 导入
func (b *Bot) bootstrapRules(ctx context.Context) error {
	rules, err := b.ruleRepo.ListRules(ctx)
	if err != nil {
		return err
	}

	if len(rules) == 0 && b.rulesFile != "" {
		seeded, err := LoadRulesFile(b.rulesFile)
		if err != nil {
			return fmt.Errorf("failed to load rules file %s: %w", b.rulesFile, err)
		}
		if err := b.ruleRepo.ReplaceAll(ctx, seeded); err != nil {
			return err
		}
		rules = seeded
		logger.L().Infof("Seeded %d rules from %s", len(seeded), b.rulesFile)
	}

	b.ruleStore.Load(rules)
	logger.L().Infof("Rule table loaded: %d rules", b.ruleStore.Len())
	return nil
}

// ensureIndexes 确保所有数据库索引存在
func (b *Bot) ensureIndexes(ctx context.Context) error {
	if err := b.ruleRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure rule indexes: %w", err)
	}
	logger.L().Debug("Rule indexes ensured")

	if err := b.dedupRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure dedup indexes: %w", err)
	}
	logger.L().Debug("Dedup indexes ensured")

	return nil
}

// handleDefault 默认处理器：识别并转发媒体消息
func (b *Bot) handleDefault(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	// 只对视频类媒体继续处理
	if forward.EventFromMessage(msg) == nil {
		return
	}

	// 相册消息先收集，静默超时后整组转发
	if msg.MediaGroupID != "" {
		b.collector.Add(msg)
		return
	}

	b.workerPool.Submit(HandlerTask{
		Ctx:         ctx,
		BotInstance: botInstance,
		Update:      update,
		Handler:     b.handleMediaMessage,
	})
}

// handleMediaMessage 工作池中的媒体转发任务
func (b *Bot) handleMediaMessage(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}

	event := forward.EventFromMessage(msg)
	if event == nil {
		return
	}

	logger.L().Infof("Received %s: chat_id=%d, message_id=%d", event.MediaType, event.SourceChatID, event.MessageID)
	b.forwardSvc.Dispatch(ctx, event)
}

// handleCollectedMediaGroup 相册收集完成后的逐条转发
func (b *Bot) handleCollectedMediaGroup(messages []*botModels.Message) {
	for _, msg := range messages {
		event := forward.EventFromMessage(msg)
		if event == nil {
			continue
		}
		b.forwardSvc.Dispatch(context.Background(), event)
	}
}

// sendStartupNotification 启动时通知管理员
func (b *Bot) sendStartupNotification(ctx context.Context) {
	if !b.notifyEnabled || !b.notifyOnStart {
		return
	}

	b.notifyOwners(ctx, "🚀 机器人已启动\n✅ 等待接收消息...")
}

// notifyError 转发失败时通知管理员
func (b *Bot) notifyError(ctx context.Context, text string) {
	if !b.notifyEnabled || !b.notifyOnError {
		return
	}

	b.notifyOwners(ctx, text)
}

// notifyOwners 向所有 Owner 发送通知
func (b *Bot) notifyOwners(ctx context.Context, text string) {
	for _, ownerID := range b.ownerIDs {
		if _, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: ownerID,
			Text:   text,
		}); err != nil {
			logger.L().Errorf("Failed to notify owner %d: %v", ownerID, err)
		}
	}
}
