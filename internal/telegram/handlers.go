package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// registerHandlers 注册所有命令处理器（异步执行）
func (b *Bot) registerHandlers() {
	// 普通命令 - 异步执行
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact,
		b.asyncHandler(b.handleStart))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/ping", bot.MatchTypeExact,
		b.asyncHandler(b.handlePing))

	// 管理员命令（仅 Owner） - 异步执行
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/list", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleListRules)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/add", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleAddRule)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/del", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleDelRule)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/reload", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleReload)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleStats)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/migrate", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleMigrate)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stop", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleStop)))

	logger.L().Debug("All handlers registered with async execution")
}

// asyncHandler 将处理器包装为工作池任务
func (b *Bot) asyncHandler(handler bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		b.workerPool.Submit(HandlerTask{
			Ctx:         ctx,
			BotInstance: botInstance,
			Update:      update,
			Handler:     handler,
		})
	}
}

// handleStart 处理 /start 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	welcomeText := "👋 你好!\n\n本 Bot 将源群组的视频无痕转发到目标群组。\n\n可用命令:\n" +
		"/ping - 测试连接\n" +
		"/list - 查看转发规则\n" +
		"/add <源群ID> <目标群ID>... - 添加规则\n" +
		"/del <源群ID> - 删除规则\n" +
		"/reload - 重载规则\n" +
		"/stats - 转发统计\n" +
		"/migrate <源ID> <目标ID> <起始ID> <结束ID> - 历史消息迁移\n" +
		"/stop - 停止迁移或机器人"

	b.sendMessage(ctx, update.Message.Chat.ID, welcomeText)
}

// handlePing 处理 /ping 命令
func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, b.buildPingMessage(ctx))
}

// handleListRules 处理 /list 命令 - 列出所有规则
func (b *Bot) handleListRules(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	if b.ruleStore.Len() == 0 {
		b.sendMessage(ctx, update.Message.Chat.ID, "📭 当前没有转发规则")
		return
	}

	lines := []string{"📋 当前转发规则:"}
	idx := 0
	for rule := range b.ruleStore.List() {
		idx++

		targets := make([]string, 0, len(rule.TargetChatIDs))
		for _, targetID := range rule.TargetChatIDs {
			targets = append(targets, fmt.Sprintf("%s (%d)", rule.TargetDisplay(targetID), targetID))
		}

		line := fmt.Sprintf("%d. %s (%d) -> %s",
			idx, rule.SourceDisplay(), rule.SourceChatID, strings.Join(targets, ", "))
		if !rule.Enabled {
			line += "（已禁用）"
		}
		lines = append(lines, line)
	}

	b.sendMessage(ctx, update.Message.Chat.ID, strings.Join(lines, "\n"))
}

// handleAddRule 处理 /add 命令 - 添加转发规则
func (b *Bot) handleAddRule(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	args := strings.Fields(update.Message.Text)[1:]
	if len(args) < 2 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "用法: /add <源群ID> <目标群ID> [目标群ID...]")
		return
	}

	ids, err := parseChatIDs(args)
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "ID必须是整数")
		return
	}

	sourceID, targetIDs := ids[0], ids[1:]

	rule, err := b.forwardSvc.AddRule(ctx, sourceID, targetIDs)
	if err != nil {
		if errors.Is(err, forward.ErrPreconditionFailed) {
			b.sendErrorMessage(ctx, update.Message.Chat.ID,
				fmt.Sprintf("权限校验失败，请确认机器人已加入相关群组: %v", err))
			return
		}
		b.sendErrorMessage(ctx, update.Message.Chat.ID, fmt.Sprintf("添加失败: %v", err))
		return
	}

	targets := make([]string, 0, len(rule.TargetChatIDs))
	for _, targetID := range rule.TargetChatIDs {
		targets = append(targets, fmt.Sprintf("%s (%d)", rule.TargetDisplay(targetID), targetID))
	}

	b.sendSuccessMessage(ctx, update.Message.Chat.ID,
		fmt.Sprintf("已添加规则: %s (%d) -> %s", rule.SourceDisplay(), rule.SourceChatID, strings.Join(targets, ", ")))
}

// handleDelRule 处理 /del 命令 - 删除转发规则
func (b *Bot) handleDelRule(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	args := strings.Fields(update.Message.Text)[1:]
	if len(args) < 1 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "用法: /del <源群ID>")
		return
	}

	sourceID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "ID必须是整数")
		return
	}

	removed, err := b.forwardSvc.RemoveRule(ctx, sourceID)
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, fmt.Sprintf("删除失败: %v", err))
		return
	}

	if removed {
		b.sendSuccessMessage(ctx, update.Message.Chat.ID, fmt.Sprintf("已删除源 %d 的规则", sourceID))
	} else {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "未找到对应规则")
	}
}

// handleReload 处理 /reload 命令 - 重载规则
func (b *Bot) handleReload(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	if err := b.ruleStore.Reload(ctx); err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, fmt.Sprintf("重载失败: %v", err))
		return
	}

	logger.L().Info("Rules reloaded by owner command")
	b.sendSuccessMessage(ctx, update.Message.Chat.ID,
		fmt.Sprintf("规则已重载，共 %d 条", b.ruleStore.Len()))
}

// handleStats 处理 /stats 命令 - 显示统计信息
func (b *Bot) handleStats(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	stats, err := b.statsRepo.GetStats(ctx, time.Now())
	if err != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, fmt.Sprintf("获取统计信息失败: %v", err))
		return
	}

	text := fmt.Sprintf("📊 机器人统计\n\n总转发数: %d\n今日转发数: %d",
		stats.TotalForwarded, stats.TodayForwarded)
	b.sendMessage(ctx, update.Message.Chat.ID, text)
}

// handleMigrate 处理 /migrate 命令 - 历史消息迁移
// 用法: /migrate <源群ID> <目标群ID> <起始消息ID> <结束消息ID>
func (b *Bot) handleMigrate(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	args := strings.Fields(update.Message.Text)[1:]
	if len(args) < 4 {
		b.sendErrorMessage(ctx, update.Message.Chat.ID,
			"用法: /migrate <源ID> <目标ID> <起始ID> <结束ID>\n例如: /migrate -100123 -100456 100 200")
		return
	}

	sourceID, err1 := strconv.ParseInt(args[0], 10, 64)
	targetID, err2 := strconv.ParseInt(args[1], 10, 64)
	startID, err3 := strconv.Atoi(args[2])
	endID, err4 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "ID必须是整数")
		return
	}

	// 起止顺序写反时交换
	if startID > endID {
		startID, endID = endID, startID
	}

	statusMsg, err := b.sendMessageReturning(ctx, update.Message.Chat.ID,
		fmt.Sprintf("🚀 开始迁移...\n源: %d\n目标: %d\n范围: %d - %d", sourceID, targetID, startID, endID))
	if err != nil {
		logger.L().Errorf("Failed to send migration status message: %v", err)
		return
	}

	_, err = b.migrations.Start(ctx, sourceID, targetID, startID, endID,
		update.Message.Chat.ID, statusMsg.ID)
	if err != nil {
		var text string
		switch {
		case errors.Is(err, forward.ErrAlreadyRunning):
			text = "⚠️ 正在进行迁移任务，请等待完成后再试"
		case errors.Is(err, forward.ErrPreconditionFailed):
			text = fmt.Sprintf("❌ 迁移启动失败，无法访问相关群组: %v", err)
		default:
			text = fmt.Sprintf("❌ 迁移启动失败: %v", err)
		}

		if _, editErr := b.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    update.Message.Chat.ID,
			MessageID: statusMsg.ID,
			Text:      text,
		}); editErr != nil {
			logger.L().Errorf("Failed to edit migration status message: %v", editErr)
		}
	}
}

// handleStop 处理 /stop 命令 - 停止迁移或机器人
func (b *Bot) handleStop(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	if b.migrations.Cancel() {
		b.sendMessage(ctx, update.Message.Chat.ID, "🛑 已请求停止迁移任务")
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, "👋 机器人正在停止...")
	logger.L().Info("Owner requested bot shutdown")

	if b.shutdown != nil {
		b.shutdown()
	}
}

// parseChatIDs 解析一组十进制会话 ID
func parseChatIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID %q: %w", arg, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
