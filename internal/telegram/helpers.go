package telegram

import (
	"context"

	"forward_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// sendMessage 发送消息（统一错误处理）
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, replyTo ...int) {
	if _, err := b.sendMessageReturning(ctx, chatID, text, replyTo...); err != nil {
		logger.L().Errorf("Failed to send message to chat %d: %v", chatID, err)
	}
}

// sendMessageReturning 发送消息并返回消息对象（需要后续编辑时使用）
func (b *Bot) sendMessageReturning(ctx context.Context, chatID int64, text string, replyTo ...int) (*botModels.Message, error) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}

	if len(replyTo) > 0 && replyTo[0] > 0 {
		params.ReplyParameters = &botModels.ReplyParameters{
			MessageID: replyTo[0],
		}
	}

	return b.bot.SendMessage(ctx, params)
}

// sendErrorMessage 发送错误消息
func (b *Bot) sendErrorMessage(ctx context.Context, chatID int64, message string, replyTo ...int) {
	b.sendMessage(ctx, chatID, "❌ "+message, replyTo...)
}

// sendSuccessMessage 发送成功消息
func (b *Bot) sendSuccessMessage(ctx context.Context, chatID int64, message string, replyTo ...int) {
	b.sendMessage(ctx, chatID, "✅ "+message, replyTo...)
}
