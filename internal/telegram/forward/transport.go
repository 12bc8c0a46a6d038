package forward

import (
	"context"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// Transport 外部传输客户端边界
// *bot.Bot 直接满足该接口；测试中用假实现替换
type Transport interface {
	// CopyMessage 无痕拷贝消息（不携带来源信息）
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*botModels.MessageID, error)

	// SendMessage 发送文本消息
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error)

	// EditMessageText 编辑已发送的消息文本（幂等的状态更新）
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*botModels.Message, error)

	// DeleteMessage 删除消息（中转消息清理）
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)

	// GetChat 获取会话信息，用作访问能力预检
	GetChat(ctx context.Context, params *bot.GetChatParams) (*botModels.ChatFullInfo, error)
}
