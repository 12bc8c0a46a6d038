package forward

import (
	"strings"

	botModels "github.com/go-telegram/bot/models"
)

// 媒体类型
const (
	MediaTypeVideo     = "video"      // 普通视频
	MediaTypeVideoNote = "video_note" // 视频笔记（圆圈视频）
	MediaTypeVideoFile = "video_file" // 以文件形式发送的视频
)

// MediaEvent 一条待转发的媒体事件
// Fingerprint 为平台分配的 file_unique_id：同一内容重发会得到新消息 ID，
// 指纹保持稳定，因此去重以指纹为准
type MediaEvent struct {
	SourceChatID    int64
	MessageID       int
	Fingerprint     string
	MediaType       string
	Caption         string
	CaptionEntities []botModels.MessageEntity
}

// EventFromMessage 从消息中识别视频类媒体并抽取指纹
// 非视频消息返回 nil
func EventFromMessage(msg *botModels.Message) *MediaEvent {
	if msg == nil {
		return nil
	}

	var fingerprint, mediaType string

	switch {
	case msg.Video != nil:
		fingerprint = msg.Video.FileUniqueID
		mediaType = MediaTypeVideo
	case msg.VideoNote != nil:
		fingerprint = msg.VideoNote.FileUniqueID
		mediaType = MediaTypeVideoNote
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "video/"):
		fingerprint = msg.Document.FileUniqueID
		mediaType = MediaTypeVideoFile
	default:
		return nil
	}

	return &MediaEvent{
		SourceChatID:    msg.Chat.ID,
		MessageID:       msg.ID,
		Fingerprint:     fingerprint,
		MediaType:       mediaType,
		Caption:         msg.Caption,
		CaptionEntities: msg.CaptionEntities,
	}
}
