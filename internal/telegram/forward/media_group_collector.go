package forward

import (
	"sync"
	"time"

	"forward_bot/internal/logger"

	botModels "github.com/go-telegram/bot/models"
)

// 相册内消息到齐的判定等待：最后一条消息之后静默该时长即视为收集完成
const defaultMediaGroupTimeout = 1500 * time.Millisecond

// MediaGroupBuffer 单个相册的缓冲区
type MediaGroupBuffer struct {
	Messages []*botModels.Message
	Timer    *time.Timer
	Mutex    sync.Mutex
}

// MediaGroupCollector 相册收集器
// 相册（media group）内的每条消息独立到达；按 MediaGroupID 缓冲，
// 静默超时后把整组消息交给回调逐条走转发管线
type MediaGroupCollector struct {
	buffers   map[string]*MediaGroupBuffer
	mutex     sync.RWMutex
	timeout   time.Duration
	onCollect func(messages []*botModels.Message)
}

// NewMediaGroupCollector 创建相册收集器
func NewMediaGroupCollector(timeout time.Duration, onCollect func([]*botModels.Message)) *MediaGroupCollector {
	if timeout <= 0 {
		timeout = defaultMediaGroupTimeout
	}
	return &MediaGroupCollector{
		buffers:   make(map[string]*MediaGroupBuffer),
		timeout:   timeout,
		onCollect: onCollect,
	}
}

// Add 添加相册消息到收集器
func (c *MediaGroupCollector) Add(message *botModels.Message) {
	mediaGroupID := message.MediaGroupID

	c.mutex.Lock()
	buffer, exists := c.buffers[mediaGroupID]
	if !exists {
		buffer = &MediaGroupBuffer{
			Messages: make([]*botModels.Message, 0),
		}
		c.buffers[mediaGroupID] = buffer
		logger.L().Debugf("Created media group buffer: media_group_id=%s", mediaGroupID)
	}
	c.mutex.Unlock()

	buffer.Mutex.Lock()
	buffer.Messages = append(buffer.Messages, message)

	// 每来一条消息重置静默计时
	if buffer.Timer != nil {
		buffer.Timer.Stop()
	}
	buffer.Timer = time.AfterFunc(c.timeout, func() {
		c.collect(mediaGroupID)
	})
	buffer.Mutex.Unlock()
}

// collect 收集并处理相册
func (c *MediaGroupCollector) collect(mediaGroupID string) {
	c.mutex.Lock()
	buffer, exists := c.buffers[mediaGroupID]
	if !exists {
		c.mutex.Unlock()
		return
	}
	delete(c.buffers, mediaGroupID)
	c.mutex.Unlock()

	buffer.Mutex.Lock()
	messages := buffer.Messages
	buffer.Mutex.Unlock()

	if len(messages) > 0 {
		logger.L().Infof("Media group collected: media_group_id=%s, message_count=%d",
			mediaGroupID, len(messages))
		c.onCollect(messages)
	}
}
