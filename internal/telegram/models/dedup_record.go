package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DedupRecord 去重账本记录
// Fingerprint 使用平台分配的 file_unique_id：同一内容重新发送会得到新的消息 ID，
// 但 file_unique_id 保持稳定，因此以它为指纹而不是消息 ID
type DedupRecord struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Fingerprint  string             `bson:"fingerprint"`    // 内容指纹（唯一索引）
	SourceChatID int64              `bson:"source_chat_id"` // 首次出现的源群组（仅元数据）
	FirstSeenAt  time.Time          `bson:"first_seen_at"`
	ExpiresAt    time.Time          `bson:"expires_at"` // first_seen_at + TTL，重启后按存储值计算剩余时效
}

// Expired 判断记录在给定时刻是否已过期
func (r *DedupRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
