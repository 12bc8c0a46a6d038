package models

import (
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ForwardRule 转发规则：一个源群组到若干目标群组的映射，可带关键词过滤
// 源群组 ID 是路由键；每个源最多存在一条规则
type ForwardRule struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	SourceChatID      int64              `bson:"source_chat_id"`               // 源群组 ID（路由键）
	SourceChatTitle   string             `bson:"source_chat_title,omitempty"`  // 源群组名称（仅展示用）
	TargetChatIDs     []int64            `bson:"target_chat_ids"`              // 目标群组 ID 列表（有序去重）
	TargetChatTitles  map[string]string  `bson:"target_chat_titles,omitempty"` // 目标群组名称，key 为目标 ID 的十进制字符串
	KeywordsBlacklist []string           `bson:"keywords_blacklist,omitempty"` // 关键词黑名单
	KeywordsWhitelist []string           `bson:"keywords_whitelist,omitempty"` // 关键词白名单
	Enabled           bool               `bson:"enabled"`                      // 禁用的规则保留但不参与匹配
	CreatedAt         time.Time          `bson:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at"`
}

// Clone 返回规则的深拷贝，快照表中的规则不允许被调用方修改
func (r *ForwardRule) Clone() *ForwardRule {
	if r == nil {
		return nil
	}

	clone := *r
	clone.TargetChatIDs = append([]int64(nil), r.TargetChatIDs...)
	clone.KeywordsBlacklist = append([]string(nil), r.KeywordsBlacklist...)
	clone.KeywordsWhitelist = append([]string(nil), r.KeywordsWhitelist...)

	if r.TargetChatTitles != nil {
		clone.TargetChatTitles = make(map[string]string, len(r.TargetChatTitles))
		for k, v := range r.TargetChatTitles {
			clone.TargetChatTitles[k] = v
		}
	}

	return &clone
}

// MergeTargets 将目标 ID 并入规则（幂等并集，保持插入顺序），返回新增数量
func (r *ForwardRule) MergeTargets(targetIDs []int64) int {
	existing := make(map[int64]struct{}, len(r.TargetChatIDs))
	for _, id := range r.TargetChatIDs {
		existing[id] = struct{}{}
	}

	added := 0
	for _, id := range targetIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		existing[id] = struct{}{}
		r.TargetChatIDs = append(r.TargetChatIDs, id)
		added++
	}

	return added
}

// SetTargetTitle 记录目标群组名称
func (r *ForwardRule) SetTargetTitle(targetID int64, title string) {
	if title == "" {
		return
	}
	if r.TargetChatTitles == nil {
		r.TargetChatTitles = make(map[string]string)
	}
	r.TargetChatTitles[strconv.FormatInt(targetID, 10)] = title
}

// TargetDisplay 返回目标群组的展示名称，没有记录名称时退回到 ID
func (r *ForwardRule) TargetDisplay(targetID int64) string {
	idStr := strconv.FormatInt(targetID, 10)
	if title, ok := r.TargetChatTitles[idStr]; ok && title != "" {
		return title
	}
	return idStr
}

// SourceDisplay 返回源群组的展示名称
func (r *ForwardRule) SourceDisplay() string {
	if r.SourceChatTitle != "" {
		return r.SourceChatTitle
	}
	return strconv.FormatInt(r.SourceChatID, 10)
}
