package telegram

import (
	"fmt"
	"os"
	"time"

	"forward_bot/internal/telegram/models"

	"gopkg.in/yaml.v3"
)

// rulesFileDoc 规则引导文件结构
type rulesFileDoc struct {
	Rules []rulesFileEntry `yaml:"rules"`
}

type rulesFileEntry struct {
	SourceChatID      int64    `yaml:"source_chat_id"`
	SourceChatTitle   string   `yaml:"source_chat_title"`
	TargetChatIDs     []int64  `yaml:"target_chat_ids"`
	KeywordsBlacklist []string `yaml:"keywords_blacklist"`
	KeywordsWhitelist []string `yaml:"keywords_whitelist"`
	Enabled           *bool    `yaml:"enabled"` // 省略时默认启用
}

// LoadRulesFile 从 YAML 文件加载转发规则
// 仅在数据库规则集合为空时用于首次引导，之后以数据库为准
func LoadRulesFile(path string) ([]*models.ForwardRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc rulesFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}

	now := time.Now()
	seen := make(map[int64]struct{}, len(doc.Rules))
	rules := make([]*models.ForwardRule, 0, len(doc.Rules))

	for i, entry := range doc.Rules {
		if entry.SourceChatID == 0 {
			return nil, fmt.Errorf("rule #%d: source_chat_id is required", i+1)
		}
		if len(entry.TargetChatIDs) == 0 {
			return nil, fmt.Errorf("rule #%d: at least one target_chat_id is required", i+1)
		}
		if _, ok := seen[entry.SourceChatID]; ok {
			return nil, fmt.Errorf("rule #%d: duplicate source_chat_id %d", i+1, entry.SourceChatID)
		}
		seen[entry.SourceChatID] = struct{}{}

		rule := &models.ForwardRule{
			SourceChatID:      entry.SourceChatID,
			SourceChatTitle:   entry.SourceChatTitle,
			KeywordsBlacklist: entry.KeywordsBlacklist,
			KeywordsWhitelist: entry.KeywordsWhitelist,
			Enabled:           entry.Enabled == nil || *entry.Enabled,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		rule.MergeTargets(entry.TargetChatIDs)
		rules = append(rules, rule)
	}

	return rules, nil
}
