package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 应用程序配置
type Config struct {
	TelegramToken    string  // Telegram Bot API Token
	BotOwnerIDs      []int64 // Bot管理员ID列表
	MongoURI         string  // MongoDB连接URI
	MongoDBName      string  // MongoDB数据库名称
	RulesFile        string  // 转发规则引导文件（YAML，可选，仅在规则集合为空时导入）
	StagingChannelID int64   // 迁移中转频道 ID（可选，管理员私有频道）
	Dedup            DedupConfig
	Notify           NotifyConfig
}

// DedupConfig 去重配置
type DedupConfig struct {
	Enabled     bool          // 是否启用去重
	ExpireAfter time.Duration // 去重时效（指纹记录的 TTL）
}

// NotifyConfig 管理员通知配置
type NotifyConfig struct {
	Enabled bool // 是否启用管理员通知
	OnStart bool // 启动时通知
	OnError bool // 转发失败时通知
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "forward_bot"
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		RulesFile:     strings.TrimSpace(os.Getenv("RULES_FILE")),
		Dedup: DedupConfig{
			Enabled:     true,
			ExpireAfter: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Enabled: true,
			OnStart: true,
			OnError: true,
		},
	}

	// 解析BOT_OWNER_IDS
	ownerIDsStr := os.Getenv("BOT_OWNER_IDS")
	if ownerIDsStr != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	// 解析STAGING_CHANNEL_ID（可选，用于迁移中转）
	stagingIDStr := strings.TrimSpace(os.Getenv("STAGING_CHANNEL_ID"))
	if stagingIDStr != "" {
		stagingID, err := strconv.ParseInt(stagingIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse STAGING_CHANNEL_ID: %w", err)
		}
		cfg.StagingChannelID = stagingID
	}

	// 解析DEDUP_ENABLED（默认启用）
	if enabled := strings.TrimSpace(os.Getenv("DEDUP_ENABLED")); enabled != "" {
		value, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DEDUP_ENABLED: %w", err)
		}
		cfg.Dedup.Enabled = value
	}

	// 解析DEDUP_EXPIRE_HOURS（默认24小时）
	if hoursStr := strings.TrimSpace(os.Getenv("DEDUP_EXPIRE_HOURS")); hoursStr != "" {
		hours, err := strconv.Atoi(hoursStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DEDUP_EXPIRE_HOURS: %w", err)
		}
		if hours < 1 {
			return nil, fmt.Errorf("DEDUP_EXPIRE_HOURS must be >= 1, got %d", hours)
		}
		cfg.Dedup.ExpireAfter = time.Duration(hours) * time.Hour
	}

	// 解析通知开关
	var err error
	if cfg.Notify.Enabled, err = parseBoolEnv("ADMIN_NOTIFY_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Notify.OnStart, err = parseBoolEnv("NOTIFY_ON_START", true); err != nil {
		return nil, err
	}
	if cfg.Notify.OnError, err = parseBoolEnv("NOTIFY_ON_ERROR", true); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// parseBoolEnv 解析布尔环境变量，缺省时返回默认值
func parseBoolEnv(name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return value, nil
}
