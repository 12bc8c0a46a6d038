package repository

import (
	"context"
	"time"

	"forward_bot/internal/telegram/models"
)

// RuleRepository 转发规则数据访问接口
type RuleRepository interface {
	// ListRules 按插入顺序列出所有规则（含禁用规则）
	ListRules(ctx context.Context) ([]*models.ForwardRule, error)

	// UpsertRule 按源群组 ID 创建或整体替换规则
	UpsertRule(ctx context.Context, rule *models.ForwardRule) error

	// DeleteRule 删除指定源群组的所有规则，返回删除数量（0 不是错误）
	DeleteRule(ctx context.Context, sourceChatID int64) (int64, error)

	// ReplaceAll 整体替换规则集合
	ReplaceAll(ctx context.Context, rules []*models.ForwardRule) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// DedupRepository 去重账本数据访问接口
type DedupRepository interface {
	// CheckAndRecord 原子地查找未过期指纹并在缺失时登记新记录
	// 返回 true 表示新内容（已登记），false 表示重复内容（未写入）
	CheckAndRecord(ctx context.Context, fingerprint string, sourceChatID int64, now time.Time, ttl time.Duration) (bool, error)

	// PurgeExpired 删除所有已过期的记录，返回删除数量
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// EnsureIndexes 确保索引存在（指纹唯一索引 + 过期 TTL 索引）
	EnsureIndexes(ctx context.Context) error
}

// StatsRepository 转发统计数据访问接口
type StatsRepository interface {
	// IncrementForwarded 累加总计数与今日计数，跨天时先重置今日计数（单文档原子操作）
	IncrementForwarded(ctx context.Context, now time.Time) error

	// GetStats 读取统计计数器，today 按 now 所在日期折算
	GetStats(ctx context.Context, now time.Time) (*models.ForwardStats, error)
}
