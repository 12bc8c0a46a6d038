package forward

import (
	"context"
	"time"

	"forward_bot/internal/telegram/repository"
)

// Deduper 去重判定器：封装去重开关与 TTL，由实时投递与迁移共用
type Deduper struct {
	repo    repository.DedupRepository
	enabled bool
	ttl     time.Duration
}

// NewDeduper 创建去重判定器
func NewDeduper(repo repository.DedupRepository, enabled bool, ttl time.Duration) *Deduper {
	return &Deduper{
		repo:    repo,
		enabled: enabled,
		ttl:     ttl,
	}
}

// Enabled 去重是否启用
func (d *Deduper) Enabled() bool {
	return d != nil && d.enabled && d.repo != nil
}

// CheckAndRecord 原子地查重并登记指纹，返回 true 表示新内容
// 去重停用或指纹为空时直接视为新内容，不触碰存储
func (d *Deduper) CheckAndRecord(ctx context.Context, fingerprint string, sourceChatID int64) (bool, error) {
	if !d.Enabled() || fingerprint == "" {
		return true, nil
	}

	return d.repo.CheckAndRecord(ctx, fingerprint, sourceChatID, time.Now(), d.ttl)
}
