package forward

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"
	"forward_bot/internal/telegram/repository"
)

// RuleStore 路由表：不可变快照 + 原子指针替换
//
// 热路径 Match 只读快照，无锁；写路径（Load/Add/Remove）由互斥锁串行化，
// 先构建完整的新快照再整体替换，读方永远看不到半更新的表
type RuleStore struct {
	mu   sync.Mutex // 串行化写路径
	snap atomic.Pointer[ruleSnapshot]
	repo repository.RuleRepository // 可为 nil（纯内存模式，测试用）
}

type ruleSnapshot struct {
	order    []*models.ForwardRule
	bySource map[int64]*models.ForwardRule
}

func newSnapshot(rules []*models.ForwardRule) *ruleSnapshot {
	snap := &ruleSnapshot{
		order:    make([]*models.ForwardRule, 0, len(rules)),
		bySource: make(map[int64]*models.ForwardRule, len(rules)),
	}

	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if _, exists := snap.bySource[rule.SourceChatID]; exists {
			// 每个源最多一条规则，后写入的覆盖先前的
			logger.L().Warnf("Duplicate rule for source %d, keeping the later one", rule.SourceChatID)
			for i, existing := range snap.order {
				if existing.SourceChatID == rule.SourceChatID {
					snap.order = append(snap.order[:i], snap.order[i+1:]...)
					break
				}
			}
		}
		snap.order = append(snap.order, rule)
		snap.bySource[rule.SourceChatID] = rule
	}

	return snap
}

// NewRuleStore 创建路由表（初始为空快照）
func NewRuleStore(repo repository.RuleRepository) *RuleStore {
	store := &RuleStore{repo: repo}
	store.snap.Store(newSnapshot(nil))
	return store
}

// Load 整体替换路由表
// 新快照构建完成后一次替换，替换过程中 Match 仍然读到旧的完整快照
func (s *RuleStore) Load(rules []*models.ForwardRule) {
	cloned := make([]*models.ForwardRule, 0, len(rules))
	for _, rule := range rules {
		cloned = append(cloned, rule.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Store(newSnapshot(cloned))
}

// Reload 从仓储重新加载路由表
func (s *RuleStore) Reload(ctx context.Context) error {
	if s.repo == nil {
		return fmt.Errorf("rule store has no backing repository")
	}

	rules, err := s.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload rules: %w", err)
	}

	s.Load(rules)
	logger.L().Infof("Rule table reloaded: %d rules", len(rules))
	return nil
}

// Add 合并目标到已有规则（幂等并集）并重新启用，不存在时创建新规则
// 返回合并后的规则副本；持久化失败时内存快照不变
func (s *RuleStore) Add(ctx context.Context, sourceChatID int64, targetChatIDs []int64) (*models.ForwardRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap.Load()

	var rule *models.ForwardRule
	if existing, ok := snap.bySource[sourceChatID]; ok {
		rule = existing.Clone()
	} else {
		rule = &models.ForwardRule{SourceChatID: sourceChatID}
	}

	rule.MergeTargets(targetChatIDs)
	rule.Enabled = true

	if s.repo != nil {
		if err := s.repo.UpsertRule(ctx, rule); err != nil {
			return nil, err
		}
	}

	s.snap.Store(s.rebuildWith(snap, rule))
	return rule.Clone(), nil
}

// Update 整体替换单条规则（按源群组 ID），用于回填群组名称等元数据
func (s *RuleStore) Update(ctx context.Context, rule *models.ForwardRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := rule.Clone()
	if s.repo != nil {
		if err := s.repo.UpsertRule(ctx, cloned); err != nil {
			return err
		}
	}

	s.snap.Store(s.rebuildWith(s.snap.Load(), cloned))
	return nil
}

// Remove 删除指定源群组的规则，返回是否确有删除（没有匹配不是错误）
func (s *RuleStore) Remove(ctx context.Context, sourceChatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap.Load()
	if _, ok := snap.bySource[sourceChatID]; !ok {
		return false, nil
	}

	if s.repo != nil {
		if _, err := s.repo.DeleteRule(ctx, sourceChatID); err != nil {
			return false, err
		}
	}

	remaining := make([]*models.ForwardRule, 0, len(snap.order))
	for _, rule := range snap.order {
		if rule.SourceChatID != sourceChatID {
			remaining = append(remaining, rule)
		}
	}
	s.snap.Store(newSnapshot(remaining))

	return true, nil
}

// Match 返回源群组的启用规则（零条或一条）
// 返回的规则属于只读快照，调用方不得修改
func (s *RuleStore) Match(sourceChatID int64) []*models.ForwardRule {
	snap := s.snap.Load()

	rule, ok := snap.bySource[sourceChatID]
	if !ok || !rule.Enabled {
		return nil
	}

	return []*models.ForwardRule{rule}
}

// List 按插入顺序惰性遍历所有规则（含禁用规则），可重复遍历
func (s *RuleStore) List() iter.Seq[*models.ForwardRule] {
	return func(yield func(*models.ForwardRule) bool) {
		snap := s.snap.Load()
		for _, rule := range snap.order {
			if !yield(rule) {
				return
			}
		}
	}
}

// Len 当前规则数量（含禁用规则）
func (s *RuleStore) Len() int {
	return len(s.snap.Load().order)
}

// rebuildWith 以 rule 替换或追加对应源的规则，生成新快照
func (s *RuleStore) rebuildWith(snap *ruleSnapshot, rule *models.ForwardRule) *ruleSnapshot {
	rules := make([]*models.ForwardRule, 0, len(snap.order)+1)
	replaced := false
	for _, existing := range snap.order {
		if existing.SourceChatID == rule.SourceChatID {
			rules = append(rules, rule)
			replaced = true
		} else {
			rules = append(rules, existing)
		}
	}
	if !replaced {
		rules = append(rules, rule)
	}

	return newSnapshot(rules)
}
