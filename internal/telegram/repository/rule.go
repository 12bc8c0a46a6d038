package repository

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRuleRepository 基于 MongoDB 的转发规则仓储
type MongoRuleRepository struct {
	collection *mongo.Collection
}

// NewRuleRepository 创建转发规则仓储实例
func NewRuleRepository(db *mongo.Database) RuleRepository {
	return &MongoRuleRepository{
		collection: db.Collection("forward_rules"),
	}
}

// ListRules 按插入顺序列出所有规则
func (r *MongoRuleRepository) ListRules(ctx context.Context) ([]*models.ForwardRule, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*models.ForwardRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	return rules, nil
}

// UpsertRule 按源群组 ID 创建或整体替换规则
func (r *MongoRuleRepository) UpsertRule(ctx context.Context, rule *models.ForwardRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	filter := bson.M{"source_chat_id": rule.SourceChatID}
	doc := bson.M{
		"source_chat_id":     rule.SourceChatID,
		"source_chat_title":  rule.SourceChatTitle,
		"target_chat_ids":    rule.TargetChatIDs,
		"target_chat_titles": rule.TargetChatTitles,
		"keywords_blacklist": rule.KeywordsBlacklist,
		"keywords_whitelist": rule.KeywordsWhitelist,
		"enabled":            rule.Enabled,
		"created_at":         rule.CreatedAt,
		"updated_at":         rule.UpdatedAt,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert rule for source %d: %w", rule.SourceChatID, err)
	}

	return nil
}

// DeleteRule 删除指定源群组的所有规则
func (r *MongoRuleRepository) DeleteRule(ctx context.Context, sourceChatID int64) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"source_chat_id": sourceChatID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete rule for source %d: %w", sourceChatID, err)
	}

	return result.DeletedCount, nil
}

// ReplaceAll 整体替换规则集合（清空后批量写入）
func (r *MongoRuleRepository) ReplaceAll(ctx context.Context, rules []*models.ForwardRule) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	if len(rules) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, len(rules))
	for i, rule := range rules {
		if rule.CreatedAt.IsZero() {
			// 保留传入顺序：created_at 逐条递增，ListRules 以其排序
			rule.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		rule.UpdatedAt = now
		docs[i] = rule
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert rules: %w", err)
	}

	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoRuleRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 每个源群组最多一条规则
		{
			Keys:    bson.D{{Key: "source_chat_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for forward_rules: %w", err)
	}

	return nil
}
