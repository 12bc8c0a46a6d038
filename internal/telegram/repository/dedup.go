package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDedupRepository 基于 MongoDB 的去重账本仓储
type MongoDedupRepository struct {
	collection *mongo.Collection
}

// NewDedupRepository 创建去重账本仓储实例
func NewDedupRepository(db *mongo.Database) DedupRepository {
	return &MongoDedupRepository{
		collection: db.Collection("dedup_records"),
	}
}

// CheckAndRecord 原子地查找未过期指纹并在缺失时登记新记录
//
// 查重与登记必须是单个原子操作：两个并发投递（或一次实时投递与一次迁移条目）
// 携带相同指纹时，只允许其中一个得到"新内容"。实现为对指纹唯一索引的
// FindOneAndUpdate（$setOnInsert + upsert）：
//   - 命中未过期记录 → 重复，不写入
//   - 无记录 → upsert 插入 → 新内容
//   - 存在已过期记录 → upsert 触发唯一键冲突，转为条件替换，替换成功者为新内容
func (r *MongoDedupRepository) CheckAndRecord(ctx context.Context, fingerprint string, sourceChatID int64, now time.Time, ttl time.Duration) (bool, error) {
	now = now.UTC()
	record := &models.DedupRecord{
		Fingerprint:  fingerprint,
		SourceChatID: sourceChatID,
		FirstSeenAt:  now,
		ExpiresAt:    now.Add(ttl),
	}

	filter := bson.M{
		"fingerprint": fingerprint,
		"expires_at":  bson.M{"$gt": now},
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"fingerprint":    record.Fingerprint,
			"source_chat_id": record.SourceChatID,
			"first_seen_at":  record.FirstSeenAt,
			"expires_at":     record.ExpiresAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Err()
	switch {
	case err == nil:
		// 命中未过期记录
		return false, nil

	case errors.Is(err, mongo.ErrNoDocuments):
		// 无匹配记录，upsert 已插入新记录
		return true, nil

	case mongo.IsDuplicateKeyError(err):
		// 同指纹的过期记录仍在（TTL 删除有延迟）：条件刷新，只有一个并发调用者能成功
		result, replaceErr := r.collection.ReplaceOne(ctx,
			bson.M{"fingerprint": fingerprint, "expires_at": bson.M{"$lte": now}},
			record,
		)
		if replaceErr != nil {
			return false, fmt.Errorf("failed to refresh expired dedup record: %w", replaceErr)
		}
		return result.ModifiedCount == 1, nil

	default:
		return false, fmt.Errorf("failed to check fingerprint %q: %w", fingerprint, err)
	}
}

// PurgeExpired 删除所有已过期的记录
func (r *MongoDedupRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lt": now.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired dedup records: %w", err)
	}

	return result.DeletedCount, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoDedupRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// 指纹唯一索引：同一指纹最多一条记录
		{
			Keys:    bson.D{{Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// TTL 索引：到达 expires_at 后由 MongoDB 后台删除，作为周期清理的兜底
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes for dedup_records: %w", err)
	}

	return nil
}
