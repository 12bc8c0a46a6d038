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

// MongoStatsRepository 基于 MongoDB 的转发统计仓储（单文档计数器）
type MongoStatsRepository struct {
	collection *mongo.Collection
}

// NewStatsRepository 创建转发统计仓储实例
func NewStatsRepository(db *mongo.Database) StatsRepository {
	return &MongoStatsRepository{
		collection: db.Collection("forward_stats"),
	}
}

// IncrementForwarded 累加总计数与今日计数
// 使用聚合管道更新：日期标记不一致时今日计数从 1 重新开始，整个判断与累加为单文档原子操作
func (r *MongoStatsRepository) IncrementForwarded(ctx context.Context, now time.Time) error {
	day := now.Format(models.DayLayout)

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"total_forwarded": bson.M{
				"$add": bson.A{bson.M{"$ifNull": bson.A{"$total_forwarded", 0}}, 1},
			},
			"today_forwarded": bson.M{
				"$cond": bson.A{
					bson.M{"$eq": bson.A{"$day", day}},
					bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$today_forwarded", 0}}, 1}},
					1,
				},
			},
			"day":        day,
			"updated_at": "$$NOW",
		}}},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateByID(ctx, models.StatsDocID, pipeline, opts); err != nil {
		return fmt.Errorf("failed to increment forward stats: %w", err)
	}

	return nil
}

// GetStats 读取统计计数器
// 今日计数按 now 所在日期折算：存储的日期标记不一致时返回 0
func (r *MongoStatsRepository) GetStats(ctx context.Context, now time.Time) (*models.ForwardStats, error) {
	var stats models.ForwardStats

	err := r.collection.FindOne(ctx, bson.M{"_id": models.StatsDocID}).Decode(&stats)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.ForwardStats{
			ID:  models.StatsDocID,
			Day: now.Format(models.DayLayout),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forward stats: %w", err)
	}

	stats.TodayForwarded = stats.TodayCount(now)
	stats.Day = now.Format(models.DayLayout)
	return &stats, nil
}
