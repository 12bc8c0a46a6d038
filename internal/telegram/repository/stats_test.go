package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func statsNamespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestMongoStatsRepositoryIncrementForwarded(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := repo.IncrementForwarded(context.Background(), time.Now()); err != nil {
			t.Fatalf("IncrementForwarded failed: %v", err)
		}
	})

	mt.Run("update error", func(mt *mtest.T) {
		repo := &MongoStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock update failure",
		}))

		err := repo.IncrementForwarded(context.Background(), time.Now())
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to increment forward stats") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoStatsRepositoryGetStats(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Now()

	mt.Run("same day keeps today count", func(mt *mtest.T) {
		repo := &MongoStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			statsNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: models.StatsDocID},
				{Key: "total_forwarded", Value: int64(120)},
				{Key: "today_forwarded", Value: int64(7)},
				{Key: "day", Value: now.Format(models.DayLayout)},
				{Key: "updated_at", Value: now.UTC()},
			},
		))

		stats, err := repo.GetStats(context.Background(), now)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.TotalForwarded != 120 {
			t.Fatalf("unexpected total: %d", stats.TotalForwarded)
		}
		if stats.TodayForwarded != 7 {
			t.Fatalf("unexpected today count: %d", stats.TodayForwarded)
		}
	})

	mt.Run("stale day folds today to zero", func(mt *mtest.T) {
		repo := &MongoStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			statsNamespace(mt),
			mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: models.StatsDocID},
				{Key: "total_forwarded", Value: int64(120)},
				{Key: "today_forwarded", Value: int64(7)},
				{Key: "day", Value: now.AddDate(0, 0, -1).Format(models.DayLayout)},
				{Key: "updated_at", Value: now.UTC()},
			},
		))

		stats, err := repo.GetStats(context.Background(), now)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.TotalForwarded != 120 {
			t.Fatalf("unexpected total: %d", stats.TotalForwarded)
		}
		if stats.TodayForwarded != 0 {
			t.Fatalf("expected stale today count folded to 0, got %d", stats.TodayForwarded)
		}
	})

	mt.Run("missing document returns zero counters", func(mt *mtest.T) {
		repo := &MongoStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(
			0,
			statsNamespace(mt),
			mtest.FirstBatch,
		))

		stats, err := repo.GetStats(context.Background(), now)
		if err != nil {
			t.Fatalf("GetStats failed: %v", err)
		}
		if stats.TotalForwarded != 0 || stats.TodayForwarded != 0 {
			t.Fatalf("expected zero counters, got %+v", stats)
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &MongoStatsRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		if _, err := repo.GetStats(context.Background(), now); err == nil {
			t.Fatalf("expected error but got nil")
		}
	})
}
