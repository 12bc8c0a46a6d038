package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func ruleNamespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestMongoRuleRepositoryListRules(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success keeps order", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		now := time.Now().UTC().Truncate(time.Second)

		first := mtest.CreateCursorResponse(1, ruleNamespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "source_chat_id", Value: int64(-100)},
			{Key: "target_chat_ids", Value: bson.A{int64(-200)}},
			{Key: "enabled", Value: true},
			{Key: "created_at", Value: now},
			{Key: "updated_at", Value: now},
		})
		second := mtest.CreateCursorResponse(1, ruleNamespace(mt), mtest.NextBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "source_chat_id", Value: int64(-101)},
			{Key: "target_chat_ids", Value: bson.A{int64(-201), int64(-202)}},
			{Key: "enabled", Value: false},
			{Key: "created_at", Value: now.Add(time.Millisecond)},
			{Key: "updated_at", Value: now},
		})
		killCursors := mtest.CreateCursorResponse(0, ruleNamespace(mt), mtest.NextBatch)
		mt.AddMockResponses(first, second, killCursors)

		rules, err := repo.ListRules(context.Background())
		if err != nil {
			t.Fatalf("ListRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(rules))
		}
		if rules[0].SourceChatID != -100 || rules[1].SourceChatID != -101 {
			t.Fatalf("unexpected order: %d, %d", rules[0].SourceChatID, rules[1].SourceChatID)
		}
		if rules[1].Enabled {
			t.Fatalf("expected second rule disabled")
		}
	})

	mt.Run("find error", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "mock find failure",
		}))

		if _, err := repo.ListRules(context.Background()); err == nil {
			t.Fatalf("expected error but got nil")
		}
	})
}

func TestMongoRuleRepositoryUpsertRule(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		rule := &models.ForwardRule{
			SourceChatID:  -100,
			TargetChatIDs: []int64{-200},
			Enabled:       true,
		}

		if err := repo.UpsertRule(context.Background(), rule); err != nil {
			t.Fatalf("UpsertRule failed: %v", err)
		}
		if rule.CreatedAt.IsZero() || rule.UpdatedAt.IsZero() {
			t.Fatalf("expected timestamps to be set")
		}
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    123,
			Name:    "WriteError",
			Message: "mock write failure",
		}))

		err := repo.UpsertRule(context.Background(), &models.ForwardRule{SourceChatID: -100})
		if err == nil {
			t.Fatalf("expected error but got nil")
		}
		if !strings.Contains(err.Error(), "failed to upsert rule") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestMongoRuleRepositoryDeleteRule(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
		))

		deleted, err := repo.DeleteRule(context.Background(), -100)
		if err != nil {
			t.Fatalf("DeleteRule failed: %v", err)
		}
		if deleted != 1 {
			t.Fatalf("expected 1 deleted, got %d", deleted)
		}
	})

	mt.Run("no match is not an error", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
		))

		deleted, err := repo.DeleteRule(context.Background(), -999)
		if err != nil {
			t.Fatalf("DeleteRule failed: %v", err)
		}
		if deleted != 0 {
			t.Fatalf("expected 0 deleted, got %d", deleted)
		}
	})
}

func TestMongoRuleRepositoryReplaceAll(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
		)

		rules := []*models.ForwardRule{
			{SourceChatID: -100, TargetChatIDs: []int64{-200}, Enabled: true},
			{SourceChatID: -101, TargetChatIDs: []int64{-201}, Enabled: true},
		}

		if err := repo.ReplaceAll(context.Background(), rules); err != nil {
			t.Fatalf("ReplaceAll failed: %v", err)
		}

		// created_at 逐条递增以保留传入顺序
		if !rules[0].CreatedAt.Before(rules[1].CreatedAt) {
			t.Fatalf("expected increasing created_at, got %v and %v",
				rules[0].CreatedAt, rules[1].CreatedAt)
		}
	})

	mt.Run("empty set only clears", func(mt *mtest.T) {
		repo := &MongoRuleRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 5}))

		if err := repo.ReplaceAll(context.Background(), nil); err != nil {
			t.Fatalf("ReplaceAll failed: %v", err)
		}
	})
}
