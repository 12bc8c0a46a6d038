package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("BOT_OWNER_IDS", "123456789")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB_NAME", "")
	t.Setenv("STAGING_CHANNEL_ID", "")
	t.Setenv("DEDUP_ENABLED", "")
	t.Setenv("DEDUP_EXPIRE_HOURS", "")
	t.Setenv("ADMIN_NOTIFY_ENABLED", "")
	t.Setenv("NOTIFY_ON_START", "")
	t.Setenv("NOTIFY_ON_ERROR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MongoDBName != "forward_bot" {
		t.Fatalf("unexpected default db name: %q", cfg.MongoDBName)
	}
	if !cfg.Dedup.Enabled {
		t.Fatalf("expected dedup enabled by default")
	}
	if cfg.Dedup.ExpireAfter != 24*time.Hour {
		t.Fatalf("unexpected default dedup ttl: %v", cfg.Dedup.ExpireAfter)
	}
	if !cfg.Notify.Enabled || !cfg.Notify.OnStart || !cfg.Notify.OnError {
		t.Fatalf("expected notifications enabled by default: %+v", cfg.Notify)
	}
	if cfg.StagingChannelID != 0 {
		t.Fatalf("expected no staging channel by default, got %d", cfg.StagingChannelID)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("BOT_OWNER_IDS", "111, 222,333")
	t.Setenv("MONGO_DB_NAME", "custom_db")
	t.Setenv("STAGING_CHANNEL_ID", "-1001234567890")
	t.Setenv("DEDUP_ENABLED", "false")
	t.Setenv("DEDUP_EXPIRE_HOURS", "48")
	t.Setenv("NOTIFY_ON_START", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.BotOwnerIDs) != 3 || cfg.BotOwnerIDs[0] != 111 || cfg.BotOwnerIDs[2] != 333 {
		t.Fatalf("unexpected owner IDs: %v", cfg.BotOwnerIDs)
	}
	if cfg.MongoDBName != "custom_db" {
		t.Fatalf("unexpected db name: %q", cfg.MongoDBName)
	}
	if cfg.StagingChannelID != -1001234567890 {
		t.Fatalf("unexpected staging channel: %d", cfg.StagingChannelID)
	}
	if cfg.Dedup.Enabled {
		t.Fatalf("expected dedup disabled")
	}
	if cfg.Dedup.ExpireAfter != 48*time.Hour {
		t.Fatalf("unexpected dedup ttl: %v", cfg.Dedup.ExpireAfter)
	}
	if cfg.Notify.OnStart {
		t.Fatalf("expected start notification disabled")
	}
	if !cfg.Notify.OnError {
		t.Fatalf("expected error notification still enabled")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad owner ID", key: "BOT_OWNER_IDS", value: "abc"},
		{name: "bad staging channel", key: "STAGING_CHANNEL_ID", value: "not-a-number"},
		{name: "bad dedup flag", key: "DEDUP_ENABLED", value: "maybe"},
		{name: "bad dedup hours", key: "DEDUP_EXPIRE_HOURS", value: "1.5"},
		{name: "zero dedup hours", key: "DEDUP_EXPIRE_HOURS", value: "0"},
		{name: "bad notify flag", key: "ADMIN_NOTIFY_ENABLED", value: "yep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TELEGRAM_TOKEN", "test-token")
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestParseOwnerIDs(t *testing.T) {
	ids, err := parseOwnerIDs("1, 2,,3 ")
	if err != nil {
		t.Fatalf("parseOwnerIDs failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected IDs: %v", ids)
	}
}
