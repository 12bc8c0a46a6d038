package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"forward_bot/internal/app"
	"forward_bot/internal/config"
	"forward_bot/internal/logger"
)

func main() {
	// 初始化 logger
	logger.Init()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	// 初始化应用
	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize app: %v", err)
	}

	// 信号触发优雅退出；/stop 命令复用同一个 cancel
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application.TelegramBot.SetShutdown(cancel)

	logger.L().Info("Forward bot is running. Press Ctrl+C to exit.")
	if err := application.Run(ctx); err != nil {
		logger.L().Errorf("Bot stopped with error: %v", err)
	}

	// 关闭应用
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()

	if err := application.Close(closeCtx); err != nil {
		logger.L().Errorf("Failed to close app: %v", err)
	}

	logger.L().Info("Forward bot exited")
}
