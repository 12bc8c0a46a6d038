package telegram

import (
	"context"
	"time"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/repository"
)

// MongoDB 的 TTL 索引负责兜底清理；周期性主动清扫让统计与磁盘占用更及时
const purgeInterval = time.Hour

type purgeScheduler struct {
	dedupRepo repository.DedupRepository
	cancel    context.CancelFunc
	done      chan struct{}
}

func newPurgeScheduler(dedupRepo repository.DedupRepository) *purgeScheduler {
	return &purgeScheduler{
		dedupRepo: dedupRepo,
	}
}

func (s *purgeScheduler) start() {
	if s == nil {
		return
	}
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	logger.L().Info("Dedup purge scheduler started")
}

func (s *purgeScheduler) stop() {
	if s == nil {
		return
	}
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	logger.L().Info("Dedup purge scheduler stopped")
}

func (s *purgeScheduler) run(ctx context.Context) {
	defer close(s.done)

	// 启动时先清一次，重启后不留陈旧记录
	s.purge(ctx)

	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *purgeScheduler) purge(parent context.Context) {
	if parent.Err() != nil {
		return
	}

	runCtx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	removed, err := s.dedupRepo.PurgeExpired(runCtx, time.Now())
	if err != nil {
		logger.L().Errorf("Dedup purge failed: %v", err)
		return
	}

	if removed > 0 {
		logger.L().Infof("Dedup purge removed %d expired records", removed)
	}
}
