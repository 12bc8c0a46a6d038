package forward

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
)

var (
	// ErrAlreadyRunning 已有迁移任务在运行时启动新任务
	ErrAlreadyRunning = errors.New("migration already running")

	// ErrInvalidRange 迁移范围非法（startID > endID）
	ErrInvalidRange = errors.New("invalid migration range")

	// ErrPreconditionFailed 规则新增前的访问能力预检失败
	ErrPreconditionFailed = errors.New("capability precheck failed")
)

// defaultRateLimitWait 限流错误未携带等待时长时的兜底等待
const defaultRateLimitWait = 3 * time.Second

// rateLimitWait 返回限流错误要求的等待时长
// 非限流错误返回 false；限流但未携带时长时返回兜底值
func rateLimitWait(err error) (time.Duration, bool) {
	var tooMany *bot.TooManyRequestsError
	if !errors.As(err, &tooMany) {
		return 0, false
	}

	wait := time.Duration(tooMany.RetryAfter) * time.Second
	if wait <= 0 {
		wait = defaultRateLimitWait
	}
	return wait, true
}

// isUnreachableError 判断是否为权限/不存在类错误（不可重试，单独上报）
func isUnreachableError(err error) bool {
	return errors.Is(err, bot.ErrorForbidden) ||
		errors.Is(err, bot.ErrorNotFound) ||
		errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorUnauthorized)
}

// isMissingMessageError 判断源消息是否不存在或不可拷贝
// 迁移范围内的空洞（已删除或从未存在的消息 ID）按跳过处理而不是错误
func isMissingMessageError(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) || errors.Is(err, bot.ErrorNotFound)
}

// sleepContext 可取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
