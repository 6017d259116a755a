// Package retry 提供带指数退避的重试执行器，是所有外呼的统一入口。
package retry

import (
	"context"
	"log/slog"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

const (
	// defaultUnit 是一个退避时间单位。
	defaultUnit = time.Second
	// backoffCap 是单次退避的上限（单位数）。
	backoffCap = 4
)

// Executor 按配置对单个远程操作做有界重试。零值不可用，必须经 New 构造。
type Executor struct {
	maxRetries int
	unit       time.Duration
	sleep      func(context.Context, time.Duration) error
	logger     *slog.Logger
}

// Option 定义可选配置。
type Option func(*Executor)

// WithUnit 覆盖退避时间单位，主要用于测试。
func WithUnit(unit time.Duration) Option {
	return func(e *Executor) {
		if unit > 0 {
			e.unit = unit
		}
	}
}

// WithSleeper 替换休眠实现，测试时可注入以记录退避序列。
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithLogger 指定重试过程的日志输出。
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New 构造执行器。maxRetries 是首次尝试之外允许的额外次数。
func New(maxRetries int, opts ...Option) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	e := &Executor{
		maxRetries: maxRetries,
		unit:       defaultUnit,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Do 执行 fn，失败时按 min(2^attempt, 4) 个时间单位退避后重试。
// 只有错误码注册为可重试的失败（传输失败、远端报错、超时）才会重试；
// 调用前即可判定非法的输入直接返回，不浪费重试额度。
func (e *Executor) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !xerrors.RetryableError(lastErr) {
			return lastErr
		}
		if attempt == e.maxRetries {
			break
		}
		delay := e.backoff(attempt)
		if e.logger != nil {
			e.logger.Debug("重试远程调用",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("error", lastErr.Error()),
			)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "等待重试时被取消")
		}
	}
	return lastErr
}

// backoff 返回第 attempt 次（从 0 计）重试前的等待时长。
func (e *Executor) backoff(attempt int) time.Duration {
	units := 1 << attempt
	if attempt >= 2 || units > backoffCap {
		units = backoffCap
	}
	return time.Duration(units) * e.unit
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
