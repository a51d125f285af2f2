package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy 有界指数退避
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Retry 执行fn直到成功、重试次数耗尽或错误被判定为不可重试。
// retryable为nil时所有错误都重试。
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", policy.MaxAttempts, lastErr)
}

// WaitUntil 以固定间隔轮询cond直到其返回true、出错或超时。
// 多处脚本式的"睡N秒再查"都收敛到这一个原语上。
func WaitUntil(ctx context.Context, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := cond(waitCtx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("condition not met within %s: %w", timeout, waitCtx.Err())
		case <-ticker.C:
		}
	}
}
