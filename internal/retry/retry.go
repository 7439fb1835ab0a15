// Package retry 封装后端连接时的指数退避重试
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fyerfyer/fyer-session/logger"
)

// Policy 描述连接重试策略
type Policy struct {
	// Attempts 最多尝试的次数，包括第一次，小于 1 时按 1 处理
	Attempts int
	// InitialInterval 第一次重试前的等待时间
	InitialInterval time.Duration
	// MaxInterval 单次等待的上限
	MaxInterval time.Duration
}

// DefaultPolicy 默认最多尝试 5 次，等待时间从 200ms 开始翻倍，上限 5s
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// 次数由 WithMaxRetries 控制，不限制总时长
	eb.MaxElapsedTime = 0

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do 执行 op 直到成功、次数用尽或 ctx 被取消，返回最后一次的错误。
// op 返回 Permanent 包装的错误时立即停止
func Do(ctx context.Context, p Policy, name string, log logger.Logger, op func(ctx context.Context) error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op(ctx)
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn("backend connection failed, retrying",
			logger.String("backend", name),
			logger.Int("attempt", attempt),
			logger.Duration("wait", wait),
			logger.FieldError(err))
	})
}

// Permanent 标记一个不应重试的错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}
