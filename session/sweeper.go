package session

import (
	"context"
	"sync"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
)

// DefaultSweepInterval 默认清理间隔
const DefaultSweepInterval = 15 * time.Minute

// Sweeper 在后台定期调用 Store.SweepExpired 清理过期会话。
// 一次清理失败只记录日志，在下一个周期重试
type Sweeper struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	log      logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type SweeperOption func(*Sweeper)

// WithInterval 设置清理间隔
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

// WithSweepTimeout 设置单次清理的超时时间，0 表示不限制
func WithSweepTimeout(timeout time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.timeout = timeout
	}
}

func WithSweeperLogger(l logger.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.log = l
	}
}

func NewSweeper(store Store, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		log:      logger.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	s.log = s.log.WithField("component", "session.sweeper")
	return s
}

// SweepOnce 执行一次清理
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := s.store.SweepExpired(ctx)
	if err != nil {
		s.log.Error("error cleaning up expired sessions",
			logger.FieldError(err),
			logger.Duration("took", time.Since(start)))
		return n, err
	}
	if n > 0 {
		s.log.Info("expired sessions removed",
			logger.Int("removed", n),
			logger.Duration("took", time.Since(start)))
	} else {
		s.log.Debug("no expired sessions")
	}
	return n, nil
}

// Run 阻塞运行清理循环，直到 ctx 被取消。可以直接交给 errgroup 管理
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", logger.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			// 错误已经记录，下个周期重试
			_, _ = s.SweepOnce(ctx)
		}
	}
}

// Start 在新的 goroutine 中运行清理循环，重复调用无效
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = s.Run(ctx)
	}(s.done)
}

// Stop 停止清理循环并等待其退出
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
