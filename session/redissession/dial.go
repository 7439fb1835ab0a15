package redissession

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/fyerfyer/fyer-session/internal/retry"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/go-redis/redis/v8"
)

// Config 描述如何连接 Redis
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Pool  PoolConfig
	Retry retry.Policy
}

// Addr 返回 host:port，端口默认 6379
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Dial 创建 Redis 客户端和连接池，按重试策略等待 Redis 可用。
// go-redis 在连接断开后会自动重连，这里的重试只覆盖启动阶段
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Host == "" {
		return nil, session.ErrInvalidConfig("redissession: host is required")
	}
	if cfg.DB < 0 {
		return nil, session.ErrInvalidConfig("redissession: invalid db %d", cfg.DB)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	policy := cfg.Retry
	if policy.Attempts == 0 {
		policy = retry.DefaultPolicy()
	}
	err := retry.Do(ctx, policy, "redis", logger.GetDefaultLogger(), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, session.ErrUnavailable("connect", err)
	}

	poolCfg := cfg.Pool
	if poolCfg.MaxActive == 0 {
		poolCfg = DefaultPoolConfig()
	}
	opts = append(opts, withCloser(client.Close))
	return NewStore(NewClientPool(client, poolCfg), opts...), nil
}
