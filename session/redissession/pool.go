package redissession

import (
	"context"
	"time"

	"github.com/fyerfyer/fyer-kit/pool"
	"github.com/go-redis/redis/v8"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdle     int
	MaxActive   int
	MaxIdleTime time.Duration
	WaitTimeout time.Duration
	DialTimeout time.Duration
}

// DefaultPoolConfig 返回默认的连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdle:     10,
		MaxActive:   100,
		MaxIdleTime: 5 * time.Minute,
		WaitTimeout: 3 * time.Second,
		DialTimeout: 5 * time.Second,
	}
}

// clientConn 实现 pool.Connection，所有连接共享同一个 *redis.Client，
// 真正的 TCP 连接由 go-redis 自身管理
type clientConn struct {
	client *redis.Client
}

func (c *clientConn) Close() error {
	return nil
}

func (c *clientConn) Raw() interface{} {
	return c.client
}

func (c *clientConn) IsAlive() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

func (c *clientConn) ResetState() error {
	return nil
}

// clientFactory 为连接池创建连接，创建前先确认 Redis 可达
type clientFactory struct {
	client *redis.Client
}

func (f *clientFactory) Create(ctx context.Context) (pool.Connection, error) {
	if err := f.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &clientConn{client: f.client}, nil
}

// NewClientPool 基于一个 go-redis 客户端创建 fyer-kit 连接池
func NewClientPool(client *redis.Client, cfg PoolConfig) pool.Pool {
	return pool.NewPool(&clientFactory{client: client},
		pool.WithMaxIdle(cfg.MaxIdle),
		pool.WithMaxActive(cfg.MaxActive),
		pool.WithMaxIdleTime(cfg.MaxIdleTime),
		pool.WithWaitTimeout(cfg.WaitTimeout),
		pool.WithDialTimeout(cfg.DialTimeout),
	)
}
