package session

import (
	"context"
	"time"
)

// Store 是会话存储的统一契约，文件、关系型数据库和键值缓存各有一个实现。
//
// 所有实现都只返回 ErrNotFound、ErrBackendUnavailable、ErrCorruptRecord
// 这几类错误（可能经过包装）。同一个 id 的并发 Set 以最后一次写入为准，
// 但不会出现半写的数据。
type Store interface {
	// Get 返回 id 对应的记录。记录不存在或已过期时返回 ErrNotFound，
	// 即使清理任务还没有运行
	Get(ctx context.Context, id string) (*Record, error)
	// Set 插入或覆盖记录
	Set(ctx context.Context, rec *Record) error
	// Destroy 删除记录，id 不存在时不返回错误
	Destroy(ctx context.Context, id string) error
	// Touch 只更新过期时间，不重写数据
	Touch(ctx context.Context, id string, expiresAt time.Time) error
	// SweepExpired 删除所有 expiresAt <= now 的记录，返回删除的数量
	SweepExpired(ctx context.Context) (int, error)
	// Close 释放后端资源
	Close() error
}

// StoreMiddleware 包装一个 Store，用于添加监控、追踪等横切逻辑
type StoreMiddleware func(next Store) Store

// Chain 按顺序应用中间件，第一个中间件位于最外层
func Chain(store Store, mws ...StoreMiddleware) Store {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
