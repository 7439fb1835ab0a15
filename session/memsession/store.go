// Package memsession 提供基于 go-cache 的进程内会话存储。
// 适合开发环境和单实例部署，进程重启后会话全部丢失。
package memsession

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/fyer-session/session"
	"github.com/patrickmn/go-cache"
)

// Store 把记录的副本放在 go-cache 中，过期由 go-cache 的原生 TTL 控制
type Store struct {
	cache *cache.Cache
	now   func() time.Time

	// mu 串行化写操作和清理的第二遍扫描，避免清理删掉刚写入的新记录
	mu sync.Mutex

	// sweepMu 保证同一时间只有一次清理在统计数量
	sweepMu  sync.Mutex
	sweeping atomic.Bool
	sweepAt  atomic.Int64
	removed  atomic.Int64
}

type Option func(*Store)

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore 创建内存存储。go-cache 自带的 janitor 不启用，清理交给 session.Sweeper
func NewStore(opts ...Option) *Store {
	s := &Store{
		cache: cache.New(cache.NoExpiration, 0),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache.OnEvicted(s.onEvicted)
	return s
}

func (s *Store) Get(_ context.Context, id string) (*session.Record, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, session.ErrNotFound
	}
	rec := v.(*session.Record)
	if rec.Expired(s.now()) {
		return nil, session.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) Set(_ context.Context, rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		s.cache.Delete(rec.ID)
		return nil
	}
	s.cache.Set(rec.ID, rec.Clone(), ttl)
	return nil
}

func (s *Store) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(id)
	return nil
}

func (s *Store) Touch(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(id)
	if !ok {
		return session.ErrNotFound
	}
	now := s.now()
	rec := v.(*session.Record).Clone()
	if rec.Expired(now) {
		return session.ErrNotFound
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		s.cache.Delete(id)
		return nil
	}
	rec.ExpiresAt = expiresAt
	// Replace 在键已不存在时返回错误，说明记录在此期间被删除了
	if err := s.cache.Replace(id, rec, ttl); err != nil {
		return session.ErrNotFound
	}
	return nil
}

// SweepExpired 删除 go-cache 中所有已过期的条目并返回数量
func (s *Store) SweepExpired(_ context.Context) (int, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	s.removed.Store(0)
	s.sweepAt.Store(s.now().UnixNano())
	s.sweeping.Store(true)
	s.cache.DeleteExpired()
	s.sweeping.Store(false)

	// go-cache 按自己的时钟判断过期，这里再按记录本身的 expiresAt 补一遍。
	// 持有 mu 时读取和删除之间不会插入 Set，删掉的一定是快照里那条过期记录
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, item := range s.cache.Items() {
		if rec, ok := item.Object.(*session.Record); ok && rec.Expired(now) {
			s.cache.Delete(id)
			s.removed.Add(1)
		}
	}
	return int(s.removed.Load()), nil
}

// onEvicted 只统计清理期间因过期被移除的条目，普通的 Destroy 不计数
func (s *Store) onEvicted(_ string, v interface{}) {
	if !s.sweeping.Load() {
		return
	}
	rec, ok := v.(*session.Record)
	if !ok {
		return
	}
	if rec.Expired(time.Unix(0, s.sweepAt.Load())) {
		s.removed.Add(1)
	}
}

// Len 返回当前条目数量，包括尚未清理的过期条目
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

func (s *Store) Close() error {
	s.cache.Flush()
	return nil
}
