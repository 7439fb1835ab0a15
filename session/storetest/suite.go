// Package storetest 提供 session.Store 的通用契约测试，
// 每个存储实现都应该在自己的测试中调用 RunStoreSuite。
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/fyer-session/session"
	"github.com/stretchr/testify/suite"
)

// Clock 是一个可以手动推进的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Harness 描述一个待测的存储实例
type Harness struct {
	Store session.Store
	// Now 返回存储使用的当前时间
	Now func() time.Time
	// Advance 推进存储看到的时间，包括后端自身的 TTL 时钟
	Advance func(d time.Duration)
	// NativeTTL 表示后端自行过期数据，SweepExpired 总是返回 0
	NativeTTL bool
}

// StoreSuite 是 Store 契约测试套件
type StoreSuite struct {
	suite.Suite
	NewHarness func(t *testing.T) *Harness

	h   *Harness
	ctx context.Context
}

// RunStoreSuite 对 newHarness 创建的存储运行全部契约测试
func RunStoreSuite(t *testing.T, newHarness func(t *testing.T) *Harness) {
	suite.Run(t, &StoreSuite{NewHarness: newHarness})
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.h = s.NewHarness(s.T())
}

func (s *StoreSuite) TearDownTest() {
	s.NoError(s.h.Store.Close())
}

func (s *StoreSuite) record(ttl time.Duration, values map[string]any) *session.Record {
	rec := session.NewRecord(session.NewID(), s.h.Now().Add(ttl))
	for k, v := range values {
		rec.Values[k] = v
	}
	return rec
}

func (s *StoreSuite) requireSame(want, got *session.Record) {
	s.Require().NotNil(got)
	s.Equal(want.ID, got.ID)
	s.Equal(want.Values, got.Values)
	s.WithinDuration(want.ExpiresAt, got.ExpiresAt, time.Second)
}

func (s *StoreSuite) TestSetThenGet() {
	rec := s.record(time.Hour, map[string]any{
		"num":  int64(1),
		"name": "alice",
		"tags": []any{"a", "b"},
	})
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	got, err := s.h.Store.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.requireSame(rec, got)
}

func (s *StoreSuite) TestGetMissing() {
	_, err := s.h.Store.Get(s.ctx, session.NewID())
	s.ErrorIs(err, session.ErrNotFound)
}

func (s *StoreSuite) TestSetOverwrites() {
	rec := s.record(time.Hour, map[string]any{"num": int64(1)})
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	rec.Values["num"] = int64(2)
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	got, err := s.h.Store.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), got.Values["num"])
}

func (s *StoreSuite) TestStoredCopyIsIsolated() {
	rec := s.record(time.Hour, map[string]any{"num": int64(1)})
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))
	rec.Values["num"] = int64(99)

	got, err := s.h.Store.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), got.Values["num"])
}

func (s *StoreSuite) TestExpiredIsNotFoundBeforeSweep() {
	rec := s.record(2*time.Second, map[string]any{"num": int64(1)})
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	s.h.Advance(3 * time.Second)

	_, err := s.h.Store.Get(s.ctx, rec.ID)
	s.ErrorIs(err, session.ErrNotFound)
}

func (s *StoreSuite) TestDestroy() {
	rec := s.record(time.Hour, nil)
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	s.Require().NoError(s.h.Store.Destroy(s.ctx, rec.ID))
	_, err := s.h.Store.Get(s.ctx, rec.ID)
	s.ErrorIs(err, session.ErrNotFound)

	// 重复删除不是错误
	s.NoError(s.h.Store.Destroy(s.ctx, rec.ID))
	s.NoError(s.h.Store.Destroy(s.ctx, session.NewID()))
}

func (s *StoreSuite) TestTouchExtendsExpiry() {
	rec := s.record(time.Hour, map[string]any{"num": int64(7)})
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	newExpiry := s.h.Now().Add(3 * time.Hour)
	s.Require().NoError(s.h.Store.Touch(s.ctx, rec.ID, newExpiry))

	s.h.Advance(2 * time.Hour)
	got, err := s.h.Store.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(int64(7), got.Values["num"])
	s.WithinDuration(newExpiry, got.ExpiresAt, time.Second)
}

func (s *StoreSuite) TestTouchMissing() {
	err := s.h.Store.Touch(s.ctx, session.NewID(), s.h.Now().Add(time.Hour))
	s.ErrorIs(err, session.ErrNotFound)
}

func (s *StoreSuite) TestSweepExpired() {
	stale := s.record(time.Second, map[string]any{"num": int64(1)})
	fresh := s.record(time.Hour, map[string]any{"num": int64(2)})
	s.Require().NoError(s.h.Store.Set(s.ctx, stale))
	s.Require().NoError(s.h.Store.Set(s.ctx, fresh))

	s.h.Advance(2 * time.Second)

	n, err := s.h.Store.SweepExpired(s.ctx)
	s.Require().NoError(err)
	if s.h.NativeTTL {
		s.Equal(0, n)
	} else {
		s.Equal(1, n)
	}

	_, err = s.h.Store.Get(s.ctx, stale.ID)
	s.ErrorIs(err, session.ErrNotFound)

	got, err := s.h.Store.Get(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.requireSame(fresh, got)

	// 第二次清理没有可删除的记录
	n, err = s.h.Store.SweepExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *StoreSuite) TestSetExpiredRecordRemovesIt() {
	rec := s.record(time.Hour, nil)
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	rec.ExpiresAt = s.h.Now().Add(-time.Second)
	s.Require().NoError(s.h.Store.Set(s.ctx, rec))

	_, err := s.h.Store.Get(s.ctx, rec.ID)
	s.ErrorIs(err, session.ErrNotFound)
}

func (s *StoreSuite) TestConcurrentSetSameID() {
	id := session.NewID()
	expires := s.h.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				rec := session.NewRecord(id, expires)
				rec.Values["writer"] = int64(writer)
				rec.Values["payload"] = fmt.Sprintf("writer-%d-%0256d", writer, i)
				s.NoError(s.h.Store.Set(s.ctx, rec))
			}
		}(w)
	}
	wg.Wait()

	got, err := s.h.Store.Get(s.ctx, id)
	s.Require().NoError(err)
	writer, ok := got.Values["writer"].(int64)
	s.Require().True(ok)
	s.Contains([]int64{0, 1}, writer)
	s.Contains(got.Values["payload"], fmt.Sprintf("writer-%d-", writer))
}

func (s *StoreSuite) TestSweepConcurrentWithWrites() {
	for i := 0; i < 10; i++ {
		s.Require().NoError(s.h.Store.Set(s.ctx, s.record(time.Second, nil)))
	}
	s.h.Advance(2 * time.Second)

	live := make([]*session.Record, 10)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.h.Store.SweepExpired(s.ctx)
		s.NoError(err)
	}()
	go func() {
		defer wg.Done()
		for i := range live {
			live[i] = s.record(time.Hour, map[string]any{"i": int64(i)})
			s.NoError(s.h.Store.Set(s.ctx, live[i]))
		}
	}()
	wg.Wait()

	for _, rec := range live {
		got, err := s.h.Store.Get(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.requireSame(rec, got)
	}
}
