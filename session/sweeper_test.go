package session_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/memsession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// flakyStore 的 SweepExpired 第一次调用失败，之后成功
type flakyStore struct {
	session.Store
	calls atomic.Int32
}

func (f *flakyStore) SweepExpired(ctx context.Context) (int, error) {
	if f.calls.Add(1) == 1 {
		return 0, session.ErrUnavailable("sweep", errors.New("connection refused"))
	}
	return f.Store.SweepExpired(ctx)
}

func TestSweeperSweepOnce(t *testing.T) {
	ctx := context.Background()
	store := memsession.NewStore()
	require.NoError(t, store.Set(ctx, session.NewRecord(session.NewID(), time.Now().Add(20*time.Millisecond))))
	require.NoError(t, store.Set(ctx, session.NewRecord(session.NewID(), time.Now().Add(time.Hour))))

	time.Sleep(30 * time.Millisecond)
	sw := session.NewSweeper(store, session.WithSweeperLogger(logger.Nop()))
	n, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestSweeperRetriesAfterFailure(t *testing.T) {
	store := &flakyStore{Store: memsession.NewStore()}
	sw := session.NewSweeper(store,
		session.WithInterval(10*time.Millisecond),
		session.WithSweeperLogger(logger.Nop()))

	sw.Start(context.Background())
	assert.Eventually(t, func() bool {
		return store.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	sw.Stop()

	// Stop 之后不再有新的清理
	calls := store.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, store.calls.Load())

	// 重复 Stop 是安全的
	sw.Stop()
}

func TestSweeperRunWithErrgroup(t *testing.T) {
	store := &flakyStore{Store: memsession.NewStore()}
	sw := session.NewSweeper(store,
		session.WithInterval(5*time.Millisecond),
		session.WithSweepTimeout(time.Second),
		session.WithSweeperLogger(logger.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sw.Run(gctx)
	})

	time.Sleep(30 * time.Millisecond)
	cancel()
	assert.NoError(t, g.Wait())
	assert.GreaterOrEqual(t, store.calls.Load(), int32(2))
}

func TestSweeperDefaultsInterval(t *testing.T) {
	sw := session.NewSweeper(memsession.NewStore(), session.WithInterval(-1), session.WithSweeperLogger(logger.Nop()))
	sw.Start(context.Background())
	sw.Start(context.Background())
	sw.Stop()
}
