package instrument

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/memsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "not_found", Outcome(session.ErrNotFound))
	assert.Equal(t, "corrupt", Outcome(session.ErrCorrupt("id", errors.New("x"))))
	assert.Equal(t, "unavailable", Outcome(session.ErrUnavailable("get", errors.New("x"))))
	assert.Equal(t, "canceled", Outcome(context.Canceled))
	assert.Equal(t, "error", Outcome(errors.New("x")))
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := MetricsBuilder{Namespace: "test", Backend: "memory", Registerer: reg}.Build()
	require.NoError(t, err)

	ctx := context.Background()
	store := session.Chain(memsession.NewStore(), m.Middleware())

	rec := session.NewRecord(session.NewID(), time.Now().Add(20*time.Millisecond))
	require.NoError(t, store.Set(ctx, rec))
	_, err = store.Get(ctx, rec.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, session.NewID())
	require.ErrorIs(t, err, session.ErrNotFound)

	time.Sleep(30 * time.Millisecond)
	n, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// set/ok, get/ok, get/not_found, sweep/ok
	assert.Equal(t, 4, testutil.CollectAndCount(m.duration))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.swept))

	// 重复构建复用已注册的指标
	again, err := MetricsBuilder{Namespace: "test", Backend: "memory", Registerer: reg}.Build()
	require.NoError(t, err)
	assert.Same(t, m.duration, again.duration)
}

type recordingTracer struct {
	embedded.Tracer
	mu    sync.Mutex
	names []string
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	return noop.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
}

func TestTracingMiddleware(t *testing.T) {
	tracer := &recordingTracer{}
	store := session.Chain(memsession.NewStore(), TracingBuilder{Tracer: tracer, Backend: "memory"}.Build())
	ctx := context.Background()

	rec := session.NewRecord(session.NewID(), time.Now().Add(time.Minute))
	require.NoError(t, store.Set(ctx, rec))
	_, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NoError(t, store.Touch(ctx, rec.ID, time.Now().Add(time.Hour)))
	require.NoError(t, store.Destroy(ctx, rec.ID))
	_, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.Equal(t, []string{
		"session.store.set",
		"session.store.get",
		"session.store.touch",
		"session.store.destroy",
		"session.store.sweep",
	}, tracer.names)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) session.StoreMiddleware {
		return func(next session.Store) session.Store {
			order = append(order, name)
			return next
		}
	}
	session.Chain(memsession.NewStore(), mw("outer"), mw("inner"))
	assert.Equal(t, []string{"inner", "outer"}, order)
}
