// Package instrument 为 session.Store 提供监控与链路追踪的装饰器
package instrument

import (
	"context"
	"errors"
	"time"

	"github.com/fyerfyer/fyer-session/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome 把存储层错误归类为有限的标签值
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrCorruptRecord):
		return "corrupt"
	case errors.Is(err, session.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// MetricsBuilder 构建 Prometheus 监控装饰器
type MetricsBuilder struct {
	Namespace string
	Subsystem string
	// Backend 作为常量标签区分不同存储
	Backend string
	// Registerer 为空时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// Metrics 持有存储层的指标
type Metrics struct {
	duration *prometheus.HistogramVec
	swept    prometheus.Counter
}

func (b MetricsBuilder) Build() (*Metrics, error) {
	reg := b.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	constLabels := prometheus.Labels{"backend": b.Backend}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Name:        "store_operation_duration_seconds",
		Help:        "Latency of session store operations.",
		ConstLabels: constLabels,
		Buckets:     []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"op", "outcome"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   b.Namespace,
		Subsystem:   b.Subsystem,
		Name:        "store_swept_total",
		Help:        "Number of expired sessions removed by sweeps.",
		ConstLabels: constLabels,
	})

	var err error
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if swept, err = register(reg, swept); err != nil {
		return nil, err
	}
	return &Metrics{duration: duration, swept: swept}, nil
}

// register 注册指标，同名指标已存在时复用已注册的实例
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Middleware 返回记录每个操作耗时与结果的装饰器
func (m *Metrics) Middleware() session.StoreMiddleware {
	return func(next session.Store) session.Store {
		return &metricStore{next: next, m: m}
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op, Outcome(err)).Observe(time.Since(start).Seconds())
}

type metricStore struct {
	next session.Store
	m    *Metrics
}

func (s *metricStore) Get(ctx context.Context, id string) (*session.Record, error) {
	start := time.Now()
	rec, err := s.next.Get(ctx, id)
	s.m.observe("get", start, err)
	return rec, err
}

func (s *metricStore) Set(ctx context.Context, rec *session.Record) error {
	start := time.Now()
	err := s.next.Set(ctx, rec)
	s.m.observe("set", start, err)
	return err
}

func (s *metricStore) Destroy(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Destroy(ctx, id)
	s.m.observe("destroy", start, err)
	return err
}

func (s *metricStore) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	start := time.Now()
	err := s.next.Touch(ctx, id, expiresAt)
	s.m.observe("touch", start, err)
	return err
}

func (s *metricStore) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.next.SweepExpired(ctx)
	s.m.observe("sweep", start, err)
	if n > 0 {
		s.m.swept.Add(float64(n))
	}
	return n, err
}

func (s *metricStore) Close() error {
	return s.next.Close()
}
