package prometheus

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fyerfyer/fyer-session/internal/httpx"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

type MiddlewareBuilder struct {
	NameSpace string
	Name      string
	SubSystem string
	Help      string
	// Registerer 为空时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// Build 返回记录请求耗时（微秒）的中间件。
// path 标签优先使用 chi 的路由模板，避免会话 ID 等路径参数造成标签爆炸
func (m *MiddlewareBuilder) Build() func(http.Handler) http.Handler {
	vec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:      m.Name,
		Help:      m.Help,
		Namespace: m.NameSpace,
		Subsystem: m.SubSystem,
		Objectives: map[float64]float64{
			0.5:   0.05,
			0.9:   0.01,
			0.99:  0.001,
			0.999: 0.0001,
		},
	}, []string{"method", "path", "status"})

	reg := m.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		vec = are.ExistingCollector.(*prometheus.SummaryVec)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			rec := httpx.NewStatusRecorder(w)
			defer func() {
				duration := time.Since(startTime).Microseconds()
				vec.WithLabelValues(r.Method,
					routePattern(r),
					strconv.Itoa(rec.Status)).
					Observe(float64(duration))
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unknown"
}
