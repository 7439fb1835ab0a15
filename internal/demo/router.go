// Package demo 组装演示服务的路由：一个基于会话的计数器
package demo

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/middleware/accesslog"
	"github.com/fyerfyer/fyer-session/middleware/opentracing"
	"github.com/fyerfyer/fyer-session/middleware/prometheus"
	"github.com/fyerfyer/fyer-session/middleware/recovery"
	sessionmw "github.com/fyerfyer/fyer-session/middleware/session"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/cookiepropagator"
	"github.com/go-chi/chi/v5"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Manager    *session.Manager
	Propagator *cookiepropagator.CookiePropagator
	Logger     logger.Logger
	// Registry 为空时不暴露 /metrics，也不记录 HTTP 指标
	Registry *promclient.Registry
}

// NewRouter 返回演示服务的路由：
// GET / 计数加一并返回 {"num": n}，POST /logout 销毁会话，GET /metrics 暴露指标
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	r := chi.NewRouter()
	r.Use(accesslog.NewWithConfig(&accesslog.Config{
		SkipPaths:     []string{"/metrics"},
		SlowThreshold: 500 * time.Millisecond,
		Logger:        log,
	}))
	r.Use(recovery.Recovery(log))
	r.Use((&opentracing.MiddlewareBuilder{}).Build())
	if opts.Registry != nil {
		r.Use((&prometheus.MiddlewareBuilder{
			NameSpace:  "fyer",
			SubSystem:  "http",
			Name:       "response_microseconds",
			Help:       "HTTP response latency in microseconds.",
			Registerer: opts.Registry,
		}).Build())
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(sessionmw.NewMiddlewareBuilder(opts.Manager, opts.Propagator).SetLogger(log).Build())
		r.Get("/", counter)
		r.Post("/logout", logout(log))
	})
	return r
}

type counterResp struct {
	Num int `json:"num"`
}

func counter(w http.ResponseWriter, r *http.Request) {
	h, _ := sessionmw.FromRequest(r)
	rec := h.Record()
	rec.Set("num", rec.Int("num")+1)
	writeJSON(w, http.StatusOK, counterResp{Num: rec.Int("num")})
}

func logout(log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, _ := sessionmw.FromRequest(r)
		if err := h.Destroy(); err != nil {
			// cookie 仍然会被清除，记录会在过期后由清理任务回收
			log.WithContext(r.Context()).Warn("failed to destroy session", logger.FieldError(err))
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
