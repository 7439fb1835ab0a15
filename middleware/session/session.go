// Package session 提供基于 net/http 的会话中间件。
//
// 中间件在请求进入时解析会话，在响应头写出之前提交会话，
// 保证 Set-Cookie 总能随响应一起发送。
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/cookiepropagator"
)

type MiddlewareBuilder struct {
	manager    *session.Manager
	propagator *cookiepropagator.CookiePropagator
	log        logger.Logger
}

// NewMiddlewareBuilder 创建会话中间件，propagator 为空时使用与 Manager 同名的未签名 cookie
func NewMiddlewareBuilder(m *session.Manager, p *cookiepropagator.CookiePropagator) *MiddlewareBuilder {
	if p == nil {
		p = cookiepropagator.NewCookiePropagator(m.CookieName())
	}
	return &MiddlewareBuilder{
		manager:    m,
		propagator: p,
		log:        logger.GetDefaultLogger(),
	}
}

func (b *MiddlewareBuilder) SetLogger(l logger.Logger) *MiddlewareBuilder {
	if l != nil {
		b.log = l
	}
	return b
}

func (b *MiddlewareBuilder) Build() func(http.Handler) http.Handler {
	log := b.log.WithField("component", "session.middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := b.propagator.Extract(r)
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				log.WithContext(r.Context()).Debug("rejecting session cookie", logger.FieldError(err))
			}
			rec := b.manager.Resolve(r.Context(), id)

			h := &Handle{
				manager:    b.manager,
				propagator: b.propagator,
				log:        log,
				rec:        rec,
				w:          w,
			}
			ctx := context.WithValue(session.NewContext(r.Context(), rec), handleKey{}, h)
			h.ctx = ctx
			r = r.WithContext(ctx)

			next.ServeHTTP(&responseWriter{ResponseWriter: w, h: h}, r)
			// 处理函数没有写任何内容时在这里提交
			h.commit()
		})
	}
}

type handleKey struct{}

// FromRequest 返回当前请求的会话句柄
func FromRequest(r *http.Request) (*Handle, bool) {
	h, ok := r.Context().Value(handleKey{}).(*Handle)
	return h, ok
}

// Handle 是单个请求内的会话句柄
type Handle struct {
	manager    *session.Manager
	propagator *cookiepropagator.CookiePropagator
	log        logger.Logger
	ctx        context.Context
	w          http.ResponseWriter

	mu        sync.Mutex
	rec       *session.Record
	mutated   bool
	destroyed *session.SetCookieDirective
	committed bool
}

// Record 返回当前会话。调用 Regenerate 之后 session.FromContext 中的仍是旧记录，应使用该方法
func (h *Handle) Record() *session.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rec
}

// MarkModified 在直接修改 Values 中的引用类型数据后调用，强制提交时写回
func (h *Handle) MarkModified() {
	h.mu.Lock()
	h.mutated = true
	h.mu.Unlock()
}

// Destroy 删除会话，响应中会携带清除 cookie 的指令
func (h *Handle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, err := h.manager.Destroy(h.ctx, h.rec.ID)
	h.destroyed = d
	return err
}

// Regenerate 更换会话 ID 并保留数据
func (h *Handle) Regenerate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	next, err := h.manager.Regenerate(h.ctx, h.rec)
	h.rec = next
	h.destroyed = nil
	return err
}

func (h *Handle) commit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.committed {
		return
	}
	h.committed = true

	log := h.log.WithContext(h.ctx)
	if err := h.ctx.Err(); err != nil {
		log.Debug("request aborted, session not committed", logger.FieldError(err))
		return
	}
	if h.destroyed != nil {
		_ = h.propagator.Insert(h.destroyed, h.w)
		return
	}
	d, err := h.manager.Commit(h.ctx, h.rec, h.mutated)
	if err != nil {
		log.Error("failed to commit session", logger.FieldError(err))
		return
	}
	_ = h.propagator.Insert(d, h.w)
}

// responseWriter 在第一次写响应头之前提交会话
type responseWriter struct {
	http.ResponseWriter
	h *Handle
}

func (w *responseWriter) WriteHeader(code int) {
	w.h.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.h.commit()
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Flush() {
	w.h.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
