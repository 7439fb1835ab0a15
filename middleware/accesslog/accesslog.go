package accesslog

import (
	"net"
	"net/http"
	"time"

	"github.com/fyerfyer/fyer-session/internal/httpx"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/google/uuid"
)

// RequestIDHeader 请求 ID 的请求头与响应头
const RequestIDHeader = "X-Request-ID"

// Config 访问日志中间件配置
type Config struct {
	// 跳过日志记录的路径
	SkipPaths []string
	// 慢请求阈值
	SlowThreshold time.Duration
	Logger        logger.Logger
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		SkipPaths:     make([]string, 0),
		SlowThreshold: 500 * time.Millisecond,
	}
}

// New 创建一个默认配置的访问日志中间件
func New() func(http.Handler) http.Handler {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig 使用自定义配置创建访问日志中间件。
// 每个请求都会分配请求 ID 并放入 context，后续日志通过 WithContext 带上该 ID
func NewWithConfig(config *Config) func(http.Handler) http.Handler {
	skipMap := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}
	log := config.Logger
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(logger.ContextWithRequestID(r.Context(), id))

			if skipMap[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := httpx.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			l := log.WithContext(r.Context())
			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("client_ip", clientIP(r)),
				logger.String("user_agent", r.UserAgent()),
				logger.Int("status", rec.Status),
				logger.Duration("duration", duration),
				logger.Int("resp_size", rec.Bytes),
			}

			// 根据状态码和响应时间选择日志级别
			switch {
			case rec.Status >= 500:
				l.Error("Request failed with server error", fields...)
			case rec.Status >= 400:
				l.Warn("Request failed with client error", fields...)
			case config.SlowThreshold > 0 && duration > config.SlowThreshold:
				l.Warn("Slow request completed", fields...)
			default:
				l.Info("Request completed", fields...)
			}
		})
	}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
