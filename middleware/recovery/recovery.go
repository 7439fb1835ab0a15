package recovery

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/fyerfyer/fyer-session/internal/httpx"
	"github.com/fyerfyer/fyer-session/logger"
)

// Recovery 返回一个恢复 panic 并将其转换为 HTTP 500 错误的中间件。
// panic 发生在会话提交之前时，会话不会被写回
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := httpx.NewStatusRecorder(w)
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				// 获取调用栈
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				lines := strings.Split(string(buf[:n]), "\n")
				if len(lines) > 12 {
					lines = lines[:12]
				}
				log.WithContext(r.Context()).Error("panic recovered",
					logger.String("panic", fmt.Sprint(err)),
					logger.String("stack", strings.Join(lines, "\n")),
					logger.String("path", r.URL.Path))

				if !rec.Written() {
					http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
