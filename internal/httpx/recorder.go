// Package httpx 包含中间件之间共享的 HTTP 辅助类型
package httpx

import "net/http"

// StatusRecorder 记录响应状态码与写出的字节数
type StatusRecorder struct {
	http.ResponseWriter
	Status int
	Bytes  int
	wrote  bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

func (r *StatusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.Status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	n, err := r.ResponseWriter.Write(b)
	r.Bytes += n
	return n, err
}

// Written 返回响应头是否已经写出
func (r *StatusRecorder) Written() bool {
	return r.wrote
}

func (r *StatusRecorder) Flush() {
	r.wrote = true
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *StatusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
