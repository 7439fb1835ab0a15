package session

import (
	"encoding/json"
	"maps"
	"time"
)

// Record 是一个会话的完整状态：ID、数据和过期时间。
//
// Record 不是并发安全的，它只在单个请求内被借出使用，
// 请求结束前由 Manager 写回 Store。
type Record struct {
	ID        string
	Values    map[string]any
	ExpiresAt time.Time

	// dirty 在请求期间数据被修改时置为 true
	dirty bool
	// isNew 表示该记录由 Manager 新建，还没有写入过 Store
	isNew bool
}

// NewRecord 创建一个空记录
func NewRecord(id string, expiresAt time.Time) *Record {
	return &Record{
		ID:        id,
		Values:    make(map[string]any),
		ExpiresAt: expiresAt,
	}
}

func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

func (r *Record) Set(key string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	r.Values[key] = value
	r.dirty = true
}

func (r *Record) Delete(key string) {
	if _, ok := r.Values[key]; !ok {
		return
	}
	delete(r.Values, key)
	r.dirty = true
}

// Clear 清空所有数据，记录本身保留
func (r *Record) Clear() {
	if len(r.Values) == 0 {
		return
	}
	r.Values = make(map[string]any)
	r.dirty = true
}

// Int 读取整数字段。JSON 解码后的数字可能是 int64、float64 或 json.Number
func (r *Record) Int(key string) int {
	switch v := r.Values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

func (r *Record) String(key string) string {
	s, _ := r.Values[key].(string)
	return s
}

func (r *Record) Bool(key string) bool {
	b, _ := r.Values[key].(bool)
	return b
}

// Value 按类型读取字段，类型不匹配时返回零值和 false
func Value[T any](r *Record, key string) (T, bool) {
	v, ok := r.Values[key].(T)
	return v, ok
}

// Dirty 返回请求期间数据是否被修改过
func (r *Record) Dirty() bool {
	return r.dirty
}

// IsNew 返回记录是否尚未持久化
func (r *Record) IsNew() bool {
	return r.isNew
}

// Expired 判断记录在 now 时刻是否已过期，expiresAt <= now 即视为过期
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TTL 返回距离过期的剩余时间，已过期时返回 0
func (r *Record) TTL(now time.Time) time.Duration {
	if r.Expired(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Clone 返回一个浅拷贝，Values 中的顶层键值会被复制
func (r *Record) Clone() *Record {
	c := *r
	c.Values = maps.Clone(r.Values)
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	return &c
}

func (r *Record) markClean() {
	r.dirty = false
	r.isNew = false
}
