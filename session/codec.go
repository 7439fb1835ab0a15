package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// envelope 是文件存储和键值存储中使用的序列化格式
type envelope struct {
	ID        string         `json:"id"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Data      map[string]any `json:"data"`
}

// Marshal 把整个记录编码为 JSON
func Marshal(rec *Record) ([]byte, error) {
	return json.Marshal(envelope{
		ID:        rec.ID,
		ExpiresAt: rec.ExpiresAt.UTC(),
		Data:      rec.Values,
	})
}

// Unmarshal 解码 Marshal 的输出，失败时返回 ErrCorruptRecord
func Unmarshal(id string, blob []byte) (*Record, error) {
	var env envelope
	if err := decode(blob, &env); err != nil {
		return nil, ErrCorrupt(id, err)
	}
	if env.ID != id {
		return nil, ErrCorrupt(id, errors.New("id mismatch"))
	}
	if env.ExpiresAt.IsZero() {
		return nil, ErrCorrupt(id, errors.New("missing expiresAt"))
	}
	rec := NewRecord(id, env.ExpiresAt)
	if env.Data != nil {
		rec.Values = normalize(env.Data)
	}
	return rec, nil
}

// MarshalValues 只编码数据部分，关系型存储的 data 列使用这个格式
func MarshalValues(values map[string]any) ([]byte, error) {
	if values == nil {
		values = map[string]any{}
	}
	return json.Marshal(values)
}

func UnmarshalValues(id string, blob []byte) (map[string]any, error) {
	values := map[string]any{}
	if err := decode(blob, &values); err != nil {
		return nil, ErrCorrupt(id, err)
	}
	return normalize(values), nil
}

func decode(blob []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	// 不允许尾部还有其他内容
	if dec.More() {
		return errors.New("trailing data after session payload")
	}
	return nil
}

// normalize 把 json.Number 还原为 int64 或 float64，
// 这样写入 int64 的值读回来仍然相等
func normalize(values map[string]any) map[string]any {
	for k, v := range values {
		values[k] = normalizeValue(v)
	}
	return values
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		return normalize(val)
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	default:
		return v
	}
}
