package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	idBytes = 32
	// maxIDLength 限制从 cookie 读到的 id 长度
	maxIDLength = 128
)

// NewID 生成一个 256 位随机的会话 ID，使用 base64url 编码（无填充）
func NewID() string {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("session: failed to read random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ValidID 检查 id 是否只包含 base64url 字符。
// 文件存储把 id 直接作为文件名，所以这里同时防止了路径穿越
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
