package session

import (
	"errors"
	"fmt"
)

// 存储层只向上暴露这四类错误，调用方使用 errors.Is 判断
var (
	// ErrNotFound 会话不存在或已过期
	ErrNotFound = errors.New("session: not found")
	// ErrBackendUnavailable 存储后端不可用（连接失败、I/O 错误）
	ErrBackendUnavailable = errors.New("session: backend unavailable")
	// ErrCorruptRecord 存储的数据无法解析
	ErrCorruptRecord = errors.New("session: corrupt record")
	// ErrConfiguration 启动阶段的配置错误，应当直接终止进程
	ErrConfiguration = errors.New("session: invalid configuration")
)

// ErrUnavailable 包装一个后端错误，op 为出错的操作名
func ErrUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, err)
}

// ErrCorrupt 包装一个解析失败的记录
func ErrCorrupt(id string, err error) error {
	return fmt.Errorf("%w: id %s: %v", ErrCorruptRecord, id, err)
}

func ErrInvalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsRecoverable 判断错误是否可以通过创建新会话来降级处理
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCorruptRecord) ||
		errors.Is(err, ErrBackendUnavailable)
}
