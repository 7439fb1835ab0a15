package logger

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// LogLevel 定义日志级别
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	// Disabled 关闭所有输出，测试中使用
	Disabled
)

// String 返回日志级别的名称
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel 将配置中的字符串转换为日志级别
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	case "disabled", "off", "none":
		return Disabled, nil
	}
	return InfoLevel, fmt.Errorf("logger: unknown level %q", s)
}

// Field 表示结构化日志的字段
type Field struct {
	Key   string
	Value interface{}
}

// Logger 定义日志接口，session 各组件都只依赖这个接口
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// WithContext 从上下文中提取请求ID等信息
	WithContext(ctx context.Context) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields ...Field) Logger

	SetLevel(level LogLevel)
	SetOutput(w io.Writer)
}

// Option 日志配置选项函数
type Option func(*LogConfig)

// LogConfig 日志配置
type LogConfig struct {
	Level      LogLevel
	Output     io.Writer
	TimeFormat string
	Async      bool
	BufferSize int
}

// WithLevel 设置日志级别
func WithLevel(level LogLevel) Option {
	return func(cfg *LogConfig) {
		cfg.Level = level
	}
}

// WithOutput 设置日志输出
func WithOutput(w io.Writer) Option {
	return func(cfg *LogConfig) {
		cfg.Output = w
	}
}

// WithTimeFormat 设置时间格式
func WithTimeFormat(format string) Option {
	return func(cfg *LogConfig) {
		cfg.TimeFormat = format
	}
}

// WithAsync 启用异步日志
func WithAsync(bufferSize int) Option {
	return func(cfg *LogConfig) {
		cfg.Async = true
		if bufferSize > 0 {
			cfg.BufferSize = bufferSize
		}
	}
}

func defaultConfig() *LogConfig {
	return &LogConfig{
		Level:      InfoLevel,
		TimeFormat: time.RFC3339,
		Async:      false,
		BufferSize: 1024,
	}
}

// requestIDKey 是请求ID在 context 中的键
type requestIDKey struct{}

// ContextWithRequestID 把请求ID写入 context，WithContext 会读取它
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 读取请求ID
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// 全局默认日志实例，在 zerolog.go 的 init 中初始化
var defaultLogger Logger

// New 创建一个 zerolog 日志实例
func New(opts ...Option) Logger {
	return NewLogger(opts...)
}

// NewAsync 创建一个异步日志实例
func NewAsync(bufferSize int, opts ...Option) Logger {
	options := append(opts, WithAsync(bufferSize))
	return New(options...)
}

// Nop 返回一个不输出任何内容的日志实例
func Nop() Logger {
	return New(WithLevel(Disabled), WithOutput(io.Discard))
}

func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Duration 创建时长字段，输出为毫秒
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// FieldError 创建错误类型的日志字段
func FieldError(err error) Field {
	return Field{Key: "error", Value: err}
}

func Interface(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

func Debug(msg string, fields ...Field) {
	defaultLogger.Debug(msg, fields...)
}

func Info(msg string, fields ...Field) {
	defaultLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...Field) {
	defaultLogger.Warn(msg, fields...)
}

func Error(msg string, fields ...Field) {
	defaultLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...Field) {
	defaultLogger.Fatal(msg, fields...)
}

// GetDefaultLogger 获取默认日志实例
func GetDefaultLogger() Logger {
	return defaultLogger
}

// SetDefaultLogger 设置默认日志实例
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		return
	}
	defaultLogger = logger
}
