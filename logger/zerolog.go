package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// zerologLogger 使用 zerolog 实现的日志记录器
type zerologLogger struct {
	zlog  zerolog.Logger
	level LogLevel
	async bool
	mu    *sync.Mutex
	ch    chan *logEvent
	wg    *sync.WaitGroup
}

// logEvent 异步日志事件
type logEvent struct {
	level   LogLevel
	message string
	fields  []Field
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond
	defaultLogger = NewLogger()
}

// NewLogger 创建一个新的 zerolog 日志记录器
func NewLogger(opts ...Option) Logger {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}

	zlog := zerolog.New(output).With().Timestamp().Logger()
	setZerologLevel(&zlog, cfg.Level)

	l := &zerologLogger{
		zlog:  zlog,
		level: cfg.Level,
		async: cfg.Async,
		mu:    &sync.Mutex{},
		wg:    &sync.WaitGroup{},
	}

	if cfg.Async {
		l.ch = make(chan *logEvent, cfg.BufferSize)
		l.startWorker()
	}
	return l
}

func (l *zerologLogger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for evt := range l.ch {
			l.write(evt.level, evt.message, evt.fields)
		}
	}()
}

// Close 等待所有异步日志写入完成
func (l *zerologLogger) Close() {
	if l.async && l.ch != nil {
		close(l.ch)
		l.wg.Wait()
	}
}

func (l *zerologLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }
func (l *zerologLogger) Fatal(msg string, fields ...Field) { l.log(FatalLevel, msg, fields) }

func (l *zerologLogger) log(level LogLevel, msg string, fields []Field) {
	if l.level > level {
		return
	}
	// Fatal 会退出进程，必须同步写出
	if l.async && level != FatalLevel {
		l.sendAsync(level, msg, fields)
		return
	}
	l.write(level, msg, fields)
}

func (l *zerologLogger) write(level LogLevel, msg string, fields []Field) {
	var event *zerolog.Event
	switch level {
	case DebugLevel:
		event = l.zlog.Debug()
	case WarnLevel:
		event = l.zlog.Warn()
	case ErrorLevel:
		event = l.zlog.Error()
	case FatalLevel:
		event = l.zlog.Fatal()
	default:
		event = l.zlog.Info()
	}
	// 级别被 zerolog 过滤时 event 为 nil
	if event == nil {
		return
	}
	for _, field := range fields {
		addFieldToEvent(event, field)
	}
	event.Msg(msg)
}

func (l *zerologLogger) sendAsync(level LogLevel, msg string, fields []Field) {
	evt := &logEvent{
		level:   level,
		message: msg,
		fields:  make([]Field, len(fields)),
	}
	copy(evt.fields, fields)

	select {
	case l.ch <- evt:
	default:
		l.zlog.Warn().Msg("Async log channel is full, dropping log message")
	}
}

func (l *zerologLogger) derive(zlog zerolog.Logger) *zerologLogger {
	return &zerologLogger{
		zlog:  zlog,
		level: l.level,
		async: l.async,
		mu:    l.mu,
		ch:    l.ch,
		wg:    l.wg,
	}
}

// WithContext 把请求ID附加到日志
func (l *zerologLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if reqID, ok := RequestIDFromContext(ctx); ok {
		return l.derive(l.zlog.With().Str("request_id", reqID).Logger())
	}
	return l
}

func (l *zerologLogger) WithField(key string, value interface{}) Logger {
	return l.derive(addFieldToContext(l.zlog.With(), Field{Key: key, Value: value}).Logger())
}

func (l *zerologLogger) WithFields(fields ...Field) Logger {
	ctx := l.zlog.With()
	for _, field := range fields {
		ctx = addFieldToContext(ctx, field)
	}
	return l.derive(ctx.Logger())
}

func (l *zerologLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	setZerologLevel(&l.zlog, level)
}

func (l *zerologLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zlog = l.zlog.Output(w)
}

func setZerologLevel(zlog *zerolog.Logger, level LogLevel) {
	var zerologLevel zerolog.Level
	switch level {
	case DebugLevel:
		zerologLevel = zerolog.DebugLevel
	case InfoLevel:
		zerologLevel = zerolog.InfoLevel
	case WarnLevel:
		zerologLevel = zerolog.WarnLevel
	case ErrorLevel:
		zerologLevel = zerolog.ErrorLevel
	case FatalLevel:
		zerologLevel = zerolog.FatalLevel
	case Disabled:
		zerologLevel = zerolog.Disabled
	default:
		zerologLevel = zerolog.InfoLevel
	}
	*zlog = zlog.Level(zerologLevel)
}

func addFieldToEvent(event *zerolog.Event, field Field) {
	switch v := field.Value.(type) {
	case string:
		event.Str(field.Key, v)
	case int:
		event.Int(field.Key, v)
	case int64:
		event.Int64(field.Key, v)
	case float64:
		event.Float64(field.Key, v)
	case bool:
		event.Bool(field.Key, v)
	case time.Time:
		event.Time(field.Key, v)
	case time.Duration:
		event.Dur(field.Key, v)
	case error:
		event.Err(v)
	default:
		event.Interface(field.Key, v)
	}
}

func addFieldToContext(ctx zerolog.Context, field Field) zerolog.Context {
	switch v := field.Value.(type) {
	case string:
		return ctx.Str(field.Key, v)
	case int:
		return ctx.Int(field.Key, v)
	case int64:
		return ctx.Int64(field.Key, v)
	case float64:
		return ctx.Float64(field.Key, v)
	case bool:
		return ctx.Bool(field.Key, v)
	case time.Time:
		return ctx.Time(field.Key, v)
	case time.Duration:
		return ctx.Dur(field.Key, v)
	case error:
		return ctx.Err(v)
	default:
		return ctx.Interface(field.Key, v)
	}
}
