package log

import "context"

// Logger 日志接口
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

var defaultLogger Logger

func init() {
	l, err := NewSLogWithOptions(&Options{Level: "info", Format: "text"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger = l
}

// Default 返回向标准输出写 text 格式日志的默认日志器
func Default() Logger {
	return defaultLogger
}

// NewLoggerWithOptions options 为 nil 时返回默认日志器
func NewLoggerWithOptions(options *Options) (Logger, error) {
	if options == nil {
		return Default(), nil
	}
	return NewSLogWithOptions(options)
}
