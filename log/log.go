package log

import (
	"io"
	"sync/atomic"
)

var defaultLogger atomic.Value

func init() {
	// 默认向终端输出 text 格式日志
	l, err := NewWithOptions(&Options{Level: "info", Format: "text", Output: "stdout"})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	defaultLogger.Store(holder{l})
}

type holder struct {
	Logger
}

func Default() Logger {
	return defaultLogger.Load().(holder).Logger
}

// SetDefault 替换默认日志器，nil 被忽略
func SetDefault(l Logger) {
	if l != nil {
		defaultLogger.Store(holder{l})
	}
}

// Discard 丢弃所有输出的日志器
func Discard() Logger {
	l, _ := NewWithWriter(io.Discard, &Options{Level: "error"})
	return l
}
