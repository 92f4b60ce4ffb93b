package logger

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
)

func init() {
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
}

// Logr exposes l to libraries that log through logr, such as the
// OpenTelemetry SDK. V(0) logs at info, V(1) at debug and V(2) at trace.
func (l *Logger) Logr() logr.Logger {
	zl := l.zl
	return zerologr.New(&zl)
}
