package logging

import (
	"io"
	"os"
	"sync"
)

var (
	globalMu     sync.RWMutex
	globalLogger = DefaultLogger()
)

// SetGlobal replaces the process-wide logger.
func SetGlobal(l *Logger) {
	if l == nil {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// Global returns the process-wide logger.
func Global() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Configure builds a logger from config strings, writing to stderr, and
// installs it as the global logger. Caller info is added at debug level.
func Configure(level, format string) *Logger {
	return ConfigureWriter(level, format, os.Stderr)
}

// ConfigureWriter is Configure with an explicit output.
func ConfigureWriter(level, format string, out io.Writer) *Logger {
	lvl := ParseLevel(level)
	l := New(Config{
		Level:     lvl,
		Format:    ParseFormat(format),
		Output:    out,
		AddCaller: lvl == LevelDebug,
	})
	SetGlobal(l)
	return l
}

// Infof logs to the global logger.
func Infof(msg string, fields map[string]any) {
	Global().Infof(msg, fields)
}

// Warnf logs to the global logger.
func Warnf(msg string, fields map[string]any) {
	Global().Warnf(msg, fields)
}

// Errorf logs to the global logger.
func Errorf(msg string, fields map[string]any) {
	Global().Errorf(msg, fields)
}
