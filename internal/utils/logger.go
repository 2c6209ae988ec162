package utils

import (
	"go.uber.org/zap"
)

// Logger provides structured logging with a component prefix.
// It keeps the msg + key/value call style and writes through zap.
type Logger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewLogger creates a logger named after a component, backed by the global zap logger.
func NewLogger(prefix string) *Logger {
	return NewLoggerFrom(zap.L(), prefix)
}

// NewLoggerFrom creates a logger on top of an explicit zap logger.
func NewLoggerFrom(base *zap.Logger, prefix string) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{
		prefix: prefix,
		sugar:  base.Named(prefix).Sugar(),
	}
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, sugar: l.sugar.With(keyvals...)}
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.sugar.Infow(msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.sugar.Errorw(msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.sugar.Warnw(msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.sugar.Debugw(msg, keyvals...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
