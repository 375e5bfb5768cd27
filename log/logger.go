package log

import (
	"fmt"
	"strings"

	"github.com/kataras/golog"
)

// LogLevel represents logging severity
type LogLevel int

const (
	// LogLevelDebug for detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo for general informational messages
	LogLevelInfo
	// LogLevelWarn for warning messages
	LogLevelWarn
	// LogLevelError for error messages
	LogLevelError
	// LogLevelNone disables all logging
	LogLevelNone
)

// Logger is the leveled, printf-style logger used across the agents.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// Debug does nothing
func (l *NoOpLogger) Debug(format string, v ...any) {}

// Info does nothing
func (l *NoOpLogger) Info(format string, v ...any) {}

// Warn does nothing
func (l *NoOpLogger) Warn(format string, v ...any) {}

// Error does nothing
func (l *NoOpLogger) Error(format string, v ...any) {}

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a LogLevel.
// "disable" and "off" are accepted as aliases of "none".
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "disable", "off":
		return LogLevelNone, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Package-level logger, golog backed at info level.
var defaultLogger Logger = newDefaultGolog(LogLevelInfo)

func newDefaultGolog(level LogLevel) *GologLogger {
	g := golog.New()
	g.SetPrefix("[kbagents] ")
	l := NewGologLogger(g)
	l.SetLevel(level)
	return l
}

// SetDefaultLogger sets the package-level logger
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	defaultLogger = logger
}

// GetDefaultLogger returns the current package-level logger
func GetDefaultLogger() Logger {
	return defaultLogger
}

// SetLogLevel replaces the package-level logger with a golog logger at the given level.
func SetLogLevel(level LogLevel) {
	defaultLogger = newDefaultGolog(level)
}

// Debug logs a debug message using the package-level logger
func Debug(format string, v ...any) {
	defaultLogger.Debug(format, v...)
}

// Info logs an informational message using the package-level logger
func Info(format string, v ...any) {
	defaultLogger.Info(format, v...)
}

// Warn logs a warning message using the package-level logger
func Warn(format string, v ...any) {
	defaultLogger.Warn(format, v...)
}

// Error logs an error message using the package-level logger
func Error(format string, v ...any) {
	defaultLogger.Error(format, v...)
}
