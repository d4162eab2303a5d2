package pkg

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

// Component identifiers used across the device stack and the NCM function.
const (
	ComponentDevice   Component = "device"
	ComponentStack    Component = "stack"
	ComponentHAL      Component = "hal"
	ComponentEndpoint Component = "endpoint"
	ComponentControl  Component = "control"
	ComponentNCM      Component = "ncm"
	ComponentHost     Component = "host"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

var (
	// DefaultLogger is the logger used by every Log* helper.
	DefaultLogger *slog.Logger

	logLevel = new(slog.LevelVar)

	// logMutex protects DefaultLogger replacement.
	logMutex sync.RWMutex
)

func init() {
	logLevel.Set(slog.LevelWarn)
	DefaultLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogLevel sets the minimum level for all stack logging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() slog.Level {
	return logLevel.Level()
}

// ParseLogLevel converts a level name (debug, info, warn, error) to a
// slog.Level. Unknown names yield ErrInvalidParameter.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, ErrInvalidParameter
	}
}

// SetLogger replaces the default logger.
func SetLogger(logger *slog.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat rebuilds the default logger on os.Stderr in the given format,
// keeping the shared level.
func SetLogFormat(format LogFormat) {
	SetLogger(newLogger(os.Stderr, format, nil))
}

// NewLogger creates a text logger writing to w.
func NewLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return newLogger(w, LogFormatText, opts)
}

// NewJSONLogger creates a JSON logger writing to w.
func NewJSONLogger(w io.Writer, opts *slog.HandlerOptions) *slog.Logger {
	return newLogger(w, LogFormatJSON, opts)
}

func newLogger(w io.Writer, format LogFormat, opts *slog.HandlerOptions) *slog.Logger {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: logLevel}
	}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func logger() *slog.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

// LogDebug logs a debug message tagged with component.
func LogDebug(component Component, msg string, args ...any) {
	logger().Debug(msg, append([]any{"component", string(component)}, args...)...)
}

// LogInfo logs an info message tagged with component.
func LogInfo(component Component, msg string, args ...any) {
	logger().Info(msg, append([]any{"component", string(component)}, args...)...)
}

// LogWarn logs a warning tagged with component.
func LogWarn(component Component, msg string, args ...any) {
	logger().Warn(msg, append([]any{"component", string(component)}, args...)...)
}

// LogError logs an error tagged with component.
func LogError(component Component, msg string, args ...any) {
	logger().Error(msg, append([]any{"component", string(component)}, args...)...)
}
