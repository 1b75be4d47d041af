// Package logging provides structured logging for the logbook service.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("query")
//	log.Info("engine ready", "memory_limit", "1GB")
//
//	// Log with request context
//	logging.WithContext(ctx).Warn("path query failed", "path", p, "error", err)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is the global logger instance.
var Logger *slog.Logger

var initMu sync.Mutex

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	initMu.Lock()
	defer initMu.Unlock()
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// ParseLevel maps a config string to a slog level. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelForStatus picks the access log level of an HTTP status.
func LevelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func base() *slog.Logger {
	initMu.Lock()
	l := Logger
	initMu.Unlock()
	if l == nil {
		Init(slog.LevelInfo, false)
		return Logger
	}
	return l
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return base().With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("units")
//	log.Info("conversions loaded") // Output: time=... level=INFO component=units msg="conversions loaded"
func Component(name string) *slog.Logger {
	return base().With("component", name)
}

// WithContext returns a logger that includes request-scoped values.
func WithContext(ctx context.Context) *slog.Logger {
	logger := base()

	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		logger = logger.With("request_id", requestID)
	}
	if vessel, ok := ctx.Value(contextKeyVesselContext).(string); ok {
		logger = logger.With("context", vessel)
	}

	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyRequestID contextKey = iota
	contextKeyVesselContext
)

// ContextWithRequestID adds a request ID to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// ContextWithVesselContext adds the telemetry context (e.g. vessels.self) for logging.
func ContextWithVesselContext(ctx context.Context, vessel string) context.Context {
	return context.WithValue(ctx, contextKeyVesselContext, vessel)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	base().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	base().Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	base().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	base().Error(msg, args...)
}
