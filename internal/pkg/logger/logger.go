package logger

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// global holds the process zap.Logger. It discards everything until Setup is called.
var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

func current() *zap.Logger {
	return global.Load()
}

const (
	TraceIDKey = "traceid" // Key for trace ID in logs
	SpanIDKey  = "spanid"  // Key for span ID in logs
)

type ctxKey string

const (
	ctxTraceID ctxKey = "traceid" // Context key for trace ID
	ctxSpanID  ctxKey = "spanid"  // Context key for span ID
)

// Setup initializes the global logger. level is one of debug|info|warn|error,
// format is json or console.
func Setup(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = format
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.LevelKey = "severity"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	if format == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	global.Store(l)
	return nil
}

// Replace swaps the global logger and returns a function restoring the previous one.
// Goroutines that are logging concurrently see either logger, never a torn value.
func Replace(l *zap.Logger) func() {
	prev := global.Swap(l)
	return func() { global.Store(prev) }
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

// WithTraceID returns a new context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxTraceID, traceID)
}

// WithSpanID returns a new context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, ctxSpanID, spanID)
}

// TraceIDFromContext extracts the trace ID from context or OpenTelemetry span.
func TraceIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxTraceID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanIDFromContext extracts the span ID from context or OpenTelemetry span.
func SpanIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxSpanID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}

func ctxFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := TraceIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(TraceIDKey, id))
	}
	if id := SpanIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String(SpanIDKey, id))
	}
	return fields
}

// DebugCtx logs a debug message with trace and span IDs from context.
func DebugCtx(ctx context.Context, msg string, attrs ...any) {
	current().Debug(fmt.Sprintf(msg, attrs...), ctxFields(ctx)...)
}

// InfoCtx logs an info message with trace and span IDs from context.
func InfoCtx(ctx context.Context, msg string, attrs ...any) {
	current().Info(fmt.Sprintf(msg, attrs...), ctxFields(ctx)...)
}

// WarnCtx logs a warning message with trace and span IDs from context.
func WarnCtx(ctx context.Context, msg string, attrs ...any) {
	current().Warn(fmt.Sprintf(msg, attrs...), ctxFields(ctx)...)
}

// ErrorCtx logs an error message with trace and span IDs from context.
func ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	current().Error(fmt.Sprintf(msg, attrs...), ctxFields(ctx)...)
}

// Info logs an info message (without context).
func Info(msg string, attrs ...any) {
	current().Info(fmt.Sprintf(msg, attrs...))
}

// Warn logs a warning message (without context).
func Warn(msg string, attrs ...any) {
	current().Warn(fmt.Sprintf(msg, attrs...))
}

// Error logs an error message (without context).
func Error(msg string, attrs ...any) {
	current().Error(fmt.Sprintf(msg, attrs...))
}

// Fatal logs an error message and exits the process.
func Fatal(msg string, attrs ...any) {
	current().Error(fmt.Sprintf(msg, attrs...))
	_ = current().Sync()
	os.Exit(1)
}
