// Package observability provides the structured logging, distributed
// tracing, Prometheus metrics, and event collector layers that sit around
// the orchestration core, grounded on an internal/observability/*.go
// package layout.
package observability

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// ContextKey is the type used for logging/tracing context keys.
type ContextKey string

const (
	// TraceIDKey is the context key for the request's trace_id.
	TraceIDKey ContextKey = "trace_id"

	// ProfileKey is the context key for the active profile.
	ProfileKey ContextKey = "profile"

	// RequestIDKey is the context key for the request_id.
	RequestIDKey ContextKey = "request_id"

	// SessionIDKey is the context key for session_id.
	SessionIDKey ContextKey = "session_id"
)

// WithTraceID returns a context carrying traceID for logging/tracing.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace_id from ctx, or "" if unset.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

// WithProfile returns a context carrying the active profile.
func WithProfile(ctx context.Context, profile string) context.Context {
	return context.WithValue(ctx, ProfileKey, profile)
}

// GetProfile retrieves the profile from ctx, or "" if unset.
func GetProfile(ctx context.Context) string {
	v, _ := ctx.Value(ProfileKey).(string)
	return v
}

// GetSessionID retrieves the session_id from ctx, or "" if unset.
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
	return v
}

// GetSpanID retrieves a span_id placed in ctx by the tracing layer, or "".
func GetSpanID(ctx context.Context) string {
	v, _ := ctx.Value(spanIDKey{}).(string)
	return v
}

type spanIDKey struct{}

// WithSpanID returns a context carrying a span id for log correlation.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey{}, spanID)
}

// LogConfig configures Logger. Zero-value fields default the same way an
// observability package typically does: level info, JSON format, stdout.
type LogConfig struct {
	Level          string
	Format         string
	Output         *os.File
	AddSource      bool
	RedactPatterns []string
}

// DefaultRedactPatterns cover the same categories a
// logging.go typically does: API keys, bearer tokens, generic secrets, and JWTs. This is a
// regex-over-rendered-text mechanism, deliberately separate from the
// collector's key-substring, structure-preserving redaction (§4.5) — the
// two serve different layers and are not meant to replace one another.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// Logger wraps log/slog with trace-scoped fields and regex-based redaction
// of rendered log text.
type Logger struct {
	logger  *slog.Logger
	config  LogConfig
	redacts []*regexp.Regexp
}

// NewLogger builds a Logger per config, defaulting level=info,
// format=json, output=stdout when unset.
func NewLogger(config LogConfig) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.Level == "" {
		config.Level = "info"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	var level slog.Level
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: config.AddSource}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	patterns := append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), config: config, redacts: redacts}
}

// With returns a derived Logger with the given key=value pairs attached to
// every subsequent record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), config: l.config, redacts: l.redacts}
}

func (l *Logger) contextFields(ctx context.Context) []any {
	var fields []any
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if sessionID := GetSessionID(ctx); sessionID != "" {
		fields = append(fields, "session_id", sessionID)
	}
	if profile := GetProfile(ctx); profile != "" {
		fields = append(fields, "profile", profile)
	}
	return fields
}

func (l *Logger) redact(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			out[i] = l.redactString(s)
			continue
		}
		out[i] = a
	}
	return out
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)
	all := append(l.contextFields(ctx), l.redact(args)...)
	l.logger.Log(ctx, level, msg, all...)
}

// Debug logs at debug level with trace-scoped fields attached.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelDebug, msg, args...) }

// Info logs at info level with trace-scoped fields attached.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelInfo, msg, args...) }

// Warn logs at warn level with trace-scoped fields attached.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelWarn, msg, args...) }

// Error logs at error level with trace-scoped fields attached.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelError, msg, args...) }
