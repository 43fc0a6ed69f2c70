// Package logging provides structured logging with trace-ID and audit-ID
// propagation through context.Context, so every log line emitted while
// servicing a request or running an audit can be correlated back to it.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context keys owned by this package.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	AuditIDKey ContextKey = "audit_id"
)

// Logger wraps logrus.Logger with a fixed service name.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for service with the given level ("debug", "info",
// ...) and format ("json" or "text").
func New(service, level, format string) *Logger {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, service: service}
}

// NewFromEnv builds a Logger from LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json when unset.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns a log entry enriched with any trace/audit ID found
// in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := TraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if auditID := AuditID(ctx); auditID != "" {
		entry = entry.WithField("audit_id", auditID)
	}
	return entry
}

// WithFields returns a log entry with custom fields plus the service name.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns a log entry carrying an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, d time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": status,
		"duration_ms": d.Milliseconds(),
	}).Info("http request")
}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string { return uuid.New().String() }

// WithTraceID stashes a trace ID in ctx.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

// TraceID retrieves the trace ID from ctx, or "" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithAuditID stashes an audit ID in ctx.
func WithAuditID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AuditIDKey, id)
}

// AuditID retrieves the audit ID from ctx, or "" if absent.
func AuditID(ctx context.Context) string {
	if v, ok := ctx.Value(AuditIDKey).(string); ok {
		return v
	}
	return ""
}
