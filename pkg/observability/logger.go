package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/platinummonkey/hearth/pkg/contextkeys"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LogLevel is the minimum severity a Logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var logrusLevels = map[LogLevel]logrus.Level{
	DebugLevel: logrus.DebugLevel,
	InfoLevel:  logrus.InfoLevel,
	WarnLevel:  logrus.WarnLevel,
	ErrorLevel: logrus.ErrorLevel,
}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "INFO"
	}
	return levelNames[l]
}

// ParseLogLevel accepts debug, info, warn (or warning) and error in any
// case. Anything else is info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger writes JSON lines through logrus. Derived loggers share the
// underlying writer and carry their own fields.
type Logger struct {
	entry *logrus.Entry
	level LogLevel
}

// NewLogger returns a logger writing to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	lvl, ok := logrusLevels[level]
	if !ok {
		lvl = logrus.InfoLevel
	}

	base := logrus.New()
	base.SetOutput(output)
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.JSONFormatter{})
	return &Logger{entry: logrus.NewEntry(base), level: level}
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return NewLogger(ErrorLevel, io.Discard)
}

// Level returns the configured level
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) derive(e *logrus.Entry) *Logger {
	return &Logger{entry: e, level: l.level}
}

// WithField returns a logger carrying key
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.entry.WithField(key, value))
}

// WithFields returns a logger carrying fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.entry.WithFields(logrus.Fields(fields)))
}

// WithError attaches err as the "error" field; a nil err is a no-op
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithTenant tags entries with the tenant being operated on
func (l *Logger) WithTenant(tenant interface{ String() string }) *Logger {
	return l.WithField("tenant_id", tenant.String())
}

// WithTrace adds trace_id and span_id when ctx carries a valid span
func (l *Logger) WithTrace(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.WithFields(map[string]interface{}{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	})
}

func (l *Logger) Debug(message string)                      { l.entry.Debug(message) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Info(message string)                       { l.entry.Info(message) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warn(message string)                       { l.entry.Warn(message) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Error(message string)                      { l.entry.Error(message) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// GetLogger returns the logger stored in ctx, or a fresh stdout logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the request logger of ctx tagged with the request id,
// the authenticated principal and the active span, whichever are present
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if principalID, ok := contextkeys.GetPrincipalID(ctx); ok {
		logger = logger.WithField("principal_id", principalID.String())
	}
	return logger.WithTrace(ctx)
}
