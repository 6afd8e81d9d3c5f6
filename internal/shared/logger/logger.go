package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"firestore-odm/internal/shared/contextkeys"

	"github.com/sirupsen/logrus"
)

const (
	BackendLogrus = "logrus"
	BackendZap    = "zap"

	FormatJSON = "json"
	FormatText = "text"

	timestampFormat = "2006-01-02T15:04:05.000Z07:00"
	textTimestamp   = "2006-01-02 15:04:05"
)

// Logger defines the interface for structured logging operations
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger
}

// contextFields lists the context keys copied onto log entries by WithContext
var contextFields = []struct {
	key   interface{}
	field string
}{
	{contextkeys.RequestIDKey, "request_id"},
	{contextkeys.TransactionIDKey, "transaction_id"},
	{contextkeys.CollectionPathKey, "collection_path"},
	{contextkeys.ComponentKey, "component"},
	{contextkeys.OperationKey, "operation"},
}

// extractContextFields returns the non-empty string values stored under the known keys
func extractContextFields(ctx context.Context) map[string]interface{} {
	fields := make(map[string]interface{})
	if ctx == nil {
		return fields
	}
	for _, cf := range contextFields {
		if val := ctx.Value(cf.key); val != nil {
			if strVal, ok := val.(string); ok && strVal != "" {
				fields[cf.field] = strVal
			}
		}
	}
	return fields
}

// Config selects the backend and output of a logger. Level accepts the usual
// names in any case ("debug", "WARN", "warning"); unknown levels mean info.
type Config struct {
	Backend string
	Level   string
	Format  string
	Output  io.Writer
}

// ConfigFromEnv reads LOG_BACKEND, LOG_LEVEL and LOG_FORMAT
func ConfigFromEnv() Config {
	return Config{
		Backend: os.Getenv("LOG_BACKEND"),
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
	}
}

func (c Config) output() io.Writer {
	if c.Output == nil {
		return os.Stdout
	}
	return c.Output
}

func (c Config) json() bool {
	return strings.EqualFold(c.Format, FormatJSON)
}

// New builds the configured backend. A zap logger that fails to build falls
// back to logrus.
func New(cfg Config) Logger {
	if strings.EqualFold(cfg.Backend, BackendZap) {
		if l, err := NewZapLogger(cfg); err == nil {
			return l
		}
	}
	return NewLogrusLogger(cfg)
}

// LogrusLogger implements Logger on a logrus entry
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger builds a logrus logger for cfg
func NewLogrusLogger(cfg Config) Logger {
	l := logrus.New()
	l.SetLevel(logrusLevel(cfg.Level))
	l.SetOutput(cfg.output())
	if cfg.json() {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: textTimestamp})
	}
	return NewLogrusLoggerFrom(l)
}

// NewLogrusLoggerFrom wraps an existing logrus logger
func NewLogrusLoggerFrom(l *logrus.Logger) Logger {
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (l *LogrusLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *LogrusLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *LogrusLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *LogrusLogger) Error(args ...interface{}) { l.entry.Error(args...) }
func (l *LogrusLogger) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *LogrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *LogrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *LogrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext adds the request, transaction and collection ids found in ctx
func (l *LogrusLogger) WithContext(ctx context.Context) Logger {
	return l.WithFields(extractContextFields(ctx))
}

func (l *LogrusLogger) WithComponent(component string) Logger {
	return &LogrusLogger{entry: l.entry.WithField("component", component)}
}

func logrusLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
