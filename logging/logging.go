package logging

import (
	"context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// Loggers for packages that do not receive their own logger via constructor.
var (
	// AppLogger is the main app.App logger.
	AppLogger *zap.Logger
	// DBLogger is used for stuff regarding the database connection.
	DBLogger *zap.Logger
	// WebServerLogger is used for all stuff regarding web servers.
	WebServerLogger *zap.Logger
	// WSLogger is used for all stuff regarding websocket connections.
	WSLogger *zap.Logger
)

func init() {
	ApplyToGlobalLoggers(zap.NewNop())
}

// ApplyToGlobalLoggers sets all global loggers based on the given root logger.
func ApplyToGlobalLoggers(logger *zap.Logger) {
	AppLogger = logger.Named("app")
	DBLogger = logger.Named("db")
	WebServerLogger = logger.Named("web-server")
	WSLogger = logger.Named("ws")
}

// LogEntry is a single log entry that was forwarded by the core created via
// NewNoPublishOmitCore.
type LogEntry struct {
	// Time of the log entry.
	Time time.Time
	// Message is the log message.
	Message string
	// Level is the log level.
	Level zapcore.Level
	// LoggerName is the name of the logger that created the entry.
	LoggerName string
	// Fields holds all structured fields of the entry.
	Fields map[string]interface{}
}

// noPublishFieldKey marks log entries that must not leave the process via the
// core from NewNoPublishOmitCore. Loggers that log about publishing itself need
// this mark as publishing their entries again would loop.
const noPublishFieldKey = "no_publish"

// OmitPublish marks all log entries of the given logger to be omitted by the
// core created via NewNoPublishOmitCore.
func OmitPublish(logger *zap.Logger) *zap.Logger {
	return logger.With(zap.Bool(noPublishFieldKey, true))
}

// logEntryBuffer is the buffer size for the channel returned by
// NewNoPublishOmitCore.
const logEntryBuffer = 256

// NewNoPublishOmitCore creates a zapcore.Core that forwards all log entries to
// the returned channel except entries marked via OmitPublish. Forwarding stops
// when the given context.Context is done.
func NewNoPublishOmitCore(ctx context.Context) (zapcore.Core, <-chan LogEntry) {
	entries := make(chan LogEntry, logEntryBuffer)
	return &noPublishOmitCore{
		ctx:     ctx,
		entries: entries,
	}, entries
}

type noPublishOmitCore struct {
	ctx context.Context
	// entries is where forwarded log entries are sent to.
	entries chan<- LogEntry
	// omit is set when the logger was marked via OmitPublish.
	omit bool
	// fields are the accumulated fields from With.
	fields []zapcore.Field
}

func (c *noPublishOmitCore) Enabled(_ zapcore.Level) bool {
	return true
}

func (c *noPublishOmitCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &noPublishOmitCore{
		ctx:     c.ctx,
		entries: c.entries,
		omit:    c.omit || containsNoPublishMark(fields),
		fields:  make([]zapcore.Field, 0, len(c.fields)+len(fields)),
	}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return clone
}

func (c *noPublishOmitCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.omit {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *noPublishOmitCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.omit || containsNoPublishMark(fields) {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		if field.Key == noPublishFieldKey {
			continue
		}
		field.AddTo(enc)
	}
	logEntry := LogEntry{
		Time:       entry.Time,
		Message:    entry.Message,
		Level:      entry.Level,
		LoggerName: entry.LoggerName,
		Fields:     enc.Fields,
	}
	select {
	case c.entries <- logEntry:
	case <-c.ctx.Done():
	default:
		// Log calls must never block.
	}
	return nil
}

func (c *noPublishOmitCore) Sync() error {
	return nil
}

func containsNoPublishMark(fields []zapcore.Field) bool {
	for _, field := range fields {
		if field.Key == noPublishFieldKey {
			return true
		}
	}
	return false
}
