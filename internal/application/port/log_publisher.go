package port

import (
	"context"
	"time"
)

// LogLevel is the severity of a log entry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is a structured log line mirrored to an external log sink.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Fields    map[string]interface{}
}

// LogPublisher ships log entries to an external sink such as CloudWatch Logs.
// Publish is called inline from the logger, so implementations buffer.
type LogPublisher interface {
	Publish(ctx context.Context, entry LogEntry) error

	// PublishBatch accepts many entries; size limits of the sink are the implementation's concern.
	PublishBatch(ctx context.Context, entries []LogEntry) error

	// Flush sends buffered entries. Called on shutdown.
	Flush(ctx context.Context) error
}
