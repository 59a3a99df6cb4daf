package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
)

type Logger struct {
	logger *log.Logger
	level  Level

	mu        sync.RWMutex
	publisher port.LogPublisher
}

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter создает логгер, пишущий в произвольный writer.
func NewWithWriter(level string, w io.Writer) *Logger {
	l := &Logger{
		logger: log.New(w, "", 0),
		level:  parseLevel(level),
	}
	return l
}

// SetLogPublisher включает дублирование записей во внешнюю систему (CloudWatch Logs).
// nil отключает дублирование.
func (l *Logger) SetLogPublisher(publisher port.LogPublisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publisher = publisher
}

func parseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.level <= DEBUG {
		l.log(port.LogLevelDebug, msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.level <= INFO {
		l.log(port.LogLevelInfo, msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.level <= WARN {
		l.log(port.LogLevelWarn, msg, args...)
	}
}

func (l *Logger) Error(msg string, err error, args ...interface{}) {
	if l.level <= ERROR {
		if err != nil {
			args = append(args, "error", err.Error())
		}
		l.log(port.LogLevelError, msg, args...)
	}
}

func (l *Logger) log(level port.LogLevel, msg string, args ...interface{}) {
	now := time.Now()
	message := fmt.Sprintf("[%s] [%s] %s", now.Format("2006-01-02 15:04:05"), level, msg)

	if len(args) > 0 {
		message += " |"
		for i := 0; i < len(args); i += 2 {
			if i+1 < len(args) {
				message += fmt.Sprintf(" %v=%v", args[i], args[i+1])
			}
		}
	}

	l.logger.Println(message)
	l.forward(now, level, msg, args)
}

// forward отправляет запись во внешний publisher, ошибки публикации игнорируются.
func (l *Logger) forward(at time.Time, level port.LogLevel, msg string, args []interface{}) {
	l.mu.RLock()
	publisher := l.publisher
	l.mu.RUnlock()

	if publisher == nil {
		return
	}

	fields := make(map[string]interface{}, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}

	_ = publisher.Publish(context.Background(), port.LogEntry{
		Timestamp: at,
		Level:     level,
		Message:   msg,
		Fields:    fields,
	})
}
