// Package logging provides structured logging for the sumfunc objective server.
//
// Service code logs through *Logger. The objective engine logs through zap;
// NewZapLogger bridges the two so both end up in the same stream.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in
	// production.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel is the default logging priority.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel logs are high-priority. If an application is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel LogLevel = "ERROR"
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel LogLevel = "FATAL"
)

var levelRank = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
	FatalLevel: 4,
}

// Format selects how entries are rendered.
type Format string

const (
	JSONFormat Format = "json"
	TextFormat Format = "text"
)

// Logger represents an active logging object. Loggers derived with
// WithFields share the output and its lock.
type Logger struct {
	level  LogLevel
	format Format
	out    *output
	fields map[string]interface{}
	exit   func(int)
}

type output struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a new JSON Logger with the specified log level and output.
func New(level LogLevel, w io.Writer) *Logger {
	return &Logger{
		level:  level,
		format: JSONFormat,
		out:    &output{w: w},
		fields: make(map[string]interface{}),
		exit:   os.Exit,
	}
}

// WithFormat returns a copy of the logger rendering entries in format.
func (l *Logger) WithFormat(format Format) *Logger {
	c := *l
	c.format = format
	return &c
}

// Level returns the minimum level the logger writes.
func (l *Logger) Level() LogLevel {
	return l.level
}

// WithFields returns a new Logger with the specified fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	c := *l
	c.fields = newFields
	return &c
}

// WithField returns a new Logger with the specified key-value pair.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithError returns a new Logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// log writes a log entry with the given level and message. depth is the
// number of frames between the caller of interest and log.
func (l *Logger) log(depth int, level LogLevel, msg string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+len(fields)+4)
	for k, v := range l.fields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}
	entry["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["message"] = msg
	if _, ok := entry["caller"]; !ok {
		entry["caller"] = caller(depth + 1)
	}

	var line []byte
	if l.format == TextFormat {
		line = renderText(entry)
	} else {
		data, err := json.Marshal(entry)
		if err != nil {
			data = []byte(fmt.Sprintf("%s [%s] %s: %+v", entry["timestamp"], level, msg, fields))
		}
		line = data
	}
	line = append(line, '\n')

	l.out.mu.Lock()
	_, _ = l.out.w.Write(line)
	l.out.mu.Unlock()

	if level == FatalLevel {
		l.exit(1)
	}
}

func caller(depth int) string {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "???:0"
	}
	// Only keep the last two parts of the file path
	parts := strings.Split(file, "/")
	if len(parts) > 2 {
		file = strings.Join(parts[len(parts)-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// renderText writes "timestamp LEVEL message key=value ..." with keys sorted.
func renderText(entry map[string]interface{}) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", entry["timestamp"], entry["level"], entry["message"])

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "timestamp", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry[k])
	}
	return []byte(b.String())
}

// shouldLog returns true if the given level should be logged.
func (l *Logger) shouldLog(level LogLevel) bool {
	want, ok := levelRank[level]
	if !ok {
		return false
	}
	current, ok := levelRank[l.level]
	if !ok {
		return false
	}
	return want >= current
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(1, DebugLevel, msg, firstFields(fields))
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(1, InfoLevel, msg, firstFields(fields))
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(1, WarnLevel, msg, firstFields(fields))
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(1, ErrorLevel, msg, firstFields(fields))
}

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	l.log(1, FatalLevel, msg, firstFields(fields))
}

// CtxLogger is a logger that can be used with context.
type CtxLogger struct {
	*Logger
}

// FromContext returns a logger from the context or a new one if none exists.
func FromContext(ctx context.Context) *CtxLogger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*CtxLogger); ok {
		return logger
	}
	return &CtxLogger{New(InfoLevel, os.Stderr)}
}

// WithContext returns a new context with the logger.
func (l *CtxLogger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

type ctxLoggerKey struct{}
