package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by NewFromEnv
const (
	EnvLevel  = "LOG_LEVEL"
	EnvFormat = "LOG_FORMAT"
)

// New creates a logger writing entries at or above level to w
func New(w io.Writer, level Level, format Format) *StructuredLogger {
	if format == "" {
		format = FormatJSON
	}
	return &StructuredLogger{
		sink:  &sink{w: w, format: format},
		level: level,
	}
}

// NewJSONLogger creates a JSON logger
func NewJSONLogger(w io.Writer, level Level) *StructuredLogger {
	return New(w, level, FormatJSON)
}

// NewFromEnv creates a stderr logger. LOG_LEVEL and LOG_FORMAT override the
// given level and format. Stdout is reserved for job output records.
func NewFromEnv(level Level, format Format) *StructuredLogger {
	if s := os.Getenv(EnvLevel); s != "" {
		level = ParseLevel(s)
	}
	if s := os.Getenv(EnvFormat); s != "" {
		if f, err := ParseFormat(s); err == nil {
			format = f
		}
	}
	return New(os.Stderr, level, format)
}

func (l *StructuredLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	now := time.Now()
	var data []byte
	if l.sink.format == FormatText {
		data = l.encodeText(now, level, msg, fields)
	} else {
		var err error
		if data, err = l.encodeJSON(now, level, msg, fields); err != nil {
			data = fmt.Appendf(nil, "[ERROR] Failed to marshal log entry: %v\n", err)
		}
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.w.Write(data)
}

func (l *StructuredLogger) encodeJSON(now time.Time, level Level, msg string, fields []Field) ([]byte, error) {
	entry := LogEntry{
		Time:    now.Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// encodeText keeps fields in the order given, preset fields first
func (l *StructuredLogger) encodeText(now time.Time, level Level, msg string, fields []Field) []byte {
	var b strings.Builder
	b.WriteString(now.Format("15:04:05.000"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, set := range [2][]Field{l.fields, fields} {
		for _, f := range set {
			b.WriteByte(' ')
			b.WriteString(f.Key)
			b.WriteByte('=')
			b.WriteString(textValue(f.Value))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func textValue(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// Debug logs a debug-level message
func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields)
}

// Info logs an info-level message
func (l *StructuredLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields)
}

// Warn logs a warning-level message
func (l *StructuredLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields)
}

// Error logs an error-level message
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields)
}

// With creates a child logger with the given fields pre-set
func (l *StructuredLogger) With(fields ...Field) Logger {
	newFields := make([]Field, 0, len(l.fields)+len(fields))
	newFields = append(newFields, l.fields...)
	newFields = append(newFields, fields...)

	return &StructuredLogger{
		sink:   l.sink,
		level:  l.level,
		fields: newFields,
	}
}

// Enabled reports whether entries at level are written
func (l *StructuredLogger) Enabled(level Level) bool {
	return level >= l.level
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

// End logs the operation with its duration and returns it
func (t *TimedOperation) End() time.Duration {
	elapsed := time.Since(t.start)
	t.logger.Info(t.msg, append(t.fields, Latency(elapsed))...)
	return elapsed
}

// EndError logs the operation as an error with its duration
func (t *TimedOperation) EndError(err error) {
	elapsed := time.Since(t.start)
	t.logger.Error(t.msg, append(t.fields, Latency(elapsed), Error(err))...)
}
