// Package logger provides leveled JSON logging with redaction of platform
// credentials. Every report run, fetch and cache write logs through here.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a config string to a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// sink holds the settings shared by a logger and every child made with With.
type sink struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	redact bool
}

// Logger writes one JSON object per entry.
type Logger struct {
	s      *sink
	fields []interface{}
}

var defaultLogger = &Logger{s: &sink{level: INFO, out: os.Stderr, redact: true}}

// SetLevel sets the minimum log level for the default logger and its children.
func SetLevel(l Level) {
	defaultLogger.s.mu.Lock()
	defaultLogger.s.level = l
	defaultLogger.s.mu.Unlock()
}

// SetOutput redirects the default logger. A nil writer restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	defaultLogger.s.mu.Lock()
	defaultLogger.s.out = w
	defaultLogger.s.mu.Unlock()
}

// SetRedact enables or disables secret redaction for the default logger.
func SetRedact(r bool) {
	defaultLogger.s.mu.Lock()
	defaultLogger.s.redact = r
	defaultLogger.s.mu.Unlock()
}

// With returns a logger that attaches the given key/value pairs to every entry.
func With(fields ...interface{}) *Logger {
	return defaultLogger.With(fields...)
}

// With returns a child logger. Level, output and redaction stay tied to the
// parent, so later SetLevel or SetOutput calls reach it too.
func (l *Logger) With(fields ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{s: l.s, fields: merged}
}

func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }
func Info(msg string, fields ...interface{})  { defaultLogger.log(INFO, msg, fields...) }
func Warn(msg string, fields ...interface{})  { defaultLogger.log(WARN, msg, fields...) }
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.log(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.log(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if level < l.s.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	all := append(append([]interface{}{}, l.fields...), fields...)
	for i := 0; i < len(all)-1; i += 2 {
		key := fmt.Sprintf("%v", all[i])
		val := fmt.Sprintf("%v", all[i+1])
		if l.s.redact {
			val = redactValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	fmt.Fprintln(l.s.out, string(data))
}
