// Structured logging for the adaptive mesh tools
//
// Leveled, prefixed loggers with key-value fields and text or JSON
// output. Loggers derived with WithPrefix share the parent's sink, so
// level and writer changes apply to the whole tree.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a LogLevel. Unknown names map to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatJSON
)

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// sink is the shared output state of a logger tree
type sink struct {
	mu         sync.Mutex
	writer     io.Writer
	level      LogLevel
	timeFormat string
	colorize   bool
	format     OutputFormat
	caller     bool
}

// Logger writes leveled messages under a component prefix
type Logger struct {
	prefix string
	out    *sink
}

// Entry is a pending log message carrying fields
type Entry struct {
	logger *Logger
	fields Fields
}

// JSONLogEntry is the structure for JSON formatted log entries
type JSONLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger

	ansiColors = map[LogLevel]string{
		DEBUG: "\x1b[36m",
		INFO:  "\x1b[32m",
		WARN:  "\x1b[33m",
		ERROR: "\x1b[31m",
	}
	ansiReset = "\x1b[0m"
)

// New creates a logger writing to stderr. Colors are enabled only when
// stderr is a terminal and NO_COLOR is unset.
func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		out: &sink{
			writer:     os.Stderr,
			level:      INFO,
			timeFormat: "2006-01-02 15:04:05.000",
			colorize:   os.Getenv("NO_COLOR") == "" && IsTerminal(os.Stderr),
			format:     FormatText,
		},
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// SetWriter sets the output writer
func (l *Logger) SetWriter(w io.Writer) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.writer = w
}

// SetColorize enables or disables colorized output
func (l *Logger) SetColorize(enable bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.colorize = enable
}

// SetFormat sets the output format
func (l *Logger) SetFormat(format OutputFormat) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.format = format
}

// SetCaller enables or disables caller info in log output
func (l *Logger) SetCaller(enable bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.caller = enable
}

// Prefix returns the component prefix
func (l *Logger) Prefix() string {
	return l.prefix
}

// WithPrefix returns a logger sharing this logger's sink under a new prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, out: l.out}
}

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return (&Entry{logger: l}).WithFields(fields)
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", err.Error())
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.write(DEBUG, msg, args, nil)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.write(INFO, msg, args, nil)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.write(WARN, msg, args, nil)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.write(ERROR, msg, args, nil)
}

// Frames from runtime.Caller up to the user's call site:
// getCaller, write, the public method.
const callerSkip = 3

func (l *Logger) write(level LogLevel, msg string, args []interface{}, fields Fields) {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var caller string
	if s.caller {
		caller = getCaller(callerSkip)
	}

	var line string
	if s.format == FormatJSON {
		line = l.formatJSON(level, msg, caller, fields)
	} else {
		line = l.formatText(level, msg, caller, fields)
	}
	io.WriteString(s.writer, line)
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *Logger) formatText(level LogLevel, msg, caller string, fields Fields) string {
	var sb strings.Builder

	sb.WriteString(time.Now().Format(l.out.timeFormat))
	fmt.Fprintf(&sb, " [%-5s] ", level.String())
	if l.out.colorize {
		sb.WriteString(ansiColors[level])
		sb.WriteString(l.prefix)
		sb.WriteString(ansiReset)
	} else {
		sb.WriteString(l.prefix)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)

	if caller != "" {
		sb.WriteString(" (" + caller + ")")
	}

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}

	sb.WriteString("\n")
	return sb.String()
}

func (l *Logger) formatJSON(level LogLevel, msg, caller string, fields Fields) string {
	entry := JSONLogEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
		Caller:    caller,
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", err.Error())
}

// Debug logs at DEBUG level with fields
func (e *Entry) Debug(msg string, args ...interface{}) {
	e.logger.write(DEBUG, msg, args, e.fields)
}

// Info logs at INFO level with fields
func (e *Entry) Info(msg string, args ...interface{}) {
	e.logger.write(INFO, msg, args, e.fields)
}

// Warn logs at WARN level with fields
func (e *Entry) Warn(msg string, args ...interface{}) {
	e.logger.write(WARN, msg, args, e.fields)
}

// Error logs at ERROR level with fields
func (e *Entry) Error(msg string, args ...interface{}) {
	e.logger.write(ERROR, msg, args, e.fields)
}

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetLogger returns a logger for the given component, derived from the
// default logger
func GetLogger(prefix string) *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger.WithPrefix(prefix)
}

func init() {
	defaultLogger = New("adaptive-mesh")
	ConfigureFromEnv(defaultLogger)
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - ADAPTIVE_MESH_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - ADAPTIVE_MESH_LOG_FORMAT: text, json
//   - ADAPTIVE_MESH_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("ADAPTIVE_MESH_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
	if v := os.Getenv("ADAPTIVE_MESH_LOG_FORMAT"); v != "" {
		l.SetFormat(ParseFormat(v))
	}
	if os.Getenv("ADAPTIVE_MESH_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
