package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ANSI color codes for console output
const (
	ColorReset        = "\033[0m"
	ColorGreen        = "\033[32m"
	ColorCyan         = "\033[36m"
	ColorBrightRed    = "\033[91m"
	ColorBrightYellow = "\033[93m"
	ColorBrightGray   = "\033[90m"
)

// Column widths for aligned console output
const (
	ServiceNameWidth = 24
	LogLevelWidth    = 7 // icons add +2
)

var levelRank = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
	"FATAL": 4,
}

// LogEntry represents a single log entry
type LogEntry struct {
	Time    time.Time
	Service string
	Level   string
	Message string
	Fields  map[string]string
}

// sink is shared by a logger and every logger derived from it with Named.
type sink struct {
	mu             sync.RWMutex
	out            io.Writer
	subscribers    []chan LogEntry
	colorEnabled   bool
	disableConsole bool
	minLevel       int
}

// Logger provides structured console logging with streaming support
type Logger struct {
	serviceName string
	version     string
	sink        *sink
}

// New creates a new logger instance writing to stdout
func New(serviceName, version string) *Logger {
	return &Logger{
		serviceName: serviceName,
		version:     version,
		sink: &sink{
			out:          os.Stdout,
			colorEnabled: isTerminal(),
			minLevel:     levelRank["INFO"],
		},
	}
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Named returns a logger for a sub-component. It shares output, level and
// subscribers with its parent.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		serviceName: fmt.Sprintf("%s[%s]", l.serviceName, component),
		version:     l.version,
		sink:        l.sink,
	}
}

// ServiceName returns the name printed in the service column
func (l *Logger) ServiceName() string {
	return l.serviceName
}

// SetLevel sets the minimum level that is written to the console.
// Unknown levels are ignored.
func (l *Logger) SetLevel(level string) {
	rank, ok := levelRank[strings.ToUpper(level)]
	if !ok {
		return
	}
	l.sink.mu.Lock()
	l.sink.minLevel = rank
	l.sink.mu.Unlock()
}

// SetOutput redirects console output and disables colors.
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	l.sink.out = w
	l.sink.colorEnabled = false
	l.sink.mu.Unlock()
}

// Subscribe returns a channel to receive log entries
func (l *Logger) Subscribe() <-chan LogEntry {
	ch := make(chan LogEntry, 100)

	l.sink.mu.Lock()
	l.sink.subscribers = append(l.sink.subscribers, ch)
	l.sink.mu.Unlock()

	return ch
}

// DisableConsoleOutput disables console output, subscribers still receive entries
func (l *Logger) DisableConsoleOutput() {
	l.sink.mu.Lock()
	l.sink.disableConsole = true
	l.sink.mu.Unlock()
}

// EnableConsoleOutput enables console output (default behavior)
func (l *Logger) EnableConsoleOutput() {
	l.sink.mu.Lock()
	l.sink.disableConsole = false
	l.sink.mu.Unlock()
}

func colorForLevel(level string) string {
	switch level {
	case "DEBUG":
		return ColorBrightGray
	case "INFO":
		return ColorGreen
	case "WARN":
		return ColorBrightYellow
	case "ERROR", "FATAL":
		return ColorBrightRed
	default:
		return ColorReset
	}
}

// formatServiceName truncates and pads service name for consistent column width
func formatServiceName(serviceName string) string {
	if len([]rune(serviceName)) > ServiceNameWidth {
		runes := []rune(serviceName)
		return string(runes[:ServiceNameWidth-1]) + "…"
	}
	return fmt.Sprintf("%-*s", ServiceNameWidth, serviceName)
}

// formatLogLevel pads log level for consistent column width and adds visual indicators
func formatLogLevel(level string) string {
	levelStr := level

	switch level {
	case "ERROR", "FATAL":
		levelStr = "✗ " + levelStr
	case "WARN":
		levelStr = "⚠ " + levelStr
	case "INFO":
		levelStr = "ℹ " + levelStr
	case "DEBUG":
		levelStr = "◦ " + levelStr
	}

	return fmt.Sprintf("%-*s", LogLevelWidth+2, levelStr)
}

func formatFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, fields[k])
	}
	return b.String()
}

func (l *Logger) log(level, message string, fields map[string]string) {
	now := time.Now()
	entry := LogEntry{
		Time:    now,
		Service: l.serviceName,
		Level:   level,
		Message: message,
		Fields:  fields,
	}

	s := l.sink
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.disableConsole && levelRank[level] >= s.minLevel {
		timestamp := now.Format("2006-01-02 15:04:05.000")

		color, reset, prefix := "", "", ""
		if s.colorEnabled {
			color = colorForLevel(level)
			reset = ColorReset
			prefix = ColorCyan
		}

		fmt.Fprintf(s.out, "%s[%s] [%s] [%s%s%s] %s%s%s\n",
			prefix, timestamp, formatServiceName(l.serviceName), color, formatLogLevel(level), reset,
			message, formatFields(fields), reset)
	}

	for _, ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
			// Skip if channel is full
		}
	}
}

// Debug logs a debug message with optional formatting
func (l *Logger) Debug(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log("DEBUG", message, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log("DEBUG", fmt.Sprintf(format, args...), nil)
}

// Info logs an info message with optional formatting
func (l *Logger) Info(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log("INFO", message, nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log("INFO", fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message with optional formatting
func (l *Logger) Warn(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log("WARN", message, nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log("WARN", fmt.Sprintf(format, args...), nil)
}

// Error logs an error message with optional formatting
func (l *Logger) Error(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log("ERROR", message, nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log("ERROR", fmt.Sprintf(format, args...), nil)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string) {
	l.log("FATAL", message, nil)
	os.Exit(1)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL", fmt.Sprintf(format, args...), nil)
	os.Exit(1)
}

// WithFields returns a context that attaches fields to every message
func (l *Logger) WithFields(fields map[string]string) *LogContext {
	return &LogContext{
		logger: l,
		fields: fields,
	}
}

// LogContext provides field-based logging
type LogContext struct {
	logger *Logger
	fields map[string]string
}

func (c *LogContext) Info(message string) {
	c.logger.log("INFO", message, c.fields)
}

func (c *LogContext) Warn(message string) {
	c.logger.log("WARN", message, c.fields)
}

func (c *LogContext) Error(message string) {
	c.logger.log("ERROR", message, c.fields)
}
