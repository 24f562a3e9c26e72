package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel maps a level name to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch name {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger is a simple, concurrency-safe logger.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	file   io.Writer // uncolored copy, see SetFile
	level  LogLevel
	prefix string
	color  *Colorizer
	exit   func(int)
}

// NewLogger creates a new Logger instance.
func NewLogger(out io.Writer, level LogLevel, prefix string, colorize bool) *Logger {
	c := &Colorizer{Enabled: false}
	if colorize {
		c = NewColorizer(false)
	}
	return &Logger{
		out:    out,
		level:  level,
		prefix: prefix,
		color:  c,
		exit:   os.Exit,
	}
}

// SetLevel sets the current logging level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the current logging level.
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetColorEnabled enables or disables colored output.
func (l *Logger) SetColorEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color.Enabled = enabled
}

// SetFile tees every message, without colors, to w. A nil w stops the tee.
func (l *Logger) SetFile(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file = w
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05") // HH:MM:SS

	var name string
	paint := func(s string) string { return s }
	switch level {
	case LevelDebug:
		name, paint = "DEBUG", l.color.Dim
	case LevelInfo:
		name = "INFO"
	case LevelWarn:
		name, paint = "WARN", l.color.Yellow
	case LevelError:
		name, paint = "ERROR", l.color.Red
	case LevelFatal:
		name, paint = "FATAL", l.color.Red
	}
	line := fmt.Sprintf("[%s] %s %s: %s", timestamp, name, l.prefix, msg)

	_, _ = fmt.Fprintln(l.out, paint(line))
	if l.file != nil {
		_, _ = fmt.Fprintln(l.file, line)
	}

	if level == LevelFatal {
		l.exit(1)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(LevelFatal, format, args...)
}

// Global logger instance
var defaultLogger = NewLogger(os.Stderr, LevelInfo, "fingerprintweb", true)

// Default returns the process-wide logger used by the package-level functions.
func Default() *Logger {
	return defaultLogger
}

func SetLogLevel(level LogLevel) {
	defaultLogger.SetLevel(level)
}

func SetColorEnabled(enabled bool) {
	defaultLogger.SetColorEnabled(enabled)
}

func SetLogFile(w io.Writer) {
	defaultLogger.SetFile(w)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.Error(format, args...)
}

// Fatal logs a fatal message and exits.
func Fatal(format string, args ...interface{}) {
	defaultLogger.Fatal(format, args...)
}
